package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
)

const (
	// DefaultPollInterval は処理待ちジョブの走査間隔
	DefaultPollInterval = 30 * time.Second

	// DefaultPollBatchSize は1回の走査で拾う最大ジョブ数
	DefaultPollBatchSize = 20
)

// Poller は処理待ちのビデオジョブを定期的に走査し、オーケストレーターへ投入します。
// 投入は通常の Submit を経由するため、重複排除とクールダウンのゲートが等しく適用されます。
type Poller struct {
	store        domain.JobStore
	orchestrator *Orchestrator
	interval     time.Duration
	batchSize    int
	log          *slog.Logger
}

// PollerOption は Poller のオプション設定
type PollerOption func(*Poller)

// WithPollInterval は走査間隔を上書きします
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithPollBatchSize は1回の走査の最大ジョブ数を上書きします
func WithPollBatchSize(n int) PollerOption {
	return func(p *Poller) {
		p.batchSize = n
	}
}

// WithPollerLogger はロガーを差し替えます
func WithPollerLogger(log *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log
	}
}

// NewPoller は新しい Poller を作成します
func NewPoller(store domain.JobStore, orchestrator *Orchestrator, opts ...PollerOption) *Poller {
	p := &Poller{
		store:        store,
		orchestrator: orchestrator,
		interval:     DefaultPollInterval,
		batchSize:    DefaultPollBatchSize,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run は ctx がキャンセルされるまで定期走査を続けます
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("Pending job poller started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Pending job poller stopped")
			return
		case <-ticker.C:
			p.Scan(ctx)
		}
	}
}

// Scan は処理待ちジョブを1回走査して投入します
func (p *Poller) Scan(ctx context.Context) {
	ids, err := p.store.ListPendingIDs(ctx, p.batchSize)
	if err != nil {
		p.log.Error("Failed to list pending jobs", "error", err)
		return
	}

	if len(ids) == 0 {
		p.log.Debug("No pending jobs")
		return
	}

	p.log.Info("Found pending jobs", "count", len(ids))

	for _, id := range ids {
		result, err := p.orchestrator.Submit(ctx, id, "")
		if err != nil {
			p.log.Error("Failed to submit pending job", "jobID", id, "error", err)
			continue
		}

		// クールダウン中は残りを次の走査に回す
		if result == SubmitSuspended {
			p.log.Warn("Poller paused by cooldown", "remaining", p.orchestrator.RetryAfter())
			return
		}
	}
}
