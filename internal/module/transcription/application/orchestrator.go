package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/google/uuid"
)

const (
	// DefaultFetchTimeout はメディア取得のデフォルトタイムアウト
	DefaultFetchTimeout = 60 * time.Second

	// DefaultTranscribeTimeout は文字起こし呼び出しのデフォルトタイムアウト
	DefaultTranscribeTimeout = 120 * time.Second

	// DefaultStoreTimeout はステータスストア書き込みのデフォルトタイムアウト
	DefaultStoreTimeout = 10 * time.Second
)

// SubmitResult は投入時の受付判定です
type SubmitResult string

const (
	// SubmitAccepted は受付済み。パイプラインはバックグラウンドで実行されます
	SubmitAccepted SubmitResult = "accepted"

	// SubmitDuplicate は同一ジョブの実行が進行中のため無視されたことを表します（良性）
	SubmitDuplicate SubmitResult = "duplicate"

	// SubmitSuspended はクールダウン中のため拒否されたことを表します
	SubmitSuspended SubmitResult = "suspended"
)

// Orchestrator はジョブのライフサイクルを駆動するステートマシンです。
// 受付 → fetch → transcribe → persist の1回の試行を実行し、
// 終端結果ごとに FailureWindow を更新します。投入1回につき試行は1回で、
// リトライは再配送された Webhook とクールダウンゲートに委ねます。
type Orchestrator struct {
	store   domain.JobStore
	fetcher domain.MediaFetcher
	engine  domain.Engine
	tracker *Tracker
	window  *FailureWindow
	bus     *EventBus
	log     *slog.Logger

	fetchTimeout      time.Duration
	transcribeTimeout time.Duration
	storeTimeout      time.Duration

	wg sync.WaitGroup
}

// OrchestratorOption は Orchestrator のオプション設定
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger はロガーを差し替えます
func WithOrchestratorLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithFetchTimeout はメディア取得のタイムアウトを上書きします
func WithFetchTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.fetchTimeout = d
	}
}

// WithTranscribeTimeout は文字起こしのタイムアウトを上書きします
func WithTranscribeTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transcribeTimeout = d
	}
}

// WithStoreTimeout はストア書き込みのタイムアウトを上書きします
func WithStoreTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.storeTimeout = d
	}
}

// NewOrchestrator は新しい Orchestrator を作成します
func NewOrchestrator(
	store domain.JobStore,
	fetcher domain.MediaFetcher,
	engine domain.Engine,
	tracker *Tracker,
	window *FailureWindow,
	bus *EventBus,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		store:             store,
		fetcher:           fetcher,
		engine:            engine,
		tracker:           tracker,
		window:            window,
		bus:               bus,
		log:               slog.Default(),
		fetchTimeout:      DefaultFetchTimeout,
		transcribeTimeout: DefaultTranscribeTimeout,
		storeTimeout:      DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit はジョブを受け付け、受付判定を即座に返します。
// 受付された場合、パイプラインはバックグラウンドの goroutine で1回だけ実行されます。
// videoURL が空の場合、ソース参照はストア上のレコードから解決されます。
func (o *Orchestrator) Submit(ctx context.Context, jobID, videoURL string) (SubmitResult, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}

	// クールダウン中は下流依存を保護するため即座に拒否する（トラッカーにも触れない）
	if o.window.Suspended() {
		o.log.Warn("Submission rejected: cooldown active",
			"jobID", jobID,
			"remaining", o.window.Remaining(),
		)
		o.bus.Publish(Event{
			JobID:      jobID,
			Type:       EventTypeSuspended,
			RetryAfter: o.window.Remaining(),
		})
		return SubmitSuspended, nil
	}

	if !o.tracker.TryAcquire(jobID) {
		o.log.Info("Duplicate submission ignored", "jobID", jobID)
		o.bus.Publish(Event{
			JobID: jobID,
			Type:  EventTypeDuplicate,
		})
		return SubmitDuplicate, nil
	}

	submissionID := uuid.NewString()
	o.log.Info("Job accepted",
		"jobID", jobID,
		"submissionID", submissionID,
	)
	o.bus.Publish(Event{
		JobID:        jobID,
		SubmissionID: submissionID,
		Type:         EventTypeSubmitted,
	})

	// Webhook 応答をブロックしないよう、リクエストのキャンセルから切り離して実行する
	runCtx := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.tracker.Release(jobID)
		o.processJob(runCtx, submissionID, jobID, videoURL)
	}()

	return SubmitAccepted, nil
}

// Wait は進行中のパイプラインがすべて終了するまでブロックします
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Drain は進行中のパイプラインの完了を ctx の期限まで待ちます
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain interrupted with jobs in flight: %w", ctx.Err())
	}
}

// RetryAfter はクールダウン解除までの残り時間を返します
func (o *Orchestrator) RetryAfter() time.Duration {
	return o.window.Remaining()
}

// Events はイベントバスを返します
func (o *Orchestrator) Events() *EventBus {
	return o.bus
}

// processJob は fetch → transcribe → persist の1回の試行を実行します
func (o *Orchestrator) processJob(ctx context.Context, submissionID, jobID, videoURL string) {
	log := o.log.With("jobID", jobID, "submissionID", submissionID)
	log.Info("Starting transcription pipeline")

	// 1. processing への遷移を書き込む。最初の書き込みが失敗した場合、
	//    レコードは未作成のままとなり、呼び出し側のトランスポート層リトライに委ねる
	if err := o.updateJob(ctx, jobID, domain.StatusUpdate(domain.JobStatusProcessing)); err != nil {
		o.reportPersistenceFailure(log, jobID, submissionID, err)
		return
	}

	// 2. ソース参照の解決（Webhook は response_id しか運ばないため、ストアから引く）
	sourceRef := videoURL
	if sourceRef == "" {
		resolved, err := o.resolveSourceRef(ctx, jobID)
		if err != nil {
			o.failJob(ctx, log, jobID, submissionID, err)
			return
		}
		sourceRef = resolved
	}

	// 3. メディア取得
	fetchCtx, cancelFetch := context.WithTimeout(ctx, o.fetchTimeout)
	media, err := o.fetcher.Fetch(fetchCtx, sourceRef)
	cancelFetch()
	if err != nil {
		if !domain.IsCountableFailure(err) {
			err = fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
		}
		o.failJob(ctx, log, jobID, submissionID, err)
		return
	}

	log.Info("Media fetched", "bytes", len(media))

	// 4. 文字起こし
	transcribeCtx, cancelTranscribe := context.WithTimeout(ctx, o.transcribeTimeout)
	transcript, err := o.engine.Transcribe(transcribeCtx, media)
	cancelTranscribe()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrEngineTimeout, err)
		} else if !domain.IsCountableFailure(err) {
			err = fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
		}
		o.failJob(ctx, log, jobID, submissionID, err)
		return
	}

	log.Info("Transcription completed", "chars", len(transcript.Text), "segments", len(transcript.Segments))

	// 5. 結果の永続化。ここでの書き込み失敗は再試行せず、persistence_error として報告する。
	//    ジョブは processing のまま残り、ポーラーまたは再配送 Webhook が後で拾う
	method := transcript.Method
	if method == "" {
		method = o.engine.Method()
	}
	update := domain.CompletionUpdate(transcript, method, time.Now().UTC())
	if err := o.updateJob(ctx, jobID, update); err != nil {
		o.reportPersistenceFailure(log, jobID, submissionID, err)
		return
	}

	o.window.RecordSuccess()
	o.bus.Publish(Event{
		JobID:        jobID,
		SubmissionID: submissionID,
		Type:         EventTypeCompleted,
	})
	log.Info("Job completed")
}

// resolveSourceRef はストア上のレコードから video_url を解決します
func (o *Orchestrator) resolveSourceRef(ctx context.Context, jobID string) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	job, err := o.store.GetJob(readCtx, jobID)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve source: %v", domain.ErrMediaUnavailable, err)
	}
	if job.VideoURL == "" {
		return "", fmt.Errorf("%w: record has no video_url", domain.ErrMediaUnavailable)
	}
	return job.VideoURL, nil
}

// failJob は失敗の終端処理を行います: レコード更新、カウンタ加算、イベント発行
func (o *Orchestrator) failJob(ctx context.Context, log *slog.Logger, jobID, submissionID string, cause error) {
	// 失敗マークはベストエフォート。ストアも落ちている場合はログに留める
	if err := o.updateJob(ctx, jobID, domain.FailureUpdate(cause)); err != nil {
		log.Error("Failed to mark job as failed", "error", err)
	}

	retryAfter, suspended := o.window.RecordFailure()
	log.Error("Job failed",
		"cause", cause,
		"consecutiveFailures", o.window.ConsecutiveFailures(),
		"retryAfter", retryAfter,
		"suspended", suspended,
	)

	o.bus.Publish(Event{
		JobID:        jobID,
		SubmissionID: submissionID,
		Type:         EventTypeFailed,
		Cause:        cause.Error(),
		RetryAfter:   retryAfter,
	})
}

// reportPersistenceFailure はストア書き込み失敗を報告します。
// 意図的に自動リトライせず、連続失敗カウンタにも含めません
func (o *Orchestrator) reportPersistenceFailure(log *slog.Logger, jobID, submissionID string, err error) {
	log.Error("Status store write failed", "error", err)
	o.bus.Publish(Event{
		JobID:        jobID,
		SubmissionID: submissionID,
		Type:         EventTypePersistenceError,
		Cause:        err.Error(),
	})
}

func (o *Orchestrator) updateJob(ctx context.Context, jobID string, update domain.JobUpdate) error {
	writeCtx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()

	if err := o.store.UpdateJob(writeCtx, jobID, update); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}
