package application

import (
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold はクールダウンに入るまでの連続失敗回数
	DefaultFailureThreshold = 5

	// DefaultSuspendDuration はクールダウンの継続時間
	DefaultSuspendDuration = 5 * time.Minute

	// DefaultBackoffBase はExponential Backoffの基底時間
	DefaultBackoffBase = 5 * time.Second

	// DefaultBackoffMax はExponential Backoffの最大待機時間
	DefaultBackoffMax = 5 * time.Minute
)

// BackoffPolicy は連続失敗回数を待機時間と中断判定に写す純粋な関数群です
type BackoffPolicy struct {
	Base      time.Duration
	Max       time.Duration
	Threshold int
}

// DefaultBackoffPolicy はデフォルトのポリシーを返します。
// 「5回連続で失敗したら5分待つ」という運用契約を踏襲しています。
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:      DefaultBackoffBase,
		Max:       DefaultBackoffMax,
		Threshold: DefaultFailureThreshold,
	}
}

// NextDelay は base * 2^failures を上限付きで返します
func (p BackoffPolicy) NextDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < 0 {
		consecutiveFailures = 0
	}

	delay := p.Base
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}
	return delay
}

// ShouldSuspend は連続失敗回数が閾値に達したかどうかを返します
func (p BackoffPolicy) ShouldSuspend(consecutiveFailures int) bool {
	return consecutiveFailures >= p.Threshold
}

// FailureWindow はプロセス全体の連続失敗カウンタとクールダウン期限を保持します。
// オーケストレーターだけが終端結果の後に更新します。プロセス再起動で消えますが、
// 再起動は「全クリア」と等価として許容されます。
type FailureWindow struct {
	mu            sync.Mutex
	policy        BackoffPolicy
	suspendFor    time.Duration
	consecutive   int
	cooldownUntil time.Time
	now           func() time.Time
}

// FailureWindowOption は FailureWindow のオプション設定
type FailureWindowOption func(*FailureWindow)

// WithClock は現在時刻の取得関数を差し替えます（テスト用）
func WithClock(now func() time.Time) FailureWindowOption {
	return func(w *FailureWindow) {
		w.now = now
	}
}

// WithSuspendDuration はクールダウンの継続時間を上書きします
func WithSuspendDuration(d time.Duration) FailureWindowOption {
	return func(w *FailureWindow) {
		w.suspendFor = d
	}
}

// NewFailureWindow は新しい FailureWindow を作成します
func NewFailureWindow(policy BackoffPolicy, opts ...FailureWindowOption) *FailureWindow {
	w := &FailureWindow{
		policy:     policy,
		suspendFor: DefaultSuspendDuration,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RecordFailure は連続失敗カウンタを加算し、閾値に達した場合は
// クールダウン期限を now + suspendFor に設定します。
// 次回リトライまでの推奨待機時間と、中断状態に入ったかどうかを返します。
func (w *FailureWindow) RecordFailure() (retryAfter time.Duration, suspended bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.consecutive++
	retryAfter = w.policy.NextDelay(w.consecutive)

	if w.policy.ShouldSuspend(w.consecutive) {
		w.cooldownUntil = w.now().Add(w.suspendFor)
		return retryAfter, true
	}
	return retryAfter, false
}

// RecordSuccess は連続失敗カウンタをゼロに戻し、クールダウンを解除します
func (w *FailureWindow) RecordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.consecutive = 0
	w.cooldownUntil = time.Time{}
}

// Suspended はクールダウン期間中かどうかを返します。
// 期限が過ぎてもカウンタは自動リセットされず、次の終端結果が決めます。
func (w *FailureWindow) Suspended() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Before(w.cooldownUntil)
}

// Remaining はクールダウン解除までの残り時間を返します（非中断時はゼロ）
func (w *FailureWindow) Remaining() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	remaining := w.cooldownUntil.Sub(w.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ConsecutiveFailures は現在の連続失敗回数を返します
func (w *FailureWindow) ConsecutiveFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.consecutive
}
