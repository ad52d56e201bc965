package application

import (
	"sync"
)

// Tracker はジョブIDごとのシングルフライト実行を保証するインプロセスレジストリです。
// 同一の response_id が重複して Webhook 配送されても、2本目のパイプラインは起動しません。
type Tracker struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewTracker は空のトラッカーを作成します
func NewTracker() *Tracker {
	return &Tracker{
		inFlight: make(map[string]struct{}),
	}
}

// TryAcquire は jobID を実行中としてマークします。
// 既に実行中の場合は副作用なしで false を返します。
func (t *Tracker) TryAcquire(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, running := t.inFlight[jobID]; running {
		return false
	}

	t.inFlight[jobID] = struct{}{}
	return true
}

// Release は jobID の実行中マークを解除します。
// 成功した TryAcquire ごとに、すべての終了経路で必ず1回呼び出してください。
func (t *Tracker) Release(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, jobID)
}

// InFlight は現在実行中のジョブ数を返します
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}
