package application

import (
	"sync"
	"time"
)

// EventType はジョブ実行中に発行されるイベントの種別です
type EventType string

const (
	EventTypeSubmitted        EventType = "submitted"
	EventTypeDuplicate        EventType = "duplicate"
	EventTypeSuspended        EventType = "suspended"
	EventTypeCompleted        EventType = "completed"
	EventTypeFailed           EventType = "failed"
	EventTypePersistenceError EventType = "persistence_error"
)

// Event は投入・終端結果を購読者へ伝えるペイロードです
type Event struct {
	Seq          int64         `json:"seq"`
	Timestamp    time.Time     `json:"timestamp"`
	JobID        string        `json:"job_id"`
	SubmissionID string        `json:"submission_id,omitempty"`
	Type         EventType     `json:"type"`
	Cause        string        `json:"cause,omitempty"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
}

// EventBus は直近のイベントを保持し、差分読み出しを提供する有界バッファです
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus は有界のインメモリイベントバッファを作成します
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish はイベントを追記し、シーケンス番号とタイムスタンプを採番します
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since は seq より大きいシーケンス番号のイベントを返します
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
