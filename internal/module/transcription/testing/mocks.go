package testing

import (
	"context"
	"sync"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
)

// MockJobStore はテスト用のモックJobStoreです。
// 呼び出しを記録するため、アサーション用のカウンタを備えています。
type MockJobStore struct {
	GetJobFunc         func(ctx context.Context, jobID string) (*domain.Job, error)
	UpdateJobFunc      func(ctx context.Context, jobID string, update domain.JobUpdate) error
	ListPendingIDsFunc func(ctx context.Context, limit int) ([]string, error)
	PingFunc           func(ctx context.Context) error

	mu      sync.Mutex
	updates []RecordedUpdate
}

// RecordedUpdate は UpdateJob 呼び出しの記録です
type RecordedUpdate struct {
	JobID  string
	Update domain.JobUpdate
}

func (m *MockJobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, jobID)
	}
	return nil, domain.ErrJobNotFound
}

func (m *MockJobStore) UpdateJob(ctx context.Context, jobID string, update domain.JobUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, RecordedUpdate{JobID: jobID, Update: update})
	m.mu.Unlock()

	if m.UpdateJobFunc != nil {
		return m.UpdateJobFunc(ctx, jobID, update)
	}
	return nil
}

func (m *MockJobStore) ListPendingIDs(ctx context.Context, limit int) ([]string, error) {
	if m.ListPendingIDsFunc != nil {
		return m.ListPendingIDsFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockJobStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Updates は記録された UpdateJob 呼び出しのスナップショットを返します
func (m *MockJobStore) Updates() []RecordedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedUpdate(nil), m.updates...)
}

// UpdatesFor は指定ジョブに対する UpdateJob 呼び出しのみを返します
func (m *MockJobStore) UpdatesFor(jobID string) []RecordedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RecordedUpdate
	for _, u := range m.updates {
		if u.JobID == jobID {
			out = append(out, u)
		}
	}
	return out
}

// MockFetcher はテスト用のモックMediaFetcherです
type MockFetcher struct {
	FetchFunc func(ctx context.Context, sourceRef string) ([]byte, error)

	mu    sync.Mutex
	calls int
}

func (m *MockFetcher) Fetch(ctx context.Context, sourceRef string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, sourceRef)
	}
	return []byte("media"), nil
}

// Calls は Fetch の呼び出し回数を返します
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockEngine はテスト用のモックEngineです
type MockEngine struct {
	TranscribeFunc func(ctx context.Context, media []byte) (*domain.Transcript, error)
	MethodValue    string

	mu    sync.Mutex
	calls int
}

func (m *MockEngine) Transcribe(ctx context.Context, media []byte) (*domain.Transcript, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, media)
	}
	return &domain.Transcript{Text: "transcript", Method: m.Method()}, nil
}

func (m *MockEngine) Method() string {
	if m.MethodValue != "" {
		return m.MethodValue
	}
	return domain.MethodOpenAIWhisper
}

// Calls は Transcribe の呼び出し回数を返します
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
