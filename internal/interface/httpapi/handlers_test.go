package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/interface/httpapi"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/application"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	testutil "github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/testing"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSubmitter はHTTP層のテスト用 Submitter です
type stubSubmitter struct {
	result     application.SubmitResult
	err        error
	retryAfter time.Duration

	lastJobID    string
	lastVideoURL string
}

func (s *stubSubmitter) Submit(ctx context.Context, jobID, videoURL string) (application.SubmitResult, error) {
	s.lastJobID = jobID
	s.lastVideoURL = videoURL
	return s.result, s.err
}

func (s *stubSubmitter) RetryAfter() time.Duration {
	return s.retryAfter
}

func newTestServer(submitter *stubSubmitter, store domain.JobStore, openaiConfigured bool) *echo.Echo {
	e := echo.New()
	bus := application.NewEventBus(10)
	handler := httpapi.NewHandler(submitter, store, bus, openaiConfigured, nil)
	handler.Register(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_Root(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/", "")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, httpapi.ServiceName, body["service"])
}

func TestHandler_Health_Healthy(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/health", "")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])

	services := body["services"].(map[string]any)
	assert.Equal(t, "connected", services["database"])
	assert.Equal(t, "configured", services["openai"])
}

func TestHandler_Health_DegradedWhenStoreUnreachable(t *testing.T) {
	// Setup
	store := &testutil.MockJobStore{
		PingFunc: func(ctx context.Context) error {
			return fmt.Errorf("connection refused")
		},
	}
	e := newTestServer(&stubSubmitter{}, store, false)

	// Execute
	rec := doJSON(e, http.MethodGet, "/health", "")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])

	services := body["services"].(map[string]any)
	assert.Equal(t, "disconnected", services["database"])
	assert.Equal(t, "not configured", services["openai"])
}

func TestHandler_Webhook_Accepted(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodPost, "/webhook", `{"response_id": "job-1"}`)

	// Assert
	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "job-1", body["response_id"])
	assert.Equal(t, "job-1", submitter.lastJobID)
	assert.Empty(t, submitter.lastVideoURL)
}

func TestHandler_Webhook_Duplicate(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitDuplicate}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodPost, "/webhook", `{"response_id": "job-1"}`)

	// Assert: 重複配送も2xxで受ける（再配送ループを防ぐ）
	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "duplicate", body["status"])
}

func TestHandler_Webhook_Suspended(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{
		result:     application.SubmitSuspended,
		retryAfter: 90 * time.Second,
	}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodPost, "/webhook", `{"response_id": "job-1"}`)

	// Assert
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "91", rec.Header().Get("Retry-After"))
	body := decodeBody(t, rec)
	assert.Equal(t, "suspended", body["status"])
	assert.Equal(t, float64(91), body["retry_after_seconds"])
}

func TestHandler_Webhook_MissingResponseID(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodPost, "/webhook", `{}`)

	// Assert
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "response_id is required")
}

func TestHandler_SupabaseWebhook_VideoInsertSubmitted(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	payload := `{
		"type": "INSERT",
		"table": "responses",
		"record": {
			"id": "job-1",
			"data": {"type": "video", "video_url": "https://storage.example.com/a.webm"}
		}
	}`

	// Execute
	rec := doJSON(e, http.MethodPost, "/supabase-webhook", payload)

	// Assert
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-1", submitter.lastJobID)
	assert.Equal(t, "https://storage.example.com/a.webm", submitter.lastVideoURL)
}

func TestHandler_SupabaseWebhook_IgnoresNonInsert(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	payload := `{"type": "UPDATE", "table": "responses", "record": {"id": "job-1"}}`

	// Execute
	rec := doJSON(e, http.MethodPost, "/supabase-webhook", payload)

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ignored", body["status"])
	assert.Empty(t, submitter.lastJobID)
}

func TestHandler_SupabaseWebhook_IgnoresNonVideo(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	payload := `{
		"type": "INSERT",
		"table": "responses",
		"record": {"id": "job-1", "data": {"type": "text"}}
	}`

	// Execute
	rec := doJSON(e, http.MethodPost, "/supabase-webhook", payload)

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ignored", body["status"])
	assert.Equal(t, "Not a video response", body["reason"])
}

func TestHandler_SupabaseWebhook_IgnoresMissingVideoURL(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	payload := `{
		"type": "INSERT",
		"table": "responses",
		"record": {"id": "job-1", "data": {"type": "video"}}
	}`

	// Execute
	rec := doJSON(e, http.MethodPost, "/supabase-webhook", payload)

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ignored", body["status"])
	assert.Equal(t, "No video_url found", body["reason"])
}

func TestHandler_SupabaseWebhook_NumericRecordID(t *testing.T) {
	// Setup
	submitter := &stubSubmitter{result: application.SubmitAccepted}
	e := newTestServer(submitter, &testutil.MockJobStore{}, true)

	payload := `{
		"type": "INSERT",
		"table": "responses",
		"record": {"id": 42, "data": {"type": "video", "video_url": "https://s/a.webm"}}
	}`

	// Execute
	rec := doJSON(e, http.MethodPost, "/supabase-webhook", payload)

	// Assert
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "42", submitter.lastJobID)
}

func TestHandler_GetJob_Found(t *testing.T) {
	// Setup
	transcript := "hola mundo"
	store := &testutil.MockJobStore{
		GetJobFunc: func(ctx context.Context, jobID string) (*domain.Job, error) {
			return &domain.Job{
				ID:                  jobID,
				Status:              domain.JobStatusCompleted,
				Transcript:          &transcript,
				Segments:            []domain.Segment{{Start: 0, End: 3, Text: "hola mundo"}},
				TranscriptionMethod: domain.MethodOpenAIWhisper,
			}, nil
		},
	}
	e := newTestServer(&stubSubmitter{}, store, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/jobs/job-1", "")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "job-1", body["response_id"])
	assert.Equal(t, "completed", body["processing_status"])
	assert.Equal(t, "hola mundo", body["transcript"])
	assert.Equal(t, "openai_whisper", body["transcription_method"])
}

func TestHandler_GetJob_NotFound(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/jobs/missing", "")

	// Assert
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Events_InvalidSince(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/events?since=abc", "")

	// Assert
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Events_EmptyStream(t *testing.T) {
	// Setup
	e := newTestServer(&stubSubmitter{}, &testutil.MockJobStore{}, true)

	// Execute
	rec := doJSON(e, http.MethodGet, "/events", "")

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	events := body["events"].([]any)
	assert.Empty(t, events)
}
