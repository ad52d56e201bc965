package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/application"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/labstack/echo/v4"
)

// ServiceName はメタデータエンドポイントが返すサービス名
const ServiceName = "Video Transcription Worker"

// ServiceVersion はサービスのバージョン
const ServiceVersion = "1.0.0"

// Submitter はジョブ投入の受付判定を提供します
type Submitter interface {
	Submit(ctx context.Context, jobID, videoURL string) (application.SubmitResult, error)
	RetryAfter() time.Duration
}

// Handler はHTTPエンドポイントの実装です
type Handler struct {
	submitter        Submitter
	store            domain.JobStore
	events           *application.EventBus
	openaiConfigured bool
	log              *slog.Logger
}

// NewHandler は新しい Handler を作成します
func NewHandler(
	submitter Submitter,
	store domain.JobStore,
	events *application.EventBus,
	openaiConfigured bool,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		submitter:        submitter,
		store:            store,
		events:           events,
		openaiConfigured: openaiConfigured,
		log:              log,
	}
}

// Register はエンドポイントをechoにマウントします
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/webhook", h.Webhook)
	e.POST("/supabase-webhook", h.SupabaseWebhook)
	e.GET("/jobs/:id", h.GetJob)
	e.GET("/events", h.Events)
}

// webhookPayload は汎用Webhookのリクエストボディです
type webhookPayload struct {
	ResponseID string `json:"response_id"`
}

// supabaseWebhookPayload はSupabaseネイティブWebhookのリクエストボディです
type supabaseWebhookPayload struct {
	Type      string         `json:"type"` // INSERT, UPDATE, DELETE
	Table     string         `json:"table"`
	Record    map[string]any `json:"record"`
	Schema    string         `json:"schema"`
	OldRecord map[string]any `json:"old_record"`
}

// Root は静的なサービスメタデータを返します
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"service": ServiceName,
		"version": ServiceVersion,
	})
}

// Health は生存確認とステータスストアの到達可能性を返します
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbStatus := "connected"
	status := "healthy"
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("Health check: status store unreachable", "error", err)
		dbStatus = "disconnected"
		status = "degraded"
	}

	openaiStatus := "configured"
	if !h.openaiConfigured {
		openaiStatus = "not configured"
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": status,
		"services": map[string]string{
			"database": dbStatus,
			"openai":   openaiStatus,
		},
	})
}

// Webhook は response_id を受け取り、文字起こしジョブを投入します。
// 受付判定のみを待ち、パイプラインの完了は待ちません。
func (h *Handler) Webhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if payload.ResponseID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "response_id is required")
	}

	h.log.Info("Webhook received", "responseID", payload.ResponseID)

	return h.submit(c, payload.ResponseID, "")
}

// SupabaseWebhook はSupabaseの行変更イベントを受け取ります。
// responses テーブルへのビデオINSERT以外は無視します。
func (h *Handler) SupabaseWebhook(c echo.Context) error {
	var payload supabaseWebhookPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	h.log.Info("Supabase webhook received", "type", payload.Type, "table", payload.Table)

	if payload.Type != "INSERT" || payload.Table != "responses" {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "Not an INSERT on responses table",
		})
	}

	data, _ := payload.Record["data"].(map[string]any)
	if recordType, _ := data["type"].(string); recordType != "video" {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "Not a video response",
		})
	}

	videoURL, _ := data["video_url"].(string)
	if videoURL == "" {
		return c.JSON(http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "No video_url found",
		})
	}

	responseID := recordID(payload.Record)
	if responseID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no response_id in record")
	}

	return h.submit(c, responseID, videoURL)
}

// GetJob はジョブの現在のレコードを返します（ステータスのポーリング窓口）
func (h *Handler) GetJob(c echo.Context) error {
	jobID := c.Param("id")

	job, err := h.store.GetJob(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("job not found: %s", jobID))
		}
		h.log.Error("Failed to read job", "jobID", jobID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read job")
	}

	return c.JSON(http.StatusOK, jobView(job))
}

// Events はイベントストリームの差分読み出しを返します
func (h *Handler) Events(c echo.Context) error {
	var since int64
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an integer")
		}
		since = parsed
	}

	events := h.events.Since(since)
	if events == nil {
		events = []application.Event{}
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// submit は投入結果をHTTPレスポンスへ写します
func (h *Handler) submit(c echo.Context, responseID, videoURL string) error {
	result, err := h.submitter.Submit(c.Request().Context(), responseID, videoURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	switch result {
	case application.SubmitAccepted:
		return c.JSON(http.StatusAccepted, map[string]any{
			"status":      "accepted",
			"response_id": responseID,
			"message":     "Video queued for processing",
		})
	case application.SubmitDuplicate:
		// 重複配送は良性。冪等に成功として扱う
		return c.JSON(http.StatusAccepted, map[string]any{
			"status":      "duplicate",
			"response_id": responseID,
			"message":     "Video already being processed",
		})
	case application.SubmitSuspended:
		retryAfter := h.submitter.RetryAfter()
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":              "suspended",
			"response_id":         responseID,
			"message":             "Processing suspended after repeated failures",
			"retry_after_seconds": int(retryAfter.Seconds()) + 1,
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "unknown submission result")
	}
}

// recordID はSupabaseレコードからIDを文字列として取り出します
func recordID(record map[string]any) string {
	switch id := record["id"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}

// jobView はジョブレコードのHTTP表現です
func jobView(job *domain.Job) map[string]any {
	view := map[string]any{
		"response_id":       job.ID,
		"processing_status": job.Status,
		"updated_at":        job.UpdatedAt,
	}
	if job.Transcript != nil {
		view["transcript"] = *job.Transcript
		view["timestamped_transcript"] = job.Segments
		view["transcription_method"] = job.TranscriptionMethod
	}
	if job.TranscribedAt != nil {
		view["transcribed_at"] = job.TranscribedAt
	}
	if job.LastError != nil {
		view["last_error"] = *job.LastError
	}
	return view
}
