package whisper

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiError はテスト用のOpenAI APIエラーを組み立てます
func apiError(statusCode int, code string) *openai.Error {
	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", nil)
	return &openai.Error{
		StatusCode: statusCode,
		Code:       code,
		Request:    req,
		Response:   &http.Response{StatusCode: statusCode},
	}
}

// retryTestEngine はAPI呼び出しを差し替えたエンジンを作成します
func retryTestEngine(call transcriptionFunc) *Engine {
	return &Engine{
		model:       DefaultModel,
		language:    DefaultLanguage,
		call:        call,
		backoffBase: time.Millisecond,
	}
}

func TestNewEngine_RequiresAPIKey(t *testing.T) {
	// Execute
	engine, err := NewEngine("")

	// Assert
	require.Error(t, err)
	assert.Nil(t, engine)
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewEngine_AppliesOptions(t *testing.T) {
	// Execute
	engine, err := NewEngine("sk-test",
		WithModel("whisper-large"),
		WithLanguage("en"),
	)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "whisper-large", engine.model)
	assert.Equal(t, "en", engine.language)
	assert.Equal(t, domain.MethodOpenAIWhisper, engine.Method())
}

func TestUnconfiguredEngine_FailsTranscription(t *testing.T) {
	// Setup
	engine := UnconfiguredEngine{}

	// Execute
	transcript, err := engine.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.Error(t, err)
	assert.Nil(t, transcript)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.Contains(t, err.Error(), "API key not set")
}

func TestEngine_Transcribe_RetriesAfterRateLimit(t *testing.T) {
	// Setup: 2回レート制限を返した後に成功させる
	calls := 0
	engine := retryTestEngine(func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		calls++
		if calls <= 2 {
			return nil, apiError(429, "rate_limit_exceeded")
		}
		return &openai.AudioTranscriptionNewResponseUnion{Text: "hola mundo"}, nil
	})

	// Execute
	transcript, err := engine.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", transcript.Text)
	assert.Equal(t, 3, calls)
}

func TestEngine_Transcribe_RateLimitExhaustsRetries(t *testing.T) {
	// Setup
	calls := 0
	engine := retryTestEngine(func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		calls++
		return nil, apiError(429, "rate_limit_exceeded")
	})

	// Execute
	transcript, err := engine.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.Error(t, err)
	assert.Nil(t, transcript)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, MaxRetries+1, calls)
}

func TestEngine_Transcribe_QuotaExhaustionNotRetried(t *testing.T) {
	// Setup
	calls := 0
	engine := retryTestEngine(func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		calls++
		return nil, apiError(429, "insufficient_quota")
	})

	// Execute: 待っても回復しないクォータ枯渇は即座に失敗させる
	_, err := engine.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.Equal(t, 1, calls)
}

func TestEngine_Transcribe_NonRateLimitNotRetried(t *testing.T) {
	// Setup
	calls := 0
	engine := retryTestEngine(func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		calls++
		return nil, apiError(500, "server_error")
	})

	// Execute
	_, err := engine.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.Equal(t, 1, calls)
}

func TestEngine_Transcribe_DeadlineDuringBackoffIsTimeout(t *testing.T) {
	// Setup: バックオフ待機中に期限が切れるようにする
	calls := 0
	engine := retryTestEngine(func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		calls++
		return nil, apiError(429, "rate_limit_exceeded")
	})
	engine.backoffBase = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Execute
	_, err := engine.Transcribe(ctx, []byte("media"))

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineTimeout)
	assert.Equal(t, 1, calls)
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, isRateLimitError(apiError(429, "rate_limit_exceeded")))
	assert.True(t, isRateLimitError(fmt.Errorf("call failed: %w", apiError(429, "rate_limit_exceeded"))))
	assert.False(t, isRateLimitError(apiError(429, "insufficient_quota")))
	assert.False(t, isRateLimitError(apiError(500, "server_error")))
	assert.False(t, isRateLimitError(fmt.Errorf("plain error")))
	assert.False(t, isRateLimitError(nil))
}

func TestBuildTranscript_SortsSegmentsByStart(t *testing.T) {
	// Setup
	verbose := verboseTranscription{
		Text: "hello world",
		Segments: []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		}{
			{Start: 1.5, End: 3.0, Text: "world"},
			{Start: 0.0, End: 1.5, Text: "hello"},
		},
	}

	// Execute
	transcript, err := buildTranscript(verbose)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "hello world", transcript.Text)
	assert.Equal(t, domain.MethodOpenAIWhisper, transcript.Method)
	require.Len(t, transcript.Segments, 2)
	assert.Equal(t, "hello", transcript.Segments[0].Text)
	assert.Equal(t, "world", transcript.Segments[1].Text)
}

func TestBuildTranscript_EmptyTextIsNoAudio(t *testing.T) {
	// Execute
	transcript, err := buildTranscript(verboseTranscription{})

	// Assert
	require.Error(t, err)
	assert.Nil(t, transcript)
	assert.ErrorIs(t, err, domain.ErrNoAudio)
}
