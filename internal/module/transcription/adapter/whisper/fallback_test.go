package whisper

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	testutil "github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaFallback_Transcribe_PassesThroughSuccess(t *testing.T) {
	// Setup
	inner := &testutil.MockEngine{
		TranscribeFunc: func(ctx context.Context, media []byte) (*domain.Transcript, error) {
			return &domain.Transcript{Text: "real transcript", Method: domain.MethodOpenAIWhisper}, nil
		},
	}
	fallback := NewQuotaFallback(inner, nil)

	// Execute
	transcript, err := fallback.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "real transcript", transcript.Text)
	assert.Equal(t, domain.MethodOpenAIWhisper, transcript.Method)
}

func TestQuotaFallback_Transcribe_MocksOnQuotaExhaustion(t *testing.T) {
	// Setup
	inner := &testutil.MockEngine{
		TranscribeFunc: func(ctx context.Context, media []byte) (*domain.Transcript, error) {
			return nil, fmt.Errorf("%w: 429 insufficient_quota", domain.ErrEngineFailure)
		},
	}
	fallback := NewQuotaFallback(inner, nil)

	// Execute
	transcript, err := fallback.Transcribe(context.Background(), []byte("media"))

	// Assert: 失敗させずに模擬結果へ差し替える
	require.NoError(t, err)
	assert.Equal(t, domain.MethodMock, transcript.Method)
	assert.True(t, strings.HasPrefix(transcript.Text, "[TRANSCRIPCIÓN SIMULADA"))
	assert.NotEmpty(t, transcript.Segments)
}

func TestQuotaFallback_Transcribe_OtherErrorsPropagate(t *testing.T) {
	// Setup
	inner := &testutil.MockEngine{
		TranscribeFunc: func(ctx context.Context, media []byte) (*domain.Transcript, error) {
			return nil, fmt.Errorf("%w: 500 internal error", domain.ErrEngineFailure)
		},
	}
	fallback := NewQuotaFallback(inner, nil)

	// Execute
	transcript, err := fallback.Transcribe(context.Background(), []byte("media"))

	// Assert
	require.Error(t, err)
	assert.Nil(t, transcript)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
}

func TestMockTranscript_SegmentsAreTenWordsThreeSeconds(t *testing.T) {
	// Execute
	transcript := MockTranscript()

	// Assert
	require.NotEmpty(t, transcript.Segments)
	assert.Equal(t, domain.MethodMock, transcript.Method)

	for i, segment := range transcript.Segments {
		words := strings.Fields(segment.Text)
		if i < len(transcript.Segments)-1 {
			assert.Len(t, words, 10)
		} else {
			assert.LessOrEqual(t, len(words), 10)
		}
		assert.InDelta(t, float64(i)*3.0, segment.Start, 0.001)
		assert.InDelta(t, float64(i)*3.0+3.0, segment.End, 0.001)
	}
}

func TestIsQuotaError(t *testing.T) {
	assert.True(t, isQuotaError(fmt.Errorf("openai: insufficient_quota")))
	assert.False(t, isQuotaError(fmt.Errorf("openai: rate_limit_exceeded")))
	assert.False(t, isQuotaError(nil))
}
