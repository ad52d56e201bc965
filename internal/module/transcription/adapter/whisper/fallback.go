package whisper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
)

// mockText はOpenAIクレジット切れ時に返す模擬文字起こしです
const mockText = "Hola, mi nombre es [Candidato] y estoy muy entusiasmado por esta oportunidad. " +
	"Tengo experiencia relevante en el área y creo que puedo aportar mucho valor a su equipo. " +
	"Me considero una persona proactiva, con capacidad de trabajo en equipo y siempre " +
	"dispuesto a aprender nuevas tecnologías. Gracias por considerarme para este puesto."

const (
	mockWordsPerSegment   = 10
	mockSecondsPerSegment = 3.0
)

// QuotaFallback は Engine のデコレーターで、OpenAIのクォータ枯渇時に
// 失敗させる代わりに模擬文字起こしを返します。
// 模擬結果はテキスト先頭のマーカーと transcription_method = "mock" で識別できます。
type QuotaFallback struct {
	inner domain.Engine
	log   *slog.Logger
}

// NewQuotaFallback は新しい QuotaFallback を作成します
func NewQuotaFallback(inner domain.Engine, log *slog.Logger) *QuotaFallback {
	if log == nil {
		log = slog.Default()
	}
	return &QuotaFallback{inner: inner, log: log}
}

// コンパイル時の型チェック
var _ domain.Engine = (*QuotaFallback)(nil)

// Method は内側のエンジンの識別タグを返します
func (q *QuotaFallback) Method() string {
	return q.inner.Method()
}

// Transcribe は内側のエンジンに委譲し、クォータ枯渇エラーのみ模擬結果に差し替えます
func (q *QuotaFallback) Transcribe(ctx context.Context, media []byte) (*domain.Transcript, error) {
	transcript, err := q.inner.Transcribe(ctx, media)
	if err == nil {
		return transcript, nil
	}

	if !isQuotaError(err) {
		return nil, err
	}

	q.log.Warn("OpenAI quota exhausted: returning mock transcript")
	return MockTranscript(), nil
}

// MockTranscript は10語・3秒刻みのセグメントを持つ模擬文字起こしを生成します
func MockTranscript() *domain.Transcript {
	words := strings.Fields(mockText)

	var segments []domain.Segment
	current := 0.0
	for i := 0; i < len(words); i += mockWordsPerSegment {
		end := i + mockWordsPerSegment
		if end > len(words) {
			end = len(words)
		}
		segments = append(segments, domain.Segment{
			Start: current,
			End:   current + mockSecondsPerSegment,
			Text:  strings.Join(words[i:end], " "),
		})
		current += mockSecondsPerSegment
	}

	return &domain.Transcript{
		Text:     "[TRANSCRIPCIÓN SIMULADA - Sin créditos OpenAI]\n\n" + mockText,
		Segments: segments,
		Method:   domain.MethodMock,
	}
}

// isQuotaError はOpenAIのクォータ枯渇エラーかどうかを判定します
func isQuotaError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "insufficient_quota")
}
