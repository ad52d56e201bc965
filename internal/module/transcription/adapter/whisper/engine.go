package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultModel はデフォルトで使用するWhisperモデル
	DefaultModel = "whisper-1"

	// DefaultLanguage はデフォルトの文字起こし言語
	DefaultLanguage = "es"

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// transcriptionFunc は文字起こしAPI呼び出しの差し替え点です
type transcriptionFunc func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error)

// Engine は OpenAI Whisper API を使用した文字起こしエンジン実装です
type Engine struct {
	client   openai.Client
	model    string
	language string

	call        transcriptionFunc
	backoffBase time.Duration
}

// EngineOption は Engine のオプション設定
type EngineOption func(*Engine)

// WithModel はWhisperモデル名を上書きします
func WithModel(model string) EngineOption {
	return func(e *Engine) {
		e.model = model
	}
}

// WithLanguage は文字起こし言語を上書きします
func WithLanguage(language string) EngineOption {
	return func(e *Engine) {
		e.language = language
	}
}

// NewEngine は新しい Engine を作成します
func NewEngine(apiKey string, opts ...EngineOption) (*Engine, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	e := &Engine{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       DefaultModel,
		language:    DefaultLanguage,
		backoffBase: BaseBackoff,
	}
	e.call = func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.AudioTranscriptionNewResponseUnion, error) {
		return e.client.Audio.Transcriptions.New(ctx, params)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// コンパイル時の型チェック
var _ domain.Engine = (*Engine)(nil)

// Method はエンジン識別タグを返します
func (e *Engine) Method() string {
	return domain.MethodOpenAIWhisper
}

// UnconfiguredEngine はAPIキー未設定のまま起動した場合に使われるエンジンです。
// サービス自体は起動を許し、文字起こし要求は設定不備として失敗させます。
type UnconfiguredEngine struct{}

var _ domain.Engine = UnconfiguredEngine{}

func (UnconfiguredEngine) Method() string {
	return domain.MethodOpenAIWhisper
}

func (UnconfiguredEngine) Transcribe(ctx context.Context, media []byte) (*domain.Transcript, error) {
	return nil, fmt.Errorf("%w: %v", domain.ErrEngineFailure, ErrAPIKeyNotSet)
}

// verboseTranscription は verbose_json レスポンスの形を写した構造体です
type verboseTranscription struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe はメディアをWhisper APIで文字起こしし、タイムスタンプ付きセグメントを返します
func (e *Engine) Transcribe(ctx context.Context, media []byte) (*domain.Transcript, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: empty media", domain.ErrNoAudio)
	}

	resp, err := e.transcribeWithRetry(ctx, media)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrEngineTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineFailure, err)
	}

	// verbose_json のセグメントはSDKの既定レスポンス型に現れないため、生JSONから読み出す
	var verbose verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return nil, fmt.Errorf("%w: decode verbose response: %v", domain.ErrEngineFailure, err)
		}
	}
	if verbose.Text == "" {
		verbose.Text = resp.Text
	}

	return buildTranscript(verbose)
}

// transcribeWithRetry はレート制限エラー時に上限付きExponential Backoffで再試行します。
// File リーダーはリクエストごとに消費されるため、パラメータは試行ごとに組み立て直します。
func (e *Engine) transcribeWithRetry(ctx context.Context, media []byte) (*openai.AudioTranscriptionNewResponseUnion, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * e.backoffBase
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		params := openai.AudioTranscriptionNewParams{
			Model:          openai.AudioModel(e.model),
			File:           openai.File(bytes.NewReader(media), "video.webm", "video/webm"),
			ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		}
		if e.language != "" {
			params.Language = openai.String(e.language)
		}

		resp, err := e.call(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return nil, err
		}
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// isRateLimitError は一時的なレート制限エラーかどうかを判定します
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		// クォータ枯渇も429で返るが、待っても回復しないためリトライしない
		return apiErr.StatusCode == 429 && apiErr.Code != "insufficient_quota"
	}

	return false
}

// buildTranscript はレスポンスをドメインの Transcript に変換します
func buildTranscript(verbose verboseTranscription) (*domain.Transcript, error) {
	if verbose.Text == "" {
		return nil, fmt.Errorf("%w: engine returned empty transcript", domain.ErrNoAudio)
	}

	segments := make([]domain.Segment, 0, len(verbose.Segments))
	for _, s := range verbose.Segments {
		segments = append(segments, domain.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}

	// セグメントは時系列順を保証する（重なりはエンジン出力のまま許容）
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return &domain.Transcript{
		Text:     verbose.Text,
		Segments: segments,
		Method:   domain.MethodOpenAIWhisper,
	}, nil
}
