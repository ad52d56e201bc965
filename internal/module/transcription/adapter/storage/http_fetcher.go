package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
)

const (
	// DefaultMaxMediaBytes はダウンロードするメディアの上限サイズ（100MiB）
	DefaultMaxMediaBytes = 100 << 20
)

// HTTPFetcher はストレージURLからメディアバイト列をダウンロードする MediaFetcher 実装です
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// HTTPFetcherOption は HTTPFetcher のオプション設定
type HTTPFetcherOption func(*HTTPFetcher)

// WithHTTPClient はHTTPクライアントを差し替えます
func WithHTTPClient(client *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithMaxMediaBytes はダウンロード上限サイズを上書きします
func WithMaxMediaBytes(n int64) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// NewHTTPFetcher は新しい HTTPFetcher を作成します。
// タイムアウトは呼び出し側の context で制御します。
func NewHTTPFetcher(opts ...HTTPFetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   &http.Client{},
		maxBytes: DefaultMaxMediaBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// コンパイル時の型チェック
var _ domain.MediaFetcher = (*HTTPFetcher)(nil)

// Fetch はメディアをダウンロードします
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceRef string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid source reference %q: %v", domain.ErrMediaUnavailable, sourceRef, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMediaUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: %s", domain.ErrMediaNotFound, sourceRef)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%w: http %d: %s", domain.ErrMediaUnavailable, resp.StatusCode, body)
	}

	media, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrMediaUnavailable, err)
	}
	if int64(len(media)) > f.maxBytes {
		return nil, fmt.Errorf("%w: media exceeds %d bytes", domain.ErrMediaUnavailable, f.maxBytes)
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: empty media body", domain.ErrMediaUnavailable)
	}

	return media, nil
}
