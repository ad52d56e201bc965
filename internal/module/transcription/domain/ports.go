package domain

import (
	"context"
)

// JobStore はジョブ状態の読み書きを提供するステータスストアゲートウェイです。
// トランザクション保証は想定せず、フィールド単位の last-write-wins のみを前提とします。
type JobStore interface {
	// GetJob はジョブレコードを取得します。存在しない場合は ErrJobNotFound を返します
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// UpdateJob はジョブレコードを部分更新します。
	// レコードが存在しない場合は作成します（upsert）
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error

	// ListPendingIDs は処理待ちのビデオジョブIDを返します
	ListPendingIDs(ctx context.Context, limit int) ([]string, error)

	// Ping はストアへの到達可能性を確認します
	Ping(ctx context.Context) error
}

// MediaFetcher はソース参照からメディアバイト列を解決します
type MediaFetcher interface {
	// Fetch はメディアを取得します。
	// 存在しない場合は ErrMediaNotFound、到達不能な場合は ErrMediaUnavailable を返します
	Fetch(ctx context.Context, sourceRef string) ([]byte, error)
}

// Engine はメディアバイト列をテキストとセグメント列に変換する文字起こしエンジンです
type Engine interface {
	// Transcribe はメディアを文字起こしします。
	// 失敗時は ErrNoAudio / ErrEngineFailure / ErrEngineTimeout のいずれかを返します
	Transcribe(ctx context.Context, media []byte) (*Transcript, error)

	// Method はエンジンを識別するタグを返します（例: "openai_whisper"）
	Method() string
}
