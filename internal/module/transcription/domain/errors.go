package domain

import (
	"errors"
)

// 受付時の良性シグナル（ジョブレコードには記録されない）
var (
	// ErrDuplicateInFlight は同一ジョブIDの実行が既に進行中の場合に返されます
	ErrDuplicateInFlight = errors.New("job already in flight")

	// ErrSuspended はクールダウン中に新規投入が拒否された場合に返されます
	ErrSuspended = errors.New("submissions suspended: cooling down after repeated failures")
)

// パイプライン段階の失敗原因（ジョブレコードに記録され、連続失敗カウントの対象）
var (
	// ErrMediaUnavailable はソース参照からメディアを取得できない場合のエラー
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrMediaNotFound はソースがストレージに存在しない場合のエラー
	ErrMediaNotFound = errors.New("media not found")

	// ErrTranscriptionFailed は文字起こし段階の失敗を表すエラー
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrNoAudio はメディアに音声が含まれない、または空の結果が返された場合のエラー
	ErrNoAudio = errors.New("no audio detected in media")

	// ErrEngineFailure は文字起こしエンジン側の障害を表すエラー
	ErrEngineFailure = errors.New("transcription engine failure")

	// ErrEngineTimeout は文字起こし呼び出しのタイムアウトを表すエラー
	ErrEngineTimeout = errors.New("transcription engine timeout")
)

// ErrPersistenceFailure はステータスストアへの書き込み失敗を表すエラー。
// ジョブレコードには記録されず、連続失敗カウントにも含まれません。
var ErrPersistenceFailure = errors.New("status store write failed")

// ErrJobNotFound はジョブレコードが存在しない場合にストアゲートウェイが返すエラー
var ErrJobNotFound = errors.New("job not found")

// IsCountableFailure は連続失敗ウィンドウの対象となる失敗かどうかを判定します
func IsCountableFailure(err error) bool {
	switch {
	case errors.Is(err, ErrMediaUnavailable),
		errors.Is(err, ErrMediaNotFound),
		errors.Is(err, ErrTranscriptionFailed),
		errors.Is(err, ErrNoAudio),
		errors.Is(err, ErrEngineFailure),
		errors.Is(err, ErrEngineTimeout):
		return true
	}
	return false
}
