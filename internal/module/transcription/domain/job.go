package domain

import (
	"time"
)

// JobStatus はジョブ処理状態を表します
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// 文字起こし手段を識別するタグ
const (
	MethodOpenAIWhisper = "openai_whisper"
	MethodMock          = "mock"
)

// Segment はタイムスタンプ付きの文字起こし断片です
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript は文字起こしエンジンの出力です。
// Method は結果を生成したエンジンの識別タグです（フォールバック時は "mock"）。
type Transcript struct {
	Text     string
	Segments []Segment
	Method   string
}

// Job は1つのビデオ回答に対する文字起こしジョブです。
// ジョブIDは Webhook 呼び出し側が supplies するレスポンスIDで、
// 明示的な作成ステップはありません（最初の書き込みで暗黙に作成されます）。
type Job struct {
	ID                  string
	Status              JobStatus
	VideoURL            string
	Transcript          *string
	Segments            []Segment
	TranscriptionMethod string
	TranscribedAt       *time.Time
	LastError           *string
	UpdatedAt           time.Time
}

// JobUpdate はジョブレコードへの部分更新です。
// nil のフィールドは変更されません（フィールド単位の last-write-wins）。
type JobUpdate struct {
	Status              *JobStatus
	Transcript          *string
	Segments            []Segment
	TranscriptionMethod *string
	TranscribedAt       *time.Time
	LastError           *string
}

// StatusUpdate はステータスのみを変更する JobUpdate を作成します
func StatusUpdate(status JobStatus) JobUpdate {
	return JobUpdate{Status: &status}
}

// FailureUpdate は失敗ステータスとエラー概要を設定する JobUpdate を作成します
func FailureUpdate(cause error) JobUpdate {
	status := JobStatusFailed
	msg := cause.Error()
	return JobUpdate{
		Status:    &status,
		LastError: &msg,
	}
}

// CompletionUpdate は文字起こし結果一式を設定する JobUpdate を作成します
func CompletionUpdate(t *Transcript, method string, completedAt time.Time) JobUpdate {
	status := JobStatusCompleted
	text := t.Text
	return JobUpdate{
		Status:              &status,
		Transcript:          &text,
		Segments:            t.Segments,
		TranscriptionMethod: &method,
		TranscribedAt:       &completedAt,
	}
}
