package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobRepository は Supabase(PostgreSQL) の responses テーブルを
// ステータスストアゲートウェイとして公開する永続化アダプターです。
// 文字起こし結果は既存の data JSONB にマージされ、丸ごと置き換えられることはありません。
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository は新しいジョブリポジトリを作成します
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// コンパイル時の型チェック
var _ domain.JobStore = (*JobRepository)(nil)

// recordData は responses.data JSONB のうち、このワーカーが関心を持つキーです
type recordData struct {
	Type                  string           `json:"type,omitempty"`
	VideoURL              string           `json:"video_url,omitempty"`
	Transcript            *string          `json:"transcript,omitempty"`
	TimestampedTranscript []domain.Segment `json:"timestamped_transcript,omitempty"`
	TranscriptionMethod   string           `json:"transcription_method,omitempty"`
	TranscribedAt         *time.Time       `json:"transcribed_at,omitempty"`
	LastError             *string          `json:"last_error,omitempty"`
}

// GetJob はジョブレコードを取得します
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT processing_status, COALESCE(data, '{}'::jsonb), updated_at
		 FROM responses
		 WHERE id = $1`,
		jobID,
	)

	var (
		status    string
		rawData   []byte
		updatedAt time.Time
	)
	if err := row.Scan(&status, &rawData, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var data recordData
	if err := json.Unmarshal(rawData, &data); err != nil {
		return nil, fmt.Errorf("failed to decode job data: %w", err)
	}

	return &domain.Job{
		ID:                  jobID,
		Status:              domain.JobStatus(status),
		VideoURL:            data.VideoURL,
		Transcript:          data.Transcript,
		Segments:            data.TimestampedTranscript,
		TranscriptionMethod: data.TranscriptionMethod,
		TranscribedAt:       data.TranscribedAt,
		LastError:           data.LastError,
		UpdatedAt:           updatedAt,
	}, nil
}

// UpdateJob はジョブレコードを部分更新します。
// レコードが存在しない場合は作成します（ジョブIDは呼び出し側が供給するため、
// 明示的な作成ステップを持たない upsert として表現しています）。
func (r *JobRepository) UpdateJob(ctx context.Context, jobID string, update domain.JobUpdate) error {
	patch, err := json.Marshal(dataPatch(update))
	if err != nil {
		return fmt.Errorf("failed to encode data patch: %w", err)
	}

	var status *string
	if update.Status != nil {
		s := string(*update.Status)
		status = &s
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO responses (id, processing_status, data, updated_at)
		 VALUES ($1, COALESCE($2, 'pending'), $3::jsonb, now())
		 ON CONFLICT (id) DO UPDATE SET
		   processing_status = COALESCE($2, responses.processing_status),
		   data = COALESCE(responses.data, '{}'::jsonb) || $3::jsonb,
		   updated_at = now()`,
		jobID, status, patch,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return nil
}

// ListPendingIDs は処理待ちのビデオジョブIDを返します
func (r *JobRepository) ListPendingIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id
		 FROM responses
		 WHERE processing_status = 'pending'
		   AND data->>'type' = 'video'
		   AND data->>'video_url' IS NOT NULL
		 ORDER BY updated_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending jobs: %w", err)
	}

	return ids, nil
}

// Ping はストアへの到達可能性を確認します
func (r *JobRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("status store unreachable: %w", err)
	}
	return nil
}

// dataPatch は JobUpdate から data JSONB へのマージ対象キーを組み立てます
func dataPatch(update domain.JobUpdate) map[string]any {
	patch := make(map[string]any)
	if update.Transcript != nil {
		patch["transcript"] = *update.Transcript
	}
	if update.Segments != nil {
		patch["timestamped_transcript"] = update.Segments
	}
	if update.TranscriptionMethod != nil {
		patch["transcription_method"] = *update.TranscriptionMethod
	}
	if update.TranscribedAt != nil {
		patch["transcribed_at"] = update.TranscribedAt.UTC().Format(time.RFC3339)
	}
	if update.LastError != nil {
		patch["last_error"] = *update.LastError
	}
	return patch
}
