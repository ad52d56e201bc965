package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/adapter/pg"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/adapter/storage"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/adapter/whisper"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/application"
	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/domain"
	"github.com/Msaezcardenas/video-transcription-worker/internal/platform/config"
	"github.com/Msaezcardenas/video-transcription-worker/internal/platform/database"
)

// Container はワーカーの依存関係を組み立てて保持します
type Container struct {
	Store        domain.JobStore
	Orchestrator *application.Orchestrator
	Poller       *application.Poller
	Events       *application.EventBus

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger  *slog.Logger
	store   domain.JobStore
	fetcher domain.MediaFetcher
	engine  domain.Engine
}

// ContainerOption は Container 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替えます
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerStore はステータスストアゲートウェイを差し替えます（テスト用）
func WithContainerStore(store domain.JobStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerFetcher はメディアフェッチャーを差し替えます（テスト用）
func WithContainerFetcher(fetcher domain.MediaFetcher) ContainerOption {
	return func(opts *containerOptions) {
		opts.fetcher = fetcher
	}
}

// WithContainerEngine は文字起こしエンジンを差し替えます（テスト用）
func WithContainerEngine(engine domain.Engine) ContainerOption {
	return func(opts *containerOptions) {
		opts.engine = engine
	}
}

// New は設定からコンテナを生成します
func New(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	var db *database.Database

	// JobStore (PostgreSQL)
	store := options.store
	if store == nil {
		var err error
		db, err = database.New(ctx, database.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		store = pg.NewJobRepository(db.Pool)
	}

	// MediaFetcher (HTTP)
	fetcher := options.fetcher
	if fetcher == nil {
		fetcher = storage.NewHTTPFetcher()
	}

	// Engine (OpenAI Whisper + クォータフォールバック)
	engine := options.engine
	if engine == nil {
		if cfg.OpenAI.APIKey == "" {
			// キー未設定でも起動は許す。文字起こし要求は設定不備として失敗する
			options.logger.Warn("OPENAI_API_KEY is not set: transcription requests will fail")
			engine = whisper.UnconfiguredEngine{}
		} else {
			whisperEngine, err := whisper.NewEngine(
				cfg.OpenAI.APIKey,
				whisper.WithModel(cfg.OpenAI.Model),
				whisper.WithLanguage(cfg.OpenAI.Language),
			)
			if err != nil {
				if db != nil {
					db.Close()
				}
				return nil, fmt.Errorf("Whisperエンジン初期化に失敗しました: %w", err)
			}
			engine = whisper.NewQuotaFallback(whisperEngine, options.logger)
		}
	}

	// ジョブオーケストレーション一式
	policy := application.BackoffPolicy{
		Base:      cfg.Worker.BackoffBase,
		Max:       cfg.Worker.BackoffMax,
		Threshold: cfg.Worker.FailureThreshold,
	}
	window := application.NewFailureWindow(policy,
		application.WithSuspendDuration(cfg.Worker.SuspendDuration),
	)
	tracker := application.NewTracker()
	bus := application.NewEventBus(0)

	orchestrator := application.NewOrchestrator(
		store, fetcher, engine, tracker, window, bus,
		application.WithOrchestratorLogger(options.logger),
		application.WithFetchTimeout(cfg.Worker.FetchTimeout),
		application.WithTranscribeTimeout(cfg.Worker.TranscribeTimeout),
		application.WithStoreTimeout(cfg.Worker.StoreTimeout),
	)

	poller := application.NewPoller(store, orchestrator,
		application.WithPollInterval(cfg.Worker.PollInterval),
		application.WithPollBatchSize(cfg.Worker.PollBatchSize),
		application.WithPollerLogger(options.logger),
	)

	return &Container{
		Store:        store,
		Orchestrator: orchestrator,
		Poller:       poller,
		Events:       bus,
		logger:       options.logger,
		database:     db,
	}, nil
}

// Close は内部リソースを解放します
func (c *Container) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返します
func (c *Container) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
