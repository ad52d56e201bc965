package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Msaezcardenas/video-transcription-worker/internal/platform/config"
	"github.com/Msaezcardenas/video-transcription-worker/internal/platform/container"
	"github.com/Msaezcardenas/video-transcription-worker/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持します
type AppContext struct {
	Config    *config.Config
	Container *container.Container
}

// NewAppContext は設定ファイルを読み込み、依存関係を組み立てて AppContext を作成します
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	// 設定の読み込み
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化
	appLogger := logger.New(logger.FromEnv(cfg.LogLevel, cfg.LogFormat))

	// コンテナの初期化
	cont, err := container.New(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップします
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返します
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
