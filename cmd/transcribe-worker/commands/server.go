package commands

import (
	"context"

	"github.com/Msaezcardenas/video-transcription-worker/internal/interface/httpapi"
	"github.com/urfave/cli/v3"
)

// ServerStartAction はWebhook受付HTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	log := appCtx.Logger()
	cont := appCtx.Container

	port := int(cmd.Int("port"))
	if port == 0 {
		port = appCtx.Config.Server.Port
	}

	// 処理待ちジョブの定期走査
	if appCtx.Config.Worker.PollEnabled {
		go cont.Poller.Run(ctx)
	}

	handler := httpapi.NewHandler(
		cont.Orchestrator,
		cont.Store,
		cont.Events,
		appCtx.Config.OpenAI.APIKey != "",
		log,
	)
	server := httpapi.NewServer(port, handler, log)

	if err := server.Run(ctx); err != nil {
		return err
	}

	// 受付を止めた後、進行中のパイプラインを出し切る
	log.Info("Draining in-flight jobs")
	drainCtx, cancel := context.WithTimeout(context.Background(), httpapi.DefaultShutdownTimeout)
	defer cancel()
	if err := cont.Orchestrator.Drain(drainCtx); err != nil {
		log.Warn("Shutdown with jobs still in flight", "error", err)
	}

	return nil
}
