package commands

import (
	"context"
	"fmt"

	"github.com/Msaezcardenas/video-transcription-worker/internal/module/transcription/application"
	"github.com/urfave/cli/v3"
)

// JobProcessAction は単一ジョブを投入し、パイプラインの完了を待つコマンドのアクション
func JobProcessAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	responseID := cmd.String("response-id")
	videoURL := cmd.String("video-url")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	orchestrator := appCtx.Container.Orchestrator

	result, err := orchestrator.Submit(ctx, responseID, videoURL)
	if err != nil {
		return err
	}
	if result != application.SubmitAccepted {
		return fmt.Errorf("job was not accepted: %s", result)
	}

	// CLIでは終端結果まで待つ
	orchestrator.Wait()

	events := orchestrator.Events().Since(0)
	for _, event := range events {
		if event.JobID != responseID {
			continue
		}
		switch event.Type {
		case application.EventTypeCompleted:
			fmt.Printf("job %s completed\n", responseID)
			return nil
		case application.EventTypeFailed:
			return fmt.Errorf("job %s failed: %s", responseID, event.Cause)
		case application.EventTypePersistenceError:
			return fmt.Errorf("job %s: status store write failed: %s", responseID, event.Cause)
		}
	}

	return nil
}

// JobPendingAction は処理待ちジョブを1回走査して投入するコマンドのアクション
func JobPendingAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Container.Poller.Scan(ctx)
	appCtx.Container.Orchestrator.Wait()

	return nil
}
