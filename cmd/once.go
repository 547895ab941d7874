package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"reelpost/internal/app"
	"reelpost/pkg/config"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single scheduler pass",
	Long: `Publish every scheduled post that is due now, then exit. Owners are
notified in Telegram when a bot token is configured.`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{WithBot: cfg.TelegramToken != ""})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	rep := service.RunOnce(ctx)
	if rep.Busy {
		slog.Warn("Skipped: another scheduler pass is running (is `reelpost run` active?)")
		return nil
	}
	slog.Info("Pass complete",
		"due", rep.Due,
		"published", rep.Published,
		"failed", rep.Failed,
		"skipped", rep.Skipped,
	)
	if rep.Failed > 0 {
		return fmt.Errorf("%d scheduled post(s) failed", rep.Failed)
	}
	return nil
}
