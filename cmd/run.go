package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"reelpost/internal/app"
	"reelpost/pkg/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot and the scheduler",
	Long: `Run the bot, the scheduled post loop, the settings watcher and, when
api.addr is set, the ops HTTP API. Stops on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN must be set")
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{WithBot: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			slog.Warn("Failed to close service", "error", err)
		}
	}()

	err = service.Run(ctx)
	slog.Info("Shutting down...")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
