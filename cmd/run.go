package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/app"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute a single ingestion run and exit",
		RunE:  runOnce,
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer services.Close()

	report, err := services.Pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	services.Logger.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("items", report.ItemsDiscovered),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("newly_finished", report.NewlyFinished),
		zap.Int("users_notified", report.UsersNotified),
	)
	for _, line := range report.Details {
		services.Logger.Info("detail", zap.String("line", line))
	}
	return nil
}
