package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ending-signal/crawler/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			version, err := postgres.Migrate(cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Printf("database schema at version %d\n", version)
			return nil
		},
	}
}
