package main

import (
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/pricewatch/internal/config"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/spf13/cobra"
)

func migrateCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = c.Database.MigrationsDir
			}

			slog.Info("running migrations", "dir", dir)
			if err := store.RunMigrations(c.Database.URL, dir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().String("dir", "", "migrations directory (default: $MIGRATIONS_DIR)")
	return cmd
}
