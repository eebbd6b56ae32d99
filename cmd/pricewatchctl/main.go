// Command pricewatchctl runs database migrations and manages API keys for the
// pricewatch server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/pricewatch/internal/config"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/spf13/cobra"
)

// keyStoreOpener returns a KeyStore and a func that releases it.
type keyStoreOpener func(ctx context.Context, cfg *config.Config) (store.KeyStore, func(), error)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(openPostgres).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open keyStoreOpener) *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "pricewatchctl",
		Short:         "Administer a pricewatch deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	current := func() *config.Config { return cfg }
	root.AddCommand(migrateCmd(current))
	root.AddCommand(apiKeyCmd(current, open))
	return root
}

func openPostgres(ctx context.Context, cfg *config.Config) (store.KeyStore, func(), error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}
