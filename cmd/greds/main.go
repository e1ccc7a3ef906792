// Command greds is the hybrid retrieval and citation verification CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/greds/internal/adapters/driven/config/file"
	"github.com/custodia-labs/greds/internal/adapters/driving/cli"
	"github.com/custodia-labs/greds/internal/app"
	"github.com/custodia-labs/greds/internal/core/services"
	"github.com/custodia-labs/greds/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// API keys may live in a .env file next to the working directory.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	err := cli.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap builds the services a command needs from the config file.
func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (cli.Services, func() error, error) {
	store, err := file.NewConfigStore(opts.ConfigPath)
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("resolving config path: %w", err)
	}
	settingsService := services.NewSettingsService(store)

	if opts.SettingsOnly {
		return cli.Services{Settings: settingsService}, nil, nil
	}

	settings, err := store.Load()
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, settings, app.WithConfigStore(store))
	if err != nil {
		return cli.Services{}, nil, err
	}
	if a.Degraded {
		logger.Warn("embedding provider unavailable, searching lexical only")
	}

	return cli.Services{
		Ingest:   a.Ingest,
		Search:   a.Search,
		Verifier: a.Verifier,
		Session:  a.Session,
		Settings: a.SettingsStore,
		Audit:    a.AuditLog,
	}, a.Close, nil
}
