// Package application assembles the import service from configuration. Both
// the HTTP server and the CLI start here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/JonMunkholm/docimport/internal/collections" // Register built-in collections
	"github.com/JonMunkholm/docimport/internal/config"
	"github.com/JonMunkholm/docimport/internal/core"
	"github.com/JonMunkholm/docimport/internal/schema"
	"github.com/JonMunkholm/docimport/internal/store"
)

// App holds the opened store and the service bound to it.
type App struct {
	Config  *config.Config
	Store   store.MediaStore
	Service *core.Service

	logger  *slog.Logger
	closers []func() error
}

// Open loads the schema file, opens the configured store and builds the
// service. Call Close when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, logger: logger}

	if err := LoadSchemas(cfg.Schema.File); err != nil {
		return nil, err
	}
	logger.Info("collections registered", "count", schema.Count())

	st, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = st

	fetcher := core.NewHTTPFetcher(core.HTTPFetcherConfig{
		Timeout:           cfg.Media.FetchTimeout,
		MaxBytes:          cfg.Media.MaxBytes,
		RequestsPerSecond: cfg.Media.RequestsPerSecond,
		Burst:             cfg.Media.Burst,
		UserAgent:         cfg.Media.UserAgent,
	})

	app.Service = core.NewService(st, schema.Registered, ServiceOptions(cfg.Import), logger, core.WithFetcher(fetcher))
	return app, nil
}

// ServiceOptions converts import settings to service options.
func ServiceOptions(c config.ImportConfig) core.Options {
	return core.Options{
		MaxConcurrent:  c.MaxConcurrent,
		MaxWait:        c.MaxWaitTime,
		Timeout:        c.Timeout,
		MapConcurrency: c.MapConcurrency,
		DefaultLocale:  c.DefaultLocale,
		Details:        c.DebugDetails,
	}
}

// LoadSchemas registers the collections defined in path. An empty path is a
// no-op.
func LoadSchemas(path string) error {
	if path == "" {
		return nil
	}
	cols, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if err := schema.Add(c); err != nil {
			return fmt.Errorf("schema file %s: %w", path, err)
		}
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (store.MediaStore, error) {
	cfg := a.Config.Store

	switch strings.ToLower(cfg.Driver) {
	case config.DriverMemory:
		a.logger.Warn("using in-memory store; imported records are lost on exit")
		return store.NewMemory(), nil

	case config.DriverSQLite:
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		a.logger.Info("connected to sqlite", "path", st.Path())
		return st, nil

	case config.DriverPostgres:
		st, err := store.OpenPostgres(ctx, cfg.URL, store.PoolOptions{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { st.Close(); return nil })
		a.logger.Info("connected to database", "name", store.DatabaseName(cfg.URL))
		return st, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
