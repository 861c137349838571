package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docimport/internal/application"
	"github.com/JonMunkholm/docimport/internal/config"
	"github.com/JonMunkholm/docimport/internal/logging"
)

// globalOptions are flags shared by every subcommand. Set flags override
// the matching environment variables.
type globalOptions struct {
	schemaFile string
	store      string
	sqlitePath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:           "docimport",
		Short:         "Import rows into document collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.schemaFile, "schema-file", "", "YAML collection definitions (overrides SCHEMA_FILE)")
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Store driver: postgres, sqlite, memory (overrides STORE_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.sqlitePath, "sqlite-path", "", "SQLite database file (overrides SQLITE_PATH)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	cmd.AddCommand(newRunCmd(&opts))
	cmd.AddCommand(newSchemaCmd(&opts))
	return cmd
}

// loadConfig reads the environment with flag overrides applied.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	overrides := map[string]string{
		"SCHEMA_FILE":  o.schemaFile,
		"STORE_DRIVER": o.store,
		"SQLITE_PATH":  o.sqlitePath,
	}
	return config.LoadWith(func(key string) string {
		if v := overrides[key]; v != "" {
			return v
		}
		return os.Getenv(key)
	})
}

// logger writes to stderr so stdout carries only results.
func (o *globalOptions) logger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return logging.New(w, level, cfg.Logging.Format)
}

// openApp loads configuration and opens the store.
func (o *globalOptions) openApp(ctx context.Context, cmd *cobra.Command) (*application.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return application.Open(ctx, cfg, o.logger(cmd.ErrOrStderr(), cfg))
}
