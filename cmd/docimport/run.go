package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docimport/internal/core"
	"github.com/JonMunkholm/docimport/internal/schema"
	"github.com/JonMunkholm/docimport/internal/source"
)

type runOptions struct {
	collection   string
	rowsPath     string
	format       string
	settingsPath string
	mode         string
	compareField string
	locale       string
	mappings     []string
	principal    string
}

func newRunCmd(global *globalOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import rows from a CSV or JSON file",
		Long: `Reads rows from --rows (a CSV file with a header or a JSON array of objects,
"-" for stdin) and imports them into --collection. Settings come from a JSON
file with --settings, from flags, or both; flags win.

Prints the import result as JSON. Row failures are listed in the result and
do not change the exit status.`,
		Example: `  docimport run --collection products --rows products.csv \
    --mode upsert --compare sku --map SKU=sku --map "Image URL=image"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Target collection slug (required)")
	cmd.Flags().StringVarP(&opts.rowsPath, "rows", "r", "", "Row file, or - for stdin (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Row format: csv or json (default: from file extension)")
	cmd.Flags().StringVarP(&opts.settingsPath, "settings", "s", "", "JSON file with import settings")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Import mode: create, update, upsert")
	cmd.Flags().StringVar(&opts.compareField, "compare", "", "Field that identifies existing records")
	cmd.Flags().StringVar(&opts.locale, "locale", "", "Locale to write records in")
	cmd.Flags().StringArrayVarP(&opts.mappings, "map", "m", nil, "Column mapping SOURCE=FIELD (repeatable)")
	cmd.Flags().StringVar(&opts.principal, "as", "", "Principal name passed to computed defaults")

	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("rows")

	return cmd
}

func runImport(cmd *cobra.Command, global *globalOptions, opts runOptions) error {
	settings, err := opts.settings()
	if err != nil {
		return err
	}

	rows, err := opts.readRows(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := global.openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.principal != "" {
		ctx = core.ContextWithPrincipal(ctx, principal(opts.principal))
	}

	result, err := app.Service.Submit(ctx, core.Request{
		Collection: opts.collection,
		Data:       rows,
		Settings:   settings,
	})
	if err != nil {
		return importError(err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// settings merges the settings file with flag values.
func (o runOptions) settings() (core.ImportSettings, error) {
	var s core.ImportSettings
	if o.settingsPath != "" {
		data, err := os.ReadFile(o.settingsPath)
		if err != nil {
			return s, fmt.Errorf("read settings: %w", err)
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse settings %s: %w", o.settingsPath, err)
		}
	}

	if o.mode != "" {
		s.Mode = core.Mode(o.mode)
	}
	if o.compareField != "" {
		s.CompareField = o.compareField
	}
	if o.locale != "" {
		s.Locale = o.locale
	}
	for _, m := range o.mappings {
		src, field, ok := strings.Cut(m, "=")
		if !ok {
			return s, fmt.Errorf("invalid --map %q: want SOURCE=FIELD", m)
		}
		s.FieldMappings = append(s.FieldMappings, core.FieldMapping{
			CSVField:        strings.TrimSpace(src),
			CollectionField: strings.TrimSpace(field),
		})
	}
	if s.FieldMappings == nil {
		s.FieldMappings = []core.FieldMapping{}
	}
	return s, nil
}

func (o runOptions) readRows(stdin io.Reader) ([]core.Row, error) {
	format := source.Format(strings.ToLower(o.format))

	var r io.Reader = stdin
	if o.rowsPath != "-" {
		f, err := os.Open(o.rowsPath)
		if err != nil {
			return nil, fmt.Errorf("open rows: %w", err)
		}
		defer f.Close()
		r = f
		if format == "" {
			format = source.FormatFromPath(o.rowsPath)
		}
	}
	if format == "" {
		format = source.FormatJSON
	}

	rows, err := source.ReadRows(r, format)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func principal(name string) schema.Principal {
	return schema.Principal{ID: name, Name: name}
}

// importError renders a Submit failure with its support code and, for
// validation failures, every problem found. Errors without a specific
// message also carry the underlying cause.
func importError(err error) error {
	msg := core.FormatUserError(err)

	var verr *core.RequestValidationError
	switch {
	case errors.As(err, &verr):
		msg += "\n  - " + strings.Join(verr.Problems, "\n  - ")
	case !core.IsUserFacing(err):
		msg += "\n  cause: " + err.Error()
	}
	return errors.New(msg)
}
