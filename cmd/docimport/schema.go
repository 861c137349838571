package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/docimport/internal/application"
	"github.com/JonMunkholm/docimport/internal/config"
	"github.com/JonMunkholm/docimport/internal/core"
	"github.com/JonMunkholm/docimport/internal/schema"
)

func newSchemaCmd(global *globalOptions) *cobra.Command {
	var (
		collection string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List collections or the mappable fields of one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if err := application.LoadSchemas(cfg.Schema.File); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if collection == "" {
				return printCollections(out, schema.All(), asJSON)
			}

			coll, ok := schema.Get(collection)
			if !ok {
				return importError(fmt.Errorf("%w %q", core.ErrUnknownCollection, collection))
			}
			return printFields(out, schema.ExtractFields(coll), asJSON)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection to describe")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	// Describing schemas needs no store
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if global.store == "" {
			global.store = config.DriverMemory
		}
	}
	return cmd
}

func printCollections(w io.Writer, colls []schema.Collection, asJSON bool) error {
	if asJSON {
		type summary struct {
			Slug   string `json:"slug"`
			Label  string `json:"label"`
			Upload bool   `json:"upload"`
		}
		out := make([]summary, 0, len(colls))
		for _, c := range colls {
			out = append(out, summary{Slug: c.Slug, Label: c.Label, Upload: c.Upload})
		}
		return writeJSON(w, out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tLABEL\tUPLOAD")
	for _, c := range colls {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", c.Slug, c.Label, c.Upload)
	}
	return tw.Flush()
}

func printFields(w io.Writer, fields []schema.FieldInfo, asJSON bool) error {
	if asJSON {
		return writeJSON(w, fields)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tREQUIRED\tEXAMPLE")
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", f.Name, f.Type, f.Required, f.Example)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
