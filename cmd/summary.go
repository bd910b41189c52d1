package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/argh/internal/db"
	"github.com/wesm/argh/internal/models"
	"github.com/wesm/argh/internal/report"
)

func newSummaryCmd(a *app) *cobra.Command {
	var dbPath string
	var printTables bool
	var top int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Export the aggregate views of the store as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.syncer(nil, nil)
			if dbPath == "" {
				dbPath = s.StorePath()
			}

			files, err := s.Summarize(cmd.Context(), dbPath)
			fmt.Fprintf(a.out, "Wrote %d summary files\n", len(files))
			if err != nil {
				return err
			}
			if printTables {
				return printSummaries(cmd.Context(), a, dbPath, top)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Store to summarize (default: the repository's store under db/)")
	cmd.Flags().BoolVar(&printTables, "print", false, "Also print label tables to the terminal")
	cmd.Flags().IntVar(&top, "top", 20, "Rows per printed table (0 for all)")
	return cmd
}

func printSummaries(ctx context.Context, a *app, path string, top int) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, kind := range models.ReportKinds {
		freq, err := store.LabelFrequency(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, report.RenderLabelFrequency(kind, freq, top))

		breakdown, err := store.LabelStateBreakdown(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, report.RenderStateBreakdown(kind, breakdown, top))
	}
	return nil
}
