package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/export"
)

type exportOptions struct {
	batchID int64
	format  string
	out     string
}

func exportCmd(opts *rootOptions) *cobra.Command {
	ex := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the items of a stored batch as CSV or Parquet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ex.batchID <= 0 {
				return fmt.Errorf("--batch is required")
			}
			if ex.format != export.FormatCSV && ex.format != export.FormatParquet {
				return fmt.Errorf("unknown format %q (csv or parquet)", ex.format)
			}

			appLogger := opts.newLogger(cmd)
			storage, closeDB, err := openStorage(cmd.Context(), loadConfig(), appLogger)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer closeDB()

			var w io.Writer = cmd.OutOrStdout()
			if ex.out != "" && ex.out != "-" {
				f, err := os.Create(ex.out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", ex.out, err)
				}
				defer f.Close()
				w = f
			}

			n, err := exportBatch(cmd, storage, ex, w)
			if err != nil {
				return err
			}
			appLogger.Info("Export", "Batch exported: batch=%d format=%s rows=%d out=%s", ex.batchID, ex.format, n, ex.out)
			return nil
		},
	}

	cmd.Flags().Int64Var(&ex.batchID, "batch", 0, "Batch id")
	cmd.Flags().StringVar(&ex.format, "format", export.FormatCSV, "Output format: csv or parquet")
	cmd.Flags().StringVar(&ex.out, "out", "-", "Output file, - for stdout")
	return cmd
}

func exportBatch(cmd *cobra.Command, storage *store.Storage, ex *exportOptions, w io.Writer) (int, error) {
	ctx := cmd.Context()

	batch, err := storage.Batch.GetByID(ctx, ex.batchID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("batch %d not found", ex.batchID)
	}
	if err != nil {
		return 0, err
	}

	items, err := storage.Item.ListByBatch(ctx, batch.ID)
	if err != nil {
		return 0, err
	}

	rows := export.Rows(*batch, items)
	return len(rows), export.Write(w, ex.format, rows)
}
