package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss"
	"github.com/farxc/tiss_wrapper/internal/tiss/files"
	"github.com/farxc/tiss_wrapper/internal/tiss/load"
)

type ingestOptions struct {
	clinicID      int64
	operatorID    int64
	workers       int
	trigger       string
	skipProcessed bool
	lookback      time.Duration
}

func ingestCmd(opts *rootOptions) *cobra.Command {
	in := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest <file|dir|zip>...",
		Short: "Ingest TISS XML files, directories of XMLs or zips of XMLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const component = "Main"
			if in.clinicID <= 0 {
				return fmt.Errorf("--clinic is required")
			}

			appLogger := opts.newLogger(cmd)
			cfg := loadConfig()
			if !cmd.Flags().Changed("workers") {
				in.workers = cfg.ingest.workers
			}

			monitor := NewMonitor()
			monitor.Start(400*time.Millisecond, appLogger)
			startingTime := time.Now()

			storage, closeDB, err := openStorage(cmd.Context(), cfg, appLogger)
			if err != nil {
				monitor.Stop()
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer closeDB()

			paths, cleanup, err := files.Collect(cmd.Context(), args, cfg.ingest.workDir, appLogger)
			if err != nil {
				monitor.Stop()
				return err
			}
			defer cleanup()
			appLogger.Info(component, "Inputs collected: files=%d workers=%d", len(paths), in.workers)

			timeout, err := time.ParseDuration(cfg.ingest.timeout)
			if err != nil {
				monitor.Stop()
				return fmt.Errorf("invalid INGEST_TIMEOUT %q: %w", cfg.ingest.timeout, err)
			}

			summary, err := runIngestion(cmd, storage, load.NewIngester(storage, appLogger, timeout), appLogger, cfg, in, paths)
			stats := monitor.Stop()
			if err != nil {
				return err
			}

			appLogger.Info(component, "Ingestion finished: duration=%.2fs succeeded=%d duplicates=%d failed=%d skipped=%d peakGoroutines=%d peakHeapMB=%d",
				time.Since(startingTime).Seconds(), summary.Succeeded, summary.Duplicates, summary.Failed, summary.Skipped, stats.PeakGoroutines, stats.PeakHeapMB)

			if err := printSummary(cmd, summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d file(s) failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&in.clinicID, "clinic", 0, "Clinic id the batches belong to")
	cmd.Flags().Int64Var(&in.operatorID, "operator", 0, "Operator registry id overriding the document's (0 keeps the document's)")
	cmd.Flags().IntVar(&in.workers, "workers", 4, "Concurrent files (default $INGEST_WORKERS)")
	cmd.Flags().StringVar(&in.trigger, "trigger", store.TriggerTypeCLI, "Trigger recorded in ingestion history: cli, manual")
	cmd.Flags().BoolVar(&in.skipProcessed, "skip-processed", false, "Skip files that already succeeded for this clinic")
	cmd.Flags().DurationVar(&in.lookback, "lookback", 30*24*time.Hour, "History window consulted by --skip-processed")

	return cmd
}

func runIngestion(cmd *cobra.Command, storage *store.Storage, ingester *load.Ingester, appLogger *logger.Logger, cfg config, in *ingestOptions, paths []string) (tiss.Summary, error) {
	ctx := cmd.Context()

	orchestrator := tiss.NewOrchestrator(storage, ingester, appLogger, in.workers, cfg.ingest.retryLimit)
	if in.skipProcessed {
		if err := orchestrator.InitializeState(ctx, in.clinicID, time.Now().Add(-in.lookback)); err != nil {
			return tiss.Summary{}, err
		}
	}

	var override *int64
	if in.operatorID > 0 {
		override = &in.operatorID
	}

	orchestrator.Start(ctx)
	for _, p := range paths {
		orchestrator.AddJob(tiss.IngestionJob{
			Path:             p,
			ClinicID:         in.clinicID,
			OperatorOverride: override,
			Trigger:          in.trigger,
		})
	}
	return orchestrator.Wait(), nil
}

type fileOutcome struct {
	File     string `json:"file"`
	Status   string `json:"status"`
	BatchID  int64  `json:"batch_id,omitempty"`
	Items    int    `json:"items"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func printSummary(cmd *cobra.Command, summary tiss.Summary) error {
	outcomes := make([]fileOutcome, 0, len(summary.Results))
	for _, r := range summary.Results {
		o := fileOutcome{
			File:     r.Job.Path,
			Status:   r.Status,
			BatchID:  r.Result.BatchID,
			Items:    r.Result.Items(),
			Attempts: r.Job.Attempt,
		}
		if r.Error != nil {
			o.Error = r.Error.Error()
		}
		outcomes = append(outcomes, o)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		tiss.Summary
		Files []fileOutcome `json:"files"`
	}{summary, outcomes})
}
