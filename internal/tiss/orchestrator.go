// Package tiss runs file ingestion jobs through a bounded worker pool and
// records every run in ingestion_history.
package tiss

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/load"
	"github.com/farxc/tiss_wrapper/internal/tiss/parser"
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
)

type IngestionJob struct {
	Path             string
	ClinicID         int64
	OperatorOverride *int64
	Trigger          string
	Attempt          int

	runID     uuid.UUID
	historyID int64
}

type IngestionResult struct {
	Job    IngestionJob
	Result load.Result
	Status string
	Error  error
}

// Summary totals the final outcome of every job of a run.
type Summary struct {
	RunID      uuid.UUID         `json:"run_id"`
	Succeeded  int               `json:"succeeded"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Results    []IngestionResult `json:"-"`
}

type Orchestrator struct {
	storage   *store.Storage
	ingester  *load.Ingester
	appLogger *logger.Logger

	// Settings
	maxConcurrency int
	retryLimit     int
	staleTimeout   time.Duration
	runID          uuid.UUID

	// Internal State
	statusMap map[string]store.IngestionHistory
	summary   Summary
	mu        sync.RWMutex
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	done      chan struct{}

	// Channels
	jobChan    chan IngestionJob
	resultChan chan IngestionResult
}

func NewOrchestrator(storage *store.Storage, ingester *load.Ingester, appLogger *logger.Logger, concurrency, retryLimit int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	if retryLimit < 1 {
		retryLimit = 1
	}
	runID := uuid.New()
	return &Orchestrator{
		storage:        storage,
		ingester:       ingester,
		appLogger:      appLogger,
		maxConcurrency: concurrency,
		retryLimit:     retryLimit,
		staleTimeout:   30 * time.Minute,
		runID:          runID,
		statusMap:      make(map[string]store.IngestionHistory),
		summary:        Summary{RunID: runID},
		done:           make(chan struct{}),
		jobChan:        make(chan IngestionJob, 100),
		resultChan:     make(chan IngestionResult, 100),
	}
}

func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// InitializeState loads the clinic's recent history so files that already
// finished are not ingested again.
func (o *Orchestrator) InitializeState(ctx context.Context, clinicID int64, since time.Time) error {
	const component = "Orchestrator-Init"
	o.appLogger.Info(component, "Syncing initial state from database: clinic=%d since=%s", clinicID, since.Format(time.DateOnly))

	history, err := o.storage.IngestionHistory.GetHistoryInRange(ctx, store.HistoryFilter{
		ClinicID: clinicID,
		From:     since,
		Limit:    10000,
	})
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, h := range history {
		key := stateKey(h.ClinicID, h.SourceFile)
		if existing, ok := o.statusMap[key]; !ok || h.ProcessedAt.After(existing.ProcessedAt) {
			o.statusMap[key] = h
		}
	}

	o.appLogger.Info(component, "State sync complete: knownFiles=%d", len(o.statusMap))
	return nil
}

func stateKey(clinicID int64, path string) string {
	return fmt.Sprintf("%d|%s", clinicID, filepath.Base(path))
}

// ShouldProcess is false for files that already succeeded or were found to be
// duplicates, and for runs still in progress that are not yet stale.
func (o *Orchestrator) ShouldProcess(clinicID int64, path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	h, ok := o.statusMap[stateKey(clinicID, path)]
	if !ok {
		return true
	}

	switch h.Status {
	case store.StatusInProgress:
		return time.Since(h.UpdatedAt) > o.staleTimeout
	case store.StatusSuccess, store.StatusDuplicate:
		return false
	}
	return true
}

func (o *Orchestrator) Start(ctx context.Context) {
	const component = "Orchestrator"
	o.appLogger.Info(component, "Starting orchestrator: run=%s concurrency=%d retryLimit=%d", o.runID, o.maxConcurrency, o.retryLimit)

	for i := 0; i < o.maxConcurrency; i++ {
		o.wg.Add(1)
		go o.worker(ctx, &o.wg)
	}

	go o.listenToResults()
}

// AddJob queues a job. Jobs that ShouldProcess rejects are counted as skipped.
func (o *Orchestrator) AddJob(job IngestionJob) {
	if !o.ShouldProcess(job.ClinicID, job.Path) {
		o.appLogger.Info("Orchestrator", "Skipping already processed file: %s", job.Path)
		o.mu.Lock()
		o.summary.Skipped++
		o.mu.Unlock()
		return
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	job.runID = o.runID
	o.pending.Add(1)
	o.jobChan <- job
}

// Wait blocks until every queued job, retries included, reached a final
// state, then stops the workers and returns the run summary.
func (o *Orchestrator) Wait() Summary {
	o.pending.Wait()
	close(o.jobChan)
	o.wg.Wait()
	close(o.resultChan)
	<-o.done

	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.summary
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup) {
	const component = "Worker"
	defer wg.Done()

	for job := range o.jobChan {
		o.appLogger.Debug(component, "Processing job: file=%s attempt=%d", job.Path, job.Attempt)
		o.resultChan <- o.Process(ctx, job)
	}
}

// Process runs one attempt of job synchronously and records it in
// ingestion_history.
func (o *Orchestrator) Process(ctx context.Context, job IngestionJob) IngestionResult {
	const component = "Processor"

	if job.Attempt == 0 {
		job.Attempt = 1
	}
	if job.runID == uuid.Nil {
		job.runID = o.runID
	}

	history := &store.IngestionHistory{
		ID:          job.historyID,
		RunID:       job.runID,
		ClinicID:    job.ClinicID,
		SourceFile:  filepath.Base(job.Path),
		TriggerType: job.Trigger,
		Status:      store.StatusInProgress,
		Attempt:     job.Attempt,
	}

	if history.ID == 0 {
		if err := o.storage.IngestionHistory.InsertIngestionHistory(ctx, history); err != nil {
			o.appLogger.Error(component, "Failed to create IN_PROGRESS record: file=%s err=%v", job.Path, err)
			return IngestionResult{Job: job, Status: store.StatusFailure, Error: err}
		}
		job.historyID = history.ID
	}

	result := o.ingestFile(ctx, job)

	history.Status = result.Status
	history.Attempt = job.Attempt
	if result.Result.BatchID != 0 {
		id := result.Result.BatchID
		history.BatchID = &id
	}
	if result.Error != nil {
		history.ErrorMessage = result.Error.Error()
	}

	if err := o.storage.IngestionHistory.UpdateIngestionStatus(ctx, history); err != nil {
		o.appLogger.Error(component, "Failed to update final status: id=%d status=%s err=%v", history.ID, history.Status, err)
	}
	return result
}

// Run processes job synchronously, retrying persistence failures up to the
// retry limit. All attempts share one history row.
func (o *Orchestrator) Run(ctx context.Context, job IngestionJob) IngestionResult {
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	for {
		res := o.Process(ctx, job)
		if res.Error == nil || !retryable(res.Error) || res.Job.Attempt >= o.retryLimit || ctx.Err() != nil {
			return res
		}
		o.appLogger.Warn("Processor", "Retrying file=%s attempt=%d err=%v", job.Path, res.Job.Attempt, res.Error)
		job = res.Job
		job.Attempt++
	}
}

func (o *Orchestrator) ingestFile(ctx context.Context, job IngestionJob) IngestionResult {
	doc, err := parser.ParseFile(job.Path)
	if err != nil {
		return IngestionResult{Job: job, Status: store.StatusFailure, Error: err}
	}

	res, err := o.ingester.Ingest(ctx, doc, job.ClinicID, job.OperatorOverride, load.WithSourceFile(filepath.Base(job.Path)))
	if err != nil {
		return IngestionResult{Job: job, Status: store.StatusFailure, Error: err}
	}

	status := store.StatusSuccess
	if res.Duplicate {
		status = store.StatusDuplicate
	}
	return IngestionResult{Job: job, Result: res, Status: status}
}

// retryable reports whether running the job again may succeed. Only store
// failures qualify. A rolled back ingestion leaves nothing behind, so a retry
// cannot duplicate rows.
func retryable(err error) bool {
	return errors.Is(err, types.ErrPersistenceFailure) && !errors.Is(err, context.Canceled)
}

func (o *Orchestrator) listenToResults() {
	const component = "Orchestrator-Feedback"
	defer close(o.done)

	for result := range o.resultChan {
		job := result.Job

		if result.Error != nil && retryable(result.Error) && job.Attempt < o.retryLimit {
			o.appLogger.Warn(component, "Job failed, queuing for retry: file=%s attempt=%d err=%v", job.Path, job.Attempt, result.Error)
			job.Attempt++
			go func(j IngestionJob) { o.jobChan <- j }(job)
			continue
		}

		o.mu.Lock()
		switch {
		case result.Error != nil:
			o.summary.Failed++
			o.appLogger.Error(component, "Job failed: file=%s attempts=%d err=%v", job.Path, job.Attempt, result.Error)
		case result.Status == store.StatusDuplicate:
			o.summary.Duplicates++
			o.appLogger.Info(component, "Job resolved to existing batch: file=%s batch=%d", job.Path, result.Result.BatchID)
		default:
			o.summary.Succeeded++
			o.appLogger.Info(component, "Job completed successfully: file=%s batch=%d", job.Path, result.Result.BatchID)
		}
		o.summary.Results = append(o.summary.Results, result)
		o.statusMap[stateKey(job.ClinicID, job.Path)] = store.IngestionHistory{
			Status:      result.Status,
			SourceFile:  filepath.Base(job.Path),
			ProcessedAt: time.Now(),
			UpdatedAt:   time.Now(),
		}
		o.mu.Unlock()

		o.pending.Done()
	}
}
