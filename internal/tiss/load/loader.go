// Package load writes parsed TISS documents to the relational store.
package load

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
)

// Result describes a finished ingestion. Duplicate is true when the batch
// already existed and nothing was written.
type Result struct {
	BatchID       int64 `json:"batch_id"`
	Duplicate     bool  `json:"duplicate"`
	Guides        int   `json:"guides"`
	Procedures    int   `json:"procedures"`
	Expenses      int   `json:"expenses"`
	Professionals int   `json:"professionals"`
}

// Items is the number of item rows the ingestion created.
func (r Result) Items() int {
	return r.Guides + r.Procedures + r.Expenses
}

type Ingester struct {
	storage   *store.Storage
	appLogger *logger.Logger
	timeout   time.Duration
}

// NewIngester builds an Ingester. A zero timeout means no deadline beyond the
// caller's context.
func NewIngester(storage *store.Storage, appLogger *logger.Logger, timeout time.Duration) *Ingester {
	return &Ingester{storage: storage, appLogger: appLogger, timeout: timeout}
}

type ingestOptions struct {
	sourceFile string
}

type Option func(*ingestOptions)

// WithSourceFile records where the document came from on the batch and in its
// history.
func WithSourceFile(name string) Option {
	return func(o *ingestOptions) { o.sourceFile = name }
}

type operatorIdentity struct {
	registry string
	name     string
}

// Ingest stores doc for clinicID. A batch that already exists under the same
// (clinic, batch number, operator registry) is returned as a duplicate
// without any write. Everything else happens in a single transaction, so a
// failure leaves nothing behind.
func (in *Ingester) Ingest(ctx context.Context, doc *types.Document, clinicID int64, operatorOverride *int64, opts ...Option) (Result, error) {
	const component = "Ingester"

	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}

	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	op, err := in.resolveOperator(ctx, doc, operatorOverride)
	if err != nil {
		return Result{}, &types.IngestionError{Stage: types.StageOperator, Err: err}
	}

	existing, err := in.storage.Batch.FindByNaturalKey(ctx, clinicID, doc.Batch.Number, op.registry)
	switch {
	case err == nil:
		in.appLogger.Warn(component, "Batch already ingested, skipping: clinic=%d lote=%s ans=%s id=%d", clinicID, doc.Batch.Number, op.registry, existing.ID)
		return Result{BatchID: existing.ID, Duplicate: true}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, &types.IngestionError{Stage: types.StageLookup, Err: err}
	}

	if match, comparable := doc.HashMatches(); comparable && !match {
		in.appLogger.Warn(component, "Hash mismatch on lote=%s: declared=%s computed=%s", doc.Batch.Number, doc.Hash, doc.ComputedHash)
	}
	for _, gap := range doc.Gaps {
		in.appLogger.Debug(component, "Validation gap on lote=%s: %s", doc.Batch.Number, gap)
	}

	var result Result
	err = in.storage.Tx.WithTx(ctx, func(tx *store.Storage) error {
		result = Result{}
		return in.write(ctx, tx, doc, clinicID, op, o.sourceFile, &result)
	})

	if errors.Is(err, store.ErrDuplicateBatch) {
		// Lost the race against a concurrent ingestion of the same batch.
		existing, lookupErr := in.storage.Batch.FindByNaturalKey(ctx, clinicID, doc.Batch.Number, op.registry)
		if lookupErr != nil {
			return Result{}, &types.IngestionError{Stage: types.StageLookup, Err: lookupErr}
		}
		in.appLogger.Warn(component, "Batch inserted concurrently, returning existing: lote=%s id=%d", doc.Batch.Number, existing.ID)
		return Result{BatchID: existing.ID, Duplicate: true}, nil
	}
	if err != nil {
		var ingestionErr *types.IngestionError
		if errors.As(err, &ingestionErr) {
			in.appLogger.Error(component, "Ingestion rolled back: lote=%s stage=%s err=%v", doc.Batch.Number, ingestionErr.Stage, ingestionErr.Err)
			return Result{}, ingestionErr
		}
		in.appLogger.Error(component, "Ingestion rolled back: lote=%s err=%v", doc.Batch.Number, err)
		return Result{}, &types.IngestionError{Stage: types.StageCommit, BatchID: result.BatchID, Err: err}
	}

	in.appLogger.Info(component, "Batch ingested: id=%d lote=%s guides=%d procedures=%d expenses=%d", result.BatchID, doc.Batch.Number, result.Guides, result.Procedures, result.Expenses)
	return result, nil
}

func (in *Ingester) resolveOperator(ctx context.Context, doc *types.Document, override *int64) (operatorIdentity, error) {
	const component = "Ingester"
	fromDoc := operatorIdentity{registry: doc.Operator.RegistryID, name: doc.Operator.Name}

	if override == nil {
		return fromDoc, nil
	}

	op, err := in.storage.Operator.GetByID(ctx, *override)
	if errors.Is(err, store.ErrNotFound) {
		in.appLogger.Warn(component, "Operator override %d not found, using document values ans=%s", *override, fromDoc.registry)
		return fromDoc, nil
	}
	if err != nil {
		return operatorIdentity{}, fmt.Errorf("failed to resolve operator %d: %w", *override, err)
	}
	if op.RegistryID == "" {
		return fromDoc, nil
	}
	return operatorIdentity{registry: op.RegistryID, name: op.Name}, nil
}

// write performs every insert of one ingestion against tx. Guides are written
// before their children.
func (in *Ingester) write(ctx context.Context, tx *store.Storage, doc *types.Document, clinicID int64, op operatorIdentity, sourceFile string, result *Result) error {
	batch := toBatch(doc, clinicID, op, sourceFile)
	if err := tx.Batch.Insert(ctx, batch); err != nil {
		if errors.Is(err, store.ErrDuplicateBatch) {
			return err
		}
		return &types.IngestionError{Stage: types.StageBatch, Err: err}
	}
	result.BatchID = batch.ID

	fail := func(stage string, err error) error {
		return &types.IngestionError{Stage: stage, BatchID: batch.ID, Err: err}
	}

	for i := range doc.Guides {
		g := &doc.Guides[i]

		guide := toGuideItem(g, batch.ID, clinicID, i+1)
		if err := tx.Item.Insert(ctx, guide); err != nil {
			return fail(types.StageGuide, err)
		}
		result.Guides++

		for j := range g.Procedures {
			if err := tx.Item.Insert(ctx, toProcedureItem(&g.Procedures[j], guide)); err != nil {
				return fail(types.StageProcedure, err)
			}
			result.Procedures++
		}

		for j := range g.Expenses {
			if err := tx.Item.Insert(ctx, toExpenseItem(&g.Expenses[j], guide)); err != nil {
				return fail(types.StageExpense, err)
			}
			result.Expenses++
		}

		linked, err := linkProfessionals(ctx, tx, g, guide)
		if err != nil {
			return fail(types.StageProfessional, err)
		}
		result.Professionals += linked
	}

	entry := &store.BatchHistoryEntry{
		BatchID: batch.ID,
		Event:   store.EventImported,
		File:    sourceFile,
		Detail:  fmt.Sprintf("%d guias, %d procedimentos, %d despesas", result.Guides, result.Procedures, result.Expenses),
	}
	if err := tx.BatchHistory.Insert(ctx, entry); err != nil {
		return fail(types.StageHistory, err)
	}
	return nil
}

// linkProfessionals upserts the requesting professional and every execution
// team member of the guide and links them with their role.
func linkProfessionals(ctx context.Context, tx *store.Storage, g *types.Guide, guide *store.Item) (int, error) {
	type candidate struct {
		prof *store.Professional
		role string
	}
	var candidates []candidate

	if r := g.Requester; r != nil && r.Professional != nil {
		if p := toProfessional(*r.Professional, "", guide.ClinicID, guide.BatchID); p != nil {
			candidates = append(candidates, candidate{p, store.RoleRequester})
		}
	}
	for _, proc := range g.Procedures {
		for _, m := range proc.Team {
			if p := toProfessional(m.Professional, m.CPF, guide.ClinicID, guide.BatchID); p != nil {
				candidates = append(candidates, candidate{p, store.RoleExecutor})
			}
		}
	}

	seen := make(map[string]bool, len(candidates))
	linked := 0
	for _, c := range candidates {
		key := c.role + "|" + c.prof.Council + "|" + c.prof.CouncilNumber + "|" + c.prof.State
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := tx.Professional.Upsert(ctx, c.prof); err != nil {
			return linked, err
		}
		link := &store.GuideProfessional{GuideItemID: guide.ID, ProfessionalID: c.prof.ID, Role: c.role}
		if err := tx.Professional.Link(ctx, link); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}
