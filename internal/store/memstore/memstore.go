// Package memstore is an in-memory store.Storage for tests and dry runs. It
// enforces the same natural keys and item hierarchy as the SQL schema and
// gives WithTx snapshot isolation with rollback.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/farxc/tiss_wrapper/internal/store"
)

// Operation names passed to Fault.
const (
	OpBatchInsert     = "batch.insert"
	OpItemInsert      = "item.insert"
	OpProfessional    = "professional.upsert"
	OpLink            = "professional.link"
	OpHistoryInsert   = "history.insert"
	OpIngestionInsert = "ingestion.insert"
	OpIngestionUpdate = "ingestion.update"
	OpOperatorGet     = "operator.get"
	OpBatchLookup     = "batch.lookup"
)

type data struct {
	nextID        int64
	batches       map[int64]store.Batch
	items         map[int64]store.Item
	professionals map[int64]store.Professional
	links         []store.GuideProfessional
	history       []store.BatchHistoryEntry
	operators     map[int64]store.Operator
	ingestions    map[int64]store.IngestionHistory
}

func newData() *data {
	return &data{
		batches:       map[int64]store.Batch{},
		items:         map[int64]store.Item{},
		professionals: map[int64]store.Professional{},
		operators:     map[int64]store.Operator{},
		ingestions:    map[int64]store.IngestionHistory{},
	}
}

func (d *data) clone() *data {
	c := &data{
		nextID:        d.nextID,
		batches:       make(map[int64]store.Batch, len(d.batches)),
		items:         make(map[int64]store.Item, len(d.items)),
		professionals: make(map[int64]store.Professional, len(d.professionals)),
		links:         append([]store.GuideProfessional(nil), d.links...),
		history:       append([]store.BatchHistoryEntry(nil), d.history...),
		operators:     make(map[int64]store.Operator, len(d.operators)),
		ingestions:    make(map[int64]store.IngestionHistory, len(d.ingestions)),
	}
	for k, v := range d.batches {
		c.batches[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.professionals {
		c.professionals[k] = v
	}
	for k, v := range d.operators {
		c.operators[k] = v
	}
	for k, v := range d.ingestions {
		c.ingestions[k] = v
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// DB is the shared state behind one or more Storage views.
type DB struct {
	mu   sync.Mutex
	data *data

	// Fault, when set, is consulted before every write or lookup and may
	// return an error to simulate a failing database.
	Fault func(op string) error
}

func New() *DB {
	return &DB{data: newData()}
}

// Storage returns a store.Storage backed by db.
func (db *DB) Storage() *store.Storage {
	return db.view(func() *data { return db.data }, nil)
}

// view builds a Storage over the state returned by cur. A non-nil tx means
// the caller already holds db.mu.
func (db *DB) view(cur func() *data, tx *txState) *store.Storage {
	v := &memView{db: db, cur: cur, tx: tx}
	s := &store.Storage{
		Batch:            &batchStore{v},
		Item:             &itemStore{v},
		Professional:     &professionalStore{v},
		Operator:         &operatorStore{v},
		BatchHistory:     &batchHistoryStore{v},
		IngestionHistory: &ingestionStore{v},
		Report:           &reportStore{v},
	}
	s.Tx = &txStore{db: db, tx: tx, storage: s}
	return s
}

type txState struct {
	work *data
}

type memView struct {
	db  *DB
	cur func() *data
	tx  *txState
}

// do runs fn with the state locked, unless inside a transaction which
// already holds the lock.
func (v *memView) do(op string, fn func(d *data) error) error {
	if v.tx == nil {
		v.db.mu.Lock()
		defer v.db.mu.Unlock()
	}
	if v.db.Fault != nil {
		if err := v.db.Fault(op); err != nil {
			return err
		}
	}
	return fn(v.cur())
}

type txStore struct {
	db      *DB
	tx      *txState
	storage *store.Storage
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx *store.Storage) error) error {
	if t.tx != nil {
		return fn(t.storage)
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	state := &txState{work: t.db.data.clone()}
	txStorage := t.db.view(func() *data { return state.work }, state)

	if err := fn(txStorage); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.db.data = state.work
	return nil
}

// Counts reports the number of batches and items currently committed.
func (db *DB) Counts() (batches, items int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.data.batches), len(db.data.items)
}

// Items returns every committed item ordered by id.
func (db *DB) Items() []store.Item {
	db.mu.Lock()
	defer db.mu.Unlock()
	return sortedItems(db.data.items, func(store.Item) bool { return true })
}

// Links returns every committed guide-professional link.
func (db *DB) Links() []store.GuideProfessional {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]store.GuideProfessional(nil), db.data.links...)
}

func sortedItems(all map[int64]store.Item, keep func(store.Item) bool) []store.Item {
	out := []store.Item{}
	for _, it := range all {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type batchStore struct{ v *memView }

func (s *batchStore) Insert(_ context.Context, b *store.Batch) error {
	return s.v.do(OpBatchInsert, func(d *data) error {
		for _, existing := range d.batches {
			if existing.ClinicID == b.ClinicID && existing.Number == b.Number && existing.OperatorRegistry == b.OperatorRegistry {
				return store.ErrDuplicateBatch
			}
		}
		if b.Status == "" {
			b.Status = store.BatchStatusPending
		}
		now := time.Now()
		b.ID = d.id()
		b.InsertedAt, b.UpdatedAt = now, now
		d.batches[b.ID] = *b
		return nil
	})
}

func (s *batchStore) GetByID(_ context.Context, id int64) (*store.Batch, error) {
	var out *store.Batch
	err := s.v.do(OpBatchLookup, func(d *data) error {
		b, ok := d.batches[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (s *batchStore) FindByNaturalKey(_ context.Context, clinicID int64, number, registry string) (*store.Batch, error) {
	var out *store.Batch
	err := s.v.do(OpBatchLookup, func(d *data) error {
		for _, b := range d.batches {
			if b.ClinicID == clinicID && b.Number == number && b.OperatorRegistry == registry {
				b := b
				out = &b
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (s *batchStore) ListByClinic(_ context.Context, clinicID int64, limit int) ([]store.Batch, error) {
	out := []store.Batch{}
	err := s.v.do(OpBatchLookup, func(d *data) error {
		for _, b := range d.batches {
			if b.ClinicID == clinicID {
				out = append(out, b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (s *batchStore) UpdateStatus(_ context.Context, id int64, status string) error {
	return s.v.do("batch.status", func(d *data) error {
		b, ok := d.batches[id]
		if !ok {
			return store.ErrNotFound
		}
		b.Status = status
		b.UpdatedAt = time.Now()
		d.batches[id] = b
		return nil
	})
}

type itemStore struct{ v *memView }

func (s *itemStore) Insert(_ context.Context, it *store.Item) error {
	return s.v.do(OpItemInsert, func(d *data) error {
		if _, ok := d.batches[it.BatchID]; !ok {
			return fmt.Errorf("batch %d does not exist", it.BatchID)
		}
		isGuide := it.ItemType == store.ItemTypeGuide
		if isGuide != (it.ParentID == nil) {
			return errors.New("item violates hierarchy check")
		}
		if it.ParentID != nil {
			parent, ok := d.items[*it.ParentID]
			if !ok || parent.ItemType != store.ItemTypeGuide {
				return fmt.Errorf("parent %d is not a guide", *it.ParentID)
			}
		}
		if it.PaymentStatus == "" {
			it.PaymentStatus = store.BatchStatusPending
		}
		now := time.Now()
		it.ID = d.id()
		it.InsertedAt, it.UpdatedAt = now, now
		d.items[it.ID] = *it
		return nil
	})
}

func (s *itemStore) ListByBatch(_ context.Context, batchID int64) ([]store.Item, error) {
	var out []store.Item
	err := s.v.do("item.list", func(d *data) error {
		items := sortedItems(d.items, func(it store.Item) bool { return it.BatchID == batchID })
		out = make([]store.Item, 0, len(items))
		for _, g := range items {
			if g.ItemType != store.ItemTypeGuide {
				continue
			}
			out = append(out, g)
			for _, c := range items {
				if c.ParentID != nil && *c.ParentID == g.ID && c.ItemType == store.ItemTypeProcedure {
					out = append(out, c)
				}
			}
			for _, c := range items {
				if c.ParentID != nil && *c.ParentID == g.ID && c.ItemType == store.ItemTypeExpense {
					out = append(out, c)
				}
			}
		}
		return nil
	})
	return out, err
}

func (s *itemStore) CountByBatch(_ context.Context, batchID int64) (int, error) {
	count := 0
	err := s.v.do("item.count", func(d *data) error {
		for _, it := range d.items {
			if it.BatchID == batchID {
				count++
			}
		}
		return nil
	})
	return count, err
}

type professionalStore struct{ v *memView }

func (s *professionalStore) Upsert(_ context.Context, p *store.Professional) error {
	return s.v.do(OpProfessional, func(d *data) error {
		now := time.Now()
		for id, existing := range d.professionals {
			if existing.ClinicID == p.ClinicID && existing.Council == p.Council &&
				existing.CouncilNumber == p.CouncilNumber && existing.State == p.State {
				if p.Name != "" {
					existing.Name = p.Name
				}
				if p.CPF != "" {
					existing.CPF = p.CPF
				}
				if p.CBOS != "" {
					existing.CBOS = p.CBOS
				}
				existing.UpdatedAt = now
				d.professionals[id] = existing
				p.ID, p.InsertedAt, p.UpdatedAt = id, existing.InsertedAt, now
				return nil
			}
		}
		p.ID = d.id()
		p.InsertedAt, p.UpdatedAt = now, now
		d.professionals[p.ID] = *p
		return nil
	})
}

func (s *professionalStore) Link(_ context.Context, link *store.GuideProfessional) error {
	return s.v.do(OpLink, func(d *data) error {
		for _, l := range d.links {
			if l.GuideItemID == link.GuideItemID && l.ProfessionalID == link.ProfessionalID && l.Role == link.Role {
				return nil
			}
		}
		link.ID = d.id()
		link.InsertedAt = time.Now()
		d.links = append(d.links, *link)
		return nil
	})
}

func (s *professionalStore) ListByGuide(_ context.Context, guideItemID int64) ([]store.GuideProfessionalDetail, error) {
	out := []store.GuideProfessionalDetail{}
	err := s.v.do("professional.list", func(d *data) error {
		for _, l := range d.links {
			if l.GuideItemID == guideItemID {
				out = append(out, store.GuideProfessionalDetail{Professional: d.professionals[l.ProfessionalID], Role: l.Role})
			}
		}
		return nil
	})
	return out, err
}

type operatorStore struct{ v *memView }

func (s *operatorStore) Insert(_ context.Context, op *store.Operator) error {
	return s.v.do("operator.insert", func(d *data) error {
		op.ID = d.id()
		op.CreatedAt = time.Now()
		d.operators[op.ID] = *op
		return nil
	})
}

func (s *operatorStore) GetByID(_ context.Context, id int64) (*store.Operator, error) {
	var out *store.Operator
	err := s.v.do(OpOperatorGet, func(d *data) error {
		op, ok := d.operators[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &op
		return nil
	})
	return out, err
}

type batchHistoryStore struct{ v *memView }

func (s *batchHistoryStore) Insert(_ context.Context, e *store.BatchHistoryEntry) error {
	return s.v.do(OpHistoryInsert, func(d *data) error {
		e.ID = d.id()
		e.InsertedAt = time.Now()
		d.history = append(d.history, *e)
		return nil
	})
}

func (s *batchHistoryStore) ListByBatch(_ context.Context, batchID int64) ([]store.BatchHistoryEntry, error) {
	out := []store.BatchHistoryEntry{}
	err := s.v.do("history.list", func(d *data) error {
		for _, e := range d.history {
			if e.BatchID == batchID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

type ingestionStore struct{ v *memView }

func (s *ingestionStore) InsertIngestionHistory(_ context.Context, h *store.IngestionHistory) error {
	return s.v.do(OpIngestionInsert, func(d *data) error {
		if h.Attempt == 0 {
			h.Attempt = 1
		}
		now := time.Now()
		h.ID = d.id()
		h.ProcessedAt, h.UpdatedAt = now, now
		d.ingestions[h.ID] = *h
		return nil
	})
}

func (s *ingestionStore) UpdateIngestionStatus(_ context.Context, h *store.IngestionHistory) error {
	return s.v.do(OpIngestionUpdate, func(d *data) error {
		existing, ok := d.ingestions[h.ID]
		if !ok {
			return store.ErrNotFound
		}
		existing.Status = h.Status
		existing.BatchID = h.BatchID
		existing.ErrorMessage = h.ErrorMessage
		existing.Attempt = h.Attempt
		existing.UpdatedAt = time.Now()
		d.ingestions[h.ID] = existing
		return nil
	})
}

func (s *ingestionStore) GetLatest(ctx context.Context, limit int) ([]store.IngestionHistory, error) {
	return s.GetHistoryInRange(ctx, store.HistoryFilter{Limit: limit})
}

func (s *ingestionStore) GetHistoryInRange(_ context.Context, f store.HistoryFilter) ([]store.IngestionHistory, error) {
	out := []store.IngestionHistory{}
	err := s.v.do("ingestion.list", func(d *data) error {
		statuses := map[string]bool{}
		for _, st := range f.Statuses {
			statuses[st] = true
		}
		for _, h := range d.ingestions {
			if f.ClinicID != 0 && h.ClinicID != f.ClinicID {
				continue
			}
			if len(statuses) > 0 && !statuses[h.Status] {
				continue
			}
			if !f.From.IsZero() && h.ProcessedAt.Before(f.From) {
				continue
			}
			if !f.To.IsZero() && !h.ProcessedAt.Before(f.To) {
				continue
			}
			out = append(out, h)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		if f.Limit > 0 && len(out) > f.Limit {
			out = out[:f.Limit]
		}
		return nil
	})
	return out, err
}

type reportStore struct{ v *memView }

func (s *reportStore) GetBatchSummary(_ context.Context, batchID int64) ([]store.CategorySummary, error) {
	out := []store.CategorySummary{}
	err := s.v.do("report.batch", func(d *data) error {
		index := map[[2]string]int{}
		for _, it := range sortedItems(d.items, func(it store.Item) bool { return it.BatchID == batchID }) {
			if it.ItemType == store.ItemTypeGuide {
				continue
			}
			category := it.ExpenseCategory
			if category == "" {
				category = it.ItemType
			}
			key := [2]string{it.ItemType, category}
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, store.CategorySummary{ItemType: it.ItemType, Category: category})
			}
			out[i].ItemsCount++
			out[i].Quantity += it.Quantity
			out[i].TotalValue += it.TotalPrice
			out[i].PaidValue += it.AmountPaid
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].ItemType != out[j].ItemType {
				return out[i].ItemType > out[j].ItemType
			}
			return out[i].TotalValue > out[j].TotalValue
		})
		return nil
	})
	return out, err
}

func (s *reportStore) GetCompetenceSummary(_ context.Context, clinicID int64, competences []string) ([]store.CompetenceSummary, error) {
	out := []store.CompetenceSummary{}
	err := s.v.do("report.competence", func(d *data) error {
		wanted := map[string]bool{}
		for _, c := range competences {
			wanted[c] = true
		}
		index := map[[2]string]int{}
		for _, b := range d.batches {
			if b.ClinicID != clinicID || (len(wanted) > 0 && !wanted[b.Competence]) {
				continue
			}
			key := [2]string{b.Competence, b.Status}
			i, ok := index[key]
			if !ok {
				i = len(out)
				index[key] = i
				out = append(out, store.CompetenceSummary{Competence: b.Competence, Status: b.Status})
			}
			out[i].BatchesCount++
			out[i].GuidesCount += b.GuideCount
			out[i].TotalValue += b.DeclaredTotal
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Competence != out[j].Competence {
				return out[i].Competence > out[j].Competence
			}
			return out[i].Status < out[j].Status
		})
		return nil
	})
	return out, err
}
