package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx, so every store can run
// inside or outside a transaction.
type Queryer interface {
	sqlx.ExtContext
}

type Storage struct {
	Batch interface {
		Insert(ctx context.Context, batch *Batch) error
		GetByID(ctx context.Context, id int64) (*Batch, error)
		FindByNaturalKey(ctx context.Context, clinicID int64, number, operatorRegistry string) (*Batch, error)
		ListByClinic(ctx context.Context, clinicID int64, limit int) ([]Batch, error)
		UpdateStatus(ctx context.Context, id int64, status string) error
	}

	Item interface {
		Insert(ctx context.Context, item *Item) error
		ListByBatch(ctx context.Context, batchID int64) ([]Item, error)
		CountByBatch(ctx context.Context, batchID int64) (int, error)
	}

	Professional interface {
		Upsert(ctx context.Context, p *Professional) error
		Link(ctx context.Context, link *GuideProfessional) error
		ListByGuide(ctx context.Context, guideItemID int64) ([]GuideProfessionalDetail, error)
	}

	Operator interface {
		Insert(ctx context.Context, op *Operator) error
		GetByID(ctx context.Context, id int64) (*Operator, error)
	}

	BatchHistory interface {
		Insert(ctx context.Context, entry *BatchHistoryEntry) error
		ListByBatch(ctx context.Context, batchID int64) ([]BatchHistoryEntry, error)
	}

	IngestionHistory interface {
		InsertIngestionHistory(ctx context.Context, history *IngestionHistory) error
		GetLatest(ctx context.Context, limit int) ([]IngestionHistory, error)
		GetHistoryInRange(ctx context.Context, filter HistoryFilter) ([]IngestionHistory, error)
		UpdateIngestionStatus(ctx context.Context, history *IngestionHistory) error
	}

	Report interface {
		GetBatchSummary(ctx context.Context, batchID int64) ([]CategorySummary, error)
		GetCompetenceSummary(ctx context.Context, clinicID int64, competences []string) ([]CompetenceSummary, error)
	}

	Tx interface {
		WithTx(ctx context.Context, fn func(tx *Storage) error) error
	}
}

// HistoryFilter narrows GetHistoryInRange. Zero values mean no restriction.
type HistoryFilter struct {
	ClinicID int64
	Statuses []string
	From     time.Time
	To       time.Time
	Limit    int
}

func NewStorage(db *sqlx.DB) *Storage {
	s := newStorage(db)
	s.Tx = &TxStore{db: db}
	return s
}

func newStorage(q Queryer) *Storage {
	return &Storage{
		Batch:            &BatchStore{db: q},
		Item:             &ItemStore{db: q},
		Professional:     &ProfessionalStore{db: q},
		Operator:         &OperatorStore{db: q},
		BatchHistory:     &BatchHistoryStore{db: q},
		IngestionHistory: &IngestionHistoryStore{db: q},
		Report:           &ReportStore{db: q},
	}
}
