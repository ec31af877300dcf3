package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Batch history events.
const (
	EventImported      = "importado"
	EventStatusChanged = "status_alterado"
)

type BatchHistoryStore struct {
	db Queryer
}

func (hs *BatchHistoryStore) Insert(ctx context.Context, entry *BatchHistoryEntry) error {
	query := `INSERT INTO lote_historico (
		lote_id,
		evento,
		arquivo,
		detalhe
	) VALUES (
		:lote_id,
		:evento,
		:arquivo,
		:detalhe
	) RETURNING id, inserted_at`

	rows, err := sqlx.NamedQueryContext(ctx, hs.db, query, entry)
	if err != nil {
		return fmt.Errorf("failed to insert batch history: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&entry.ID, &entry.InsertedAt); err != nil {
			return fmt.Errorf("failed to scan batch history id: %w", err)
		}
	}
	return rows.Err()
}

func (hs *BatchHistoryStore) ListByBatch(ctx context.Context, batchID int64) ([]BatchHistoryEntry, error) {
	query := `SELECT id, lote_id, evento, arquivo, detalhe, inserted_at
	FROM lote_historico
	WHERE lote_id = $1
	ORDER BY inserted_at, id`

	entries := []BatchHistoryEntry{}
	if err := sqlx.SelectContext(ctx, hs.db, &entries, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list history of batch %d: %w", batchID, err)
	}
	return entries, nil
}
