package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type IngestionHistoryStore struct {
	db Queryer
}

var (
	TriggerTypeManual = "manual"
	TriggerTypeUpload = "upload"
	TriggerTypeCLI    = "cli"
)

var (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusDuplicate  = "duplicate"
	StatusFailure    = "failure"
)

func (ih *IngestionHistoryStore) InsertIngestionHistory(ctx context.Context, history *IngestionHistory) error {
	if history.Attempt == 0 {
		history.Attempt = 1
	}

	query := `INSERT INTO ingestion_history (
		run_id,
		clinica_id,
		source_file,
		trigger_type,
		status,
		lote_id,
		error_message,
		attempt
	) VALUES (
		:run_id,
		:clinica_id,
		:source_file,
		:trigger_type,
		:status,
		:lote_id,
		:error_message,
		:attempt
	) RETURNING id, processed_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, ih.db, query, history)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion history: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&history.ID, &history.ProcessedAt, &history.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan ingestion history id: %w", err)
		}
	}
	return rows.Err()
}

// UpdateIngestionStatus stores the outcome of a run: status, batch, error
// text and attempt number.
func (ih *IngestionHistoryStore) UpdateIngestionStatus(ctx context.Context, history *IngestionHistory) error {
	query := `UPDATE ingestion_history SET
		status = $1,
		lote_id = $2,
		error_message = $3,
		attempt = $4,
		updated_at = NOW()
	WHERE id = $5`

	result, err := ih.db.ExecContext(ctx, query, history.Status, history.BatchID, history.ErrorMessage, history.Attempt, history.ID)
	if err != nil {
		return fmt.Errorf("failed to update ingestion history %d: %w", history.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const historyColumns = `id, run_id, clinica_id, source_file, trigger_type, status, lote_id,
	error_message, attempt, processed_at, updated_at`

func (ih *IngestionHistoryStore) GetLatest(ctx context.Context, limit int) ([]IngestionHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + historyColumns + `
	FROM ingestion_history
	ORDER BY processed_at DESC, id DESC
	LIMIT $1`

	result := []IngestionHistory{}
	if err := sqlx.SelectContext(ctx, ih.db, &result, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get latest ingestion history: %w", err)
	}
	return result, nil
}

func (ih *IngestionHistoryStore) GetHistoryInRange(ctx context.Context, filter HistoryFilter) ([]IngestionHistory, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ClinicID != 0 {
		conds = append(conds, "clinica_id = "+arg(filter.ClinicID))
	}
	if len(filter.Statuses) > 0 {
		conds = append(conds, "status = ANY("+arg(pq.Array(filter.Statuses))+")")
	}
	if !filter.From.IsZero() {
		conds = append(conds, "processed_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "processed_at < "+arg(filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + historyColumns + ` FROM ingestion_history`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY processed_at DESC, id DESC LIMIT " + arg(limit)

	result := []IngestionHistory{}
	if err := sqlx.SelectContext(ctx, ih.db, &result, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query ingestion history: %w", err)
	}
	return result, nil
}
