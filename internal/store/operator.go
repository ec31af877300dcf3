package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type OperatorStore struct {
	db Queryer
}

func (ops *OperatorStore) Insert(ctx context.Context, op *Operator) error {
	query := `INSERT INTO operadoras (registro_ans, nome)
	VALUES (:registro_ans, :nome)
	RETURNING id, created_at`

	rows, err := sqlx.NamedQueryContext(ctx, ops.db, query, op)
	if err != nil {
		return fmt.Errorf("failed to insert operator: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&op.ID, &op.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan operator id: %w", err)
		}
	}
	return rows.Err()
}

// GetByID resolves an internal operator id. Unknown ids return ErrNotFound.
func (ops *OperatorStore) GetByID(ctx context.Context, id int64) (*Operator, error) {
	query := `SELECT id, registro_ans, nome, created_at FROM operadoras WHERE id = $1`

	var op Operator
	if err := sqlx.GetContext(ctx, ops.db, &op, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get operator %d: %w", id, err)
	}
	return &op, nil
}
