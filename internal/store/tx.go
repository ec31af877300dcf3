package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type TxStore struct {
	db *sqlx.DB
}

// WithTx runs fn against stores bound to a single transaction. The
// transaction is committed when fn returns nil and rolled back otherwise.
func (ts *TxStore) WithTx(ctx context.Context, fn func(tx *Storage) error) error {
	tx, err := ts.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStorage := newStorage(tx)
	txStorage.Tx = nestedTx{storage: txStorage}

	if err := fn(txStorage); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nestedTx joins the surrounding transaction instead of opening a new one.
type nestedTx struct {
	storage *Storage
}

func (n nestedTx) WithTx(_ context.Context, fn func(tx *Storage) error) error {
	return fn(n.storage)
}
