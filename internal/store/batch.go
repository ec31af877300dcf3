package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type BatchStore struct {
	db Queryer
}

const batchColumns = `
	id, clinica_id, registro_ans, nome_operadora, numero_lote, competencia, data_envio,
	quantidade_guias, valor_total, status, arquivo_origem, tipo_transacao,
	sequencial_transacao, data_registro_transacao, hora_registro_transacao,
	cnpj_prestador, nome_prestador, registro_ans_destino, versao_padrao, cnes,
	hash, hash_valido, inserted_at, updated_at`

// Insert stores a new batch and fills in its generated id. A conflict on the
// natural key is reported as ErrDuplicateBatch.
func (bs *BatchStore) Insert(ctx context.Context, batch *Batch) error {
	if batch.Status == "" {
		batch.Status = BatchStatusPending
	}

	query := `INSERT INTO lotes (
		clinica_id,
		registro_ans,
		nome_operadora,
		numero_lote,
		competencia,
		data_envio,
		quantidade_guias,
		valor_total,
		status,
		arquivo_origem,
		tipo_transacao,
		sequencial_transacao,
		data_registro_transacao,
		hora_registro_transacao,
		cnpj_prestador,
		nome_prestador,
		registro_ans_destino,
		versao_padrao,
		cnes,
		hash,
		hash_valido
	) VALUES (
		:clinica_id,
		:registro_ans,
		:nome_operadora,
		:numero_lote,
		:competencia,
		:data_envio,
		:quantidade_guias,
		:valor_total,
		:status,
		:arquivo_origem,
		:tipo_transacao,
		:sequencial_transacao,
		:data_registro_transacao,
		:hora_registro_transacao,
		:cnpj_prestador,
		:nome_prestador,
		:registro_ans_destino,
		:versao_padrao,
		:cnes,
		:hash,
		:hash_valido
	) RETURNING id, inserted_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, bs.db, query, batch)
	if err != nil {
		if isUniqueViolation(err, batchNaturalKeyIndex) {
			return ErrDuplicateBatch
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&batch.ID, &batch.InsertedAt, &batch.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan batch id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		if isUniqueViolation(err, batchNaturalKeyIndex) {
			return ErrDuplicateBatch
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (bs *BatchStore) GetByID(ctx context.Context, id int64) (*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM lotes WHERE id = $1`

	var batch Batch
	if err := sqlx.GetContext(ctx, bs.db, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}
	return &batch, nil
}

// FindByNaturalKey looks a batch up by (clinic, batch number, operator registry).
func (bs *BatchStore) FindByNaturalKey(ctx context.Context, clinicID int64, number, operatorRegistry string) (*Batch, error) {
	query := `SELECT ` + batchColumns + `
	FROM lotes
	WHERE clinica_id = $1 AND numero_lote = $2 AND registro_ans = $3`

	var batch Batch
	if err := sqlx.GetContext(ctx, bs.db, &batch, query, clinicID, number, operatorRegistry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up batch %s: %w", number, err)
	}
	return &batch, nil
}

func (bs *BatchStore) ListByClinic(ctx context.Context, clinicID int64, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + batchColumns + `
	FROM lotes
	WHERE clinica_id = $1
	ORDER BY inserted_at DESC, id DESC
	LIMIT $2`

	batches := []Batch{}
	if err := sqlx.SelectContext(ctx, bs.db, &batches, query, clinicID, limit); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// UpdateStatus is used by payment reconciliation and the appeal workflow.
func (bs *BatchStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE lotes SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := bs.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
