package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateBatch is returned by Batch.Insert when another writer already
	// stored the same (clinica_id, numero_lote, registro_ans).
	ErrDuplicateBatch = errors.New("batch already exists")
)

const (
	uniqueViolation      = "23505"
	batchNaturalKeyIndex = "lotes_chave_natural"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
