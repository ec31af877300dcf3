package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type ReportStore struct {
	db Queryer
}

// CategorySummary aggregates the child items of a batch by type and expense
// category.
type CategorySummary struct {
	ItemType   string  `db:"tipo_item" json:"item_type"`
	Category   string  `db:"categoria" json:"category"`
	ItemsCount int     `db:"items_count" json:"items_count"`
	Quantity   float64 `db:"quantity" json:"quantity"`
	TotalValue float64 `db:"total_value" json:"total_value"`
	PaidValue  float64 `db:"paid_value" json:"paid_value"`
}

// CompetenceSummary aggregates a clinic's batches by competence and status.
type CompetenceSummary struct {
	Competence   string  `db:"competencia" json:"competence"`
	Status       string  `db:"status" json:"status"`
	BatchesCount int     `db:"batches_count" json:"batches_count"`
	GuidesCount  int     `db:"guides_count" json:"guides_count"`
	TotalValue   float64 `db:"total_value" json:"total_value"`
}

var billableItemTypes = []string{ItemTypeProcedure, ItemTypeExpense}

func (rs *ReportStore) GetBatchSummary(ctx context.Context, batchID int64) ([]CategorySummary, error) {
	query := `
	SELECT
		tipo_item,
		COALESCE(NULLIF(categoria_despesa, ''), tipo_item) AS categoria,
		COUNT(id) AS items_count,
		COALESCE(SUM(quantidade), 0) AS quantity,
		COALESCE(SUM(valor_total), 0) AS total_value,
		COALESCE(SUM(valor_pago), 0) AS paid_value
	FROM
		lote_itens
	WHERE
		lote_id = $1
		AND tipo_item = ANY($2)
	GROUP BY
		tipo_item,
		categoria
	ORDER BY
		tipo_item DESC,
		total_value DESC;
	`

	result := []CategorySummary{}
	if err := sqlx.SelectContext(ctx, rs.db, &result, query, batchID, pq.Array(billableItemTypes)); err != nil {
		return nil, fmt.Errorf("failed to summarize batch %d: %w", batchID, err)
	}
	return result, nil
}

// GetCompetenceSummary groups a clinic's batches. An empty competences slice
// means every period.
func (rs *ReportStore) GetCompetenceSummary(ctx context.Context, clinicID int64, competences []string) ([]CompetenceSummary, error) {
	query := `
	SELECT
		competencia,
		status,
		COUNT(id) AS batches_count,
		COALESCE(SUM(quantidade_guias), 0) AS guides_count,
		COALESCE(SUM(valor_total), 0) AS total_value
	FROM
		lotes
	WHERE
		clinica_id = $1
		AND (COALESCE(cardinality($2::text[]), 0) = 0 OR competencia = ANY($2))
	GROUP BY
		competencia,
		status
	ORDER BY
		competencia DESC,
		status;
	`

	result := []CompetenceSummary{}
	if err := sqlx.SelectContext(ctx, rs.db, &result, query, clinicID, pq.Array(competences)); err != nil {
		return nil, fmt.Errorf("failed to summarize clinic %d: %w", clinicID, err)
	}
	return result, nil
}
