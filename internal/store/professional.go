package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type ProfessionalStore struct {
	db Queryer
}

// GuideProfessionalDetail is a professional as linked to one guide.
type GuideProfessionalDetail struct {
	Professional
	Role string `db:"papel" json:"role"`
}

// Upsert inserts the professional or refreshes the stored one with the same
// (clinic, council, council number, state). The id is filled in either way.
func (ps *ProfessionalStore) Upsert(ctx context.Context, p *Professional) error {
	query := `INSERT INTO profissionais (
		clinica_id,
		lote_id,
		nome,
		cpf,
		conselho,
		numero_conselho,
		uf,
		cbos
	) VALUES (
		:clinica_id,
		:lote_id,
		:nome,
		:cpf,
		:conselho,
		:numero_conselho,
		:uf,
		:cbos
	)
	ON CONFLICT (clinica_id, conselho, numero_conselho, uf) DO UPDATE SET
		nome = COALESCE(NULLIF(EXCLUDED.nome, ''), profissionais.nome),
		cpf = COALESCE(NULLIF(EXCLUDED.cpf, ''), profissionais.cpf),
		cbos = COALESCE(NULLIF(EXCLUDED.cbos, ''), profissionais.cbos),
		updated_at = NOW()
	RETURNING id, inserted_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, ps.db, query, p)
	if err != nil {
		return fmt.Errorf("failed to upsert professional: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&p.ID, &p.InsertedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan professional id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to upsert professional: %w", err)
	}
	return nil
}

// Link attaches a professional to a guide item. Linking twice is a no-op.
func (ps *ProfessionalStore) Link(ctx context.Context, link *GuideProfessional) error {
	query := `INSERT INTO guia_profissionais (
		item_guia_id,
		profissional_id,
		papel
	) VALUES (
		:item_guia_id,
		:profissional_id,
		:papel
	)
	ON CONFLICT (item_guia_id, profissional_id, papel) DO NOTHING
	RETURNING id, inserted_at`

	rows, err := sqlx.NamedQueryContext(ctx, ps.db, query, link)
	if err != nil {
		return fmt.Errorf("failed to link professional: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&link.ID, &link.InsertedAt); err != nil {
			return fmt.Errorf("failed to scan link id: %w", err)
		}
	}
	return rows.Err()
}

func (ps *ProfessionalStore) ListByGuide(ctx context.Context, guideItemID int64) ([]GuideProfessionalDetail, error) {
	query := `SELECT
		p.id, p.clinica_id, p.lote_id, p.nome, p.cpf, p.conselho, p.numero_conselho,
		p.uf, p.cbos, p.inserted_at, p.updated_at, gp.papel
	FROM guia_profissionais gp
	JOIN profissionais p ON p.id = gp.profissional_id
	WHERE gp.item_guia_id = $1
	ORDER BY gp.papel DESC, p.nome`

	result := []GuideProfessionalDetail{}
	if err := sqlx.SelectContext(ctx, ps.db, &result, query, guideItemID); err != nil {
		return nil, fmt.Errorf("failed to list professionals of guide %d: %w", guideItemID, err)
	}
	return result, nil
}
