package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type ItemStore struct {
	db Queryer
}

const itemColumns = `
	id, lote_id, clinica_id, item_pai_id, tipo_item, sequencial, numero_guia_prestador,
	numero_guia_operadora, numero_guia_principal, numero_carteira, nome_beneficiario,
	atendimento_rn, data_autorizacao, senha, data_validade_senha,
	nome_profissional_solicitante, conselho_profissional_solicitante,
	numero_conselho_solicitante, uf_solicitante, cbos_solicitante, data_solicitacao,
	indicacao_clinica, carater_atendimento, tipo_atendimento, indicacao_acidente,
	tipo_consulta, motivo_encerramento, regime_atendimento, cnpj_executante,
	nome_executante, cnes_executante, valor_procedimentos, valor_medicamentos,
	valor_materiais, valor_taxas, valor_total_guia, observacao, data_execucao, hora_inicial,
	hora_final, codigo_tabela, codigo_item, descricao, quantidade, via_acesso,
	tecnica_utilizada, reducao_acrescimo, valor_unitario, valor_total, unidade_medida,
	grau_participacao, cpf_executante, nome_profissional_executante, conselho_executante,
	numero_conselho_executante, uf_executante, cbos_executante, codigo_despesa,
	categoria_despesa, registro_anvisa, codigo_ref_fabricante, status_pagamento, valor_pago,
	inserted_at, updated_at`

func (is *ItemStore) Insert(ctx context.Context, item *Item) error {
	if item.PaymentStatus == "" {
		item.PaymentStatus = BatchStatusPending
	}

	query := `INSERT INTO lote_itens (
		lote_id,
		clinica_id,
		item_pai_id,
		tipo_item,
		sequencial,
		numero_guia_prestador,
		numero_guia_operadora,
		numero_guia_principal,
		numero_carteira,
		nome_beneficiario,
		atendimento_rn,
		data_autorizacao,
		senha,
		data_validade_senha,
		nome_profissional_solicitante,
		conselho_profissional_solicitante,
		numero_conselho_solicitante,
		uf_solicitante,
		cbos_solicitante,
		data_solicitacao,
		indicacao_clinica,
		carater_atendimento,
		tipo_atendimento,
		indicacao_acidente,
		tipo_consulta,
		motivo_encerramento,
		regime_atendimento,
		cnpj_executante,
		nome_executante,
		cnes_executante,
		valor_procedimentos,
		valor_medicamentos,
		valor_materiais,
		valor_taxas,
		valor_total_guia,
		observacao,
		data_execucao,
		hora_inicial,
		hora_final,
		codigo_tabela,
		codigo_item,
		descricao,
		quantidade,
		via_acesso,
		tecnica_utilizada,
		reducao_acrescimo,
		valor_unitario,
		valor_total,
		unidade_medida,
		grau_participacao,
		cpf_executante,
		nome_profissional_executante,
		conselho_executante,
		numero_conselho_executante,
		uf_executante,
		cbos_executante,
		codigo_despesa,
		categoria_despesa,
		registro_anvisa,
		codigo_ref_fabricante,
		status_pagamento,
		valor_pago
	) VALUES (
		:lote_id,
		:clinica_id,
		:item_pai_id,
		:tipo_item,
		:sequencial,
		:numero_guia_prestador,
		:numero_guia_operadora,
		:numero_guia_principal,
		:numero_carteira,
		:nome_beneficiario,
		:atendimento_rn,
		:data_autorizacao,
		:senha,
		:data_validade_senha,
		:nome_profissional_solicitante,
		:conselho_profissional_solicitante,
		:numero_conselho_solicitante,
		:uf_solicitante,
		:cbos_solicitante,
		:data_solicitacao,
		:indicacao_clinica,
		:carater_atendimento,
		:tipo_atendimento,
		:indicacao_acidente,
		:tipo_consulta,
		:motivo_encerramento,
		:regime_atendimento,
		:cnpj_executante,
		:nome_executante,
		:cnes_executante,
		:valor_procedimentos,
		:valor_medicamentos,
		:valor_materiais,
		:valor_taxas,
		:valor_total_guia,
		:observacao,
		:data_execucao,
		:hora_inicial,
		:hora_final,
		:codigo_tabela,
		:codigo_item,
		:descricao,
		:quantidade,
		:via_acesso,
		:tecnica_utilizada,
		:reducao_acrescimo,
		:valor_unitario,
		:valor_total,
		:unidade_medida,
		:grau_participacao,
		:cpf_executante,
		:nome_profissional_executante,
		:conselho_executante,
		:numero_conselho_executante,
		:uf_executante,
		:cbos_executante,
		:codigo_despesa,
		:categoria_despesa,
		:registro_anvisa,
		:codigo_ref_fabricante,
		:status_pagamento,
		:valor_pago
	) RETURNING id, inserted_at, updated_at`

	rows, err := sqlx.NamedQueryContext(ctx, is.db, query, item)
	if err != nil {
		return fmt.Errorf("failed to insert %s item: %w", item.ItemType, err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&item.ID, &item.InsertedAt, &item.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan item id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to insert %s item: %w", item.ItemType, err)
	}
	return nil
}

// ListByBatch returns every item of a batch with each guide followed by its
// procedures and expenses.
func (is *ItemStore) ListByBatch(ctx context.Context, batchID int64) ([]Item, error) {
	query := `SELECT ` + itemColumns + `
	FROM lote_itens
	WHERE lote_id = $1
	ORDER BY COALESCE(item_pai_id, id), item_pai_id NULLS FIRST, tipo_item DESC, sequencial, id`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, is.db, &items, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list items of batch %d: %w", batchID, err)
	}
	return items, nil
}

func (is *ItemStore) CountByBatch(ctx context.Context, batchID int64) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, is.db, &count, `SELECT COUNT(*) FROM lote_itens WHERE lote_id = $1`, batchID); err != nil {
		return 0, fmt.Errorf("failed to count items of batch %d: %w", batchID, err)
	}
	return count, nil
}
