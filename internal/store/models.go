package store

import (
	"time"

	"github.com/google/uuid"
)

// Batch status values. Ingestion only ever writes BatchStatusPending.
const (
	BatchStatusPending = "pendente"
	BatchStatusPaid    = "pago"
	BatchStatusDenied  = "glosado"
	BatchStatusPartial = "parcial"
)

// Item kinds stored in lote_itens.tipo_item.
const (
	ItemTypeGuide     = "guia"
	ItemTypeProcedure = "procedimento"
	ItemTypeExpense   = "despesa"
)

// GuideItemCode marks the guide row itself in listings.
const GuideItemCode = "GUIA"

// Professional roles on a guide.
const (
	RoleRequester = "solicitante"
	RoleExecutor  = "executante"
)

// Batch represents the 'lotes' table.
type Batch struct {
	ID                  int64      `db:"id" json:"id"`
	ClinicID            int64      `db:"clinica_id" json:"clinic_id"`
	OperatorRegistry    string     `db:"registro_ans" json:"operator_registry"`
	OperatorName        string     `db:"nome_operadora" json:"operator_name"`
	Number              string     `db:"numero_lote" json:"number"`
	Competence          string     `db:"competencia" json:"competence"`
	SubmissionDate      *time.Time `db:"data_envio" json:"submission_date,omitempty"`
	GuideCount          int        `db:"quantidade_guias" json:"guide_count"`
	DeclaredTotal       float64    `db:"valor_total" json:"declared_total"`
	Status              string     `db:"status" json:"status"`
	SourceFile          string     `db:"arquivo_origem" json:"source_file"`
	TransactionType     string     `db:"tipo_transacao" json:"transaction_type"`
	TransactionSequence string     `db:"sequencial_transacao" json:"transaction_sequence"`
	TransactionDate     *time.Time `db:"data_registro_transacao" json:"transaction_date,omitempty"`
	TransactionTime     string     `db:"hora_registro_transacao" json:"transaction_time"`
	ProviderCNPJ        string     `db:"cnpj_prestador" json:"provider_cnpj"`
	ProviderName        string     `db:"nome_prestador" json:"provider_name"`
	DestinationRegistry string     `db:"registro_ans_destino" json:"destination_registry"`
	SchemaVersion       string     `db:"versao_padrao" json:"schema_version"`
	CNES                string     `db:"cnes" json:"cnes"`
	Hash                string     `db:"hash" json:"hash"`
	HashValid           *bool      `db:"hash_valido" json:"hash_valid"`
	InsertedAt          time.Time  `db:"inserted_at" json:"inserted_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Item represents the 'lote_itens' table. Guide, procedure and expense rows
// share it; ItemType says which field group is meaningful.
type Item struct {
	ID       int64  `db:"id" json:"id"`
	BatchID  int64  `db:"lote_id" json:"batch_id"`
	ClinicID int64  `db:"clinica_id" json:"clinic_id"`
	ParentID *int64 `db:"item_pai_id" json:"parent_id,omitempty"`
	ItemType string `db:"tipo_item" json:"item_type"`
	Sequence int    `db:"sequencial" json:"sequence"`

	// guide
	ProviderGuideNumber    string     `db:"numero_guia_prestador" json:"provider_guide_number,omitempty"`
	OperatorGuideNumber    string     `db:"numero_guia_operadora" json:"operator_guide_number,omitempty"`
	MainGuideNumber        string     `db:"numero_guia_principal" json:"main_guide_number,omitempty"`
	CardNumber             string     `db:"numero_carteira" json:"card_number,omitempty"`
	BeneficiaryName        string     `db:"nome_beneficiario" json:"beneficiary_name,omitempty"`
	Newborn                string     `db:"atendimento_rn" json:"newborn,omitempty"`
	AuthorizationDate      *time.Time `db:"data_autorizacao" json:"authorization_date,omitempty"`
	Password               string     `db:"senha" json:"password,omitempty"`
	PasswordValidity       *time.Time `db:"data_validade_senha" json:"password_validity,omitempty"`
	RequesterName          string     `db:"nome_profissional_solicitante" json:"requester_name,omitempty"`
	RequesterCouncil       string     `db:"conselho_profissional_solicitante" json:"requester_council,omitempty"`
	RequesterCouncilNumber string     `db:"numero_conselho_solicitante" json:"requester_council_number,omitempty"`
	RequesterState         string     `db:"uf_solicitante" json:"requester_state,omitempty"`
	RequesterCBOS          string     `db:"cbos_solicitante" json:"requester_cbos,omitempty"`
	RequestDate            *time.Time `db:"data_solicitacao" json:"request_date,omitempty"`
	ClinicalIndication     string     `db:"indicacao_clinica" json:"clinical_indication,omitempty"`
	CareCharacter          string     `db:"carater_atendimento" json:"care_character,omitempty"`
	AttendanceType         string     `db:"tipo_atendimento" json:"attendance_type,omitempty"`
	AccidentIndication     string     `db:"indicacao_acidente" json:"accident_indication,omitempty"`
	ConsultationType       string     `db:"tipo_consulta" json:"consultation_type,omitempty"`
	ClosureReason          string     `db:"motivo_encerramento" json:"closure_reason,omitempty"`
	AttendanceRegime       string     `db:"regime_atendimento" json:"attendance_regime,omitempty"`
	ExecutorCNPJ           string     `db:"cnpj_executante" json:"executor_cnpj,omitempty"`
	ExecutorName           string     `db:"nome_executante" json:"executor_name,omitempty"`
	ExecutorCNES           string     `db:"cnes_executante" json:"executor_cnes,omitempty"`
	DeclaredProcedures     float64    `db:"valor_procedimentos" json:"declared_procedures"`
	DeclaredMedications    float64    `db:"valor_medicamentos" json:"declared_medications"`
	DeclaredMaterials      float64    `db:"valor_materiais" json:"declared_materials"`
	DeclaredFees           float64    `db:"valor_taxas" json:"declared_fees"`
	DeclaredGuideTotal     float64    `db:"valor_total_guia" json:"declared_guide_total"`
	Observation            string     `db:"observacao" json:"observation,omitempty"`

	// procedure / expense
	ExecutionDate     *time.Time `db:"data_execucao" json:"execution_date,omitempty"`
	StartTime         string     `db:"hora_inicial" json:"start_time,omitempty"`
	EndTime           string     `db:"hora_final" json:"end_time,omitempty"`
	TableCode         string     `db:"codigo_tabela" json:"table_code,omitempty"`
	ItemCode          string     `db:"codigo_item" json:"item_code"`
	Description       string     `db:"descricao" json:"description,omitempty"`
	Quantity          float64    `db:"quantidade" json:"quantity"`
	AccessRoute       string     `db:"via_acesso" json:"access_route,omitempty"`
	Technique         string     `db:"tecnica_utilizada" json:"technique,omitempty"`
	Multiplier        float64    `db:"reducao_acrescimo" json:"multiplier"`
	UnitPrice         float64    `db:"valor_unitario" json:"unit_price"`
	TotalPrice        float64    `db:"valor_total" json:"total_price"`
	Unit              string     `db:"unidade_medida" json:"unit,omitempty"`
	TeamDegree        string     `db:"grau_participacao" json:"team_degree,omitempty"`
	TeamCPF           string     `db:"cpf_executante" json:"team_cpf,omitempty"`
	TeamName          string     `db:"nome_profissional_executante" json:"team_name,omitempty"`
	TeamCouncil       string     `db:"conselho_executante" json:"team_council,omitempty"`
	TeamCouncilNumber string     `db:"numero_conselho_executante" json:"team_council_number,omitempty"`
	TeamState         string     `db:"uf_executante" json:"team_state,omitempty"`
	TeamCBOS          string     `db:"cbos_executante" json:"team_cbos,omitempty"`
	ExpenseCode       string     `db:"codigo_despesa" json:"expense_code,omitempty"`
	ExpenseCategory   string     `db:"categoria_despesa" json:"expense_category,omitempty"`
	AnvisaRegistry    string     `db:"registro_anvisa" json:"anvisa_registry,omitempty"`
	ManufacturerRef   string     `db:"codigo_ref_fabricante" json:"manufacturer_ref,omitempty"`

	PaymentStatus string  `db:"status_pagamento" json:"payment_status"`
	AmountPaid    float64 `db:"valor_pago" json:"amount_paid"`

	InsertedAt time.Time `db:"inserted_at" json:"inserted_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Professional represents the 'profissionais' table.
type Professional struct {
	ID            int64     `db:"id" json:"id"`
	ClinicID      int64     `db:"clinica_id" json:"clinic_id"`
	BatchID       *int64    `db:"lote_id" json:"batch_id,omitempty"`
	Name          string    `db:"nome" json:"name"`
	CPF           string    `db:"cpf" json:"cpf,omitempty"`
	Council       string    `db:"conselho" json:"council"`
	CouncilNumber string    `db:"numero_conselho" json:"council_number"`
	State         string    `db:"uf" json:"state"`
	CBOS          string    `db:"cbos" json:"cbos,omitempty"`
	InsertedAt    time.Time `db:"inserted_at" json:"inserted_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// GuideProfessional represents the 'guia_profissionais' join table.
type GuideProfessional struct {
	ID             int64     `db:"id" json:"id"`
	GuideItemID    int64     `db:"item_guia_id" json:"guide_item_id"`
	ProfessionalID int64     `db:"profissional_id" json:"professional_id"`
	Role           string    `db:"papel" json:"role"`
	InsertedAt     time.Time `db:"inserted_at" json:"inserted_at"`
}

// BatchHistoryEntry represents the 'lote_historico' table.
type BatchHistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	BatchID    int64     `db:"lote_id" json:"batch_id"`
	Event      string    `db:"evento" json:"event"`
	File       string    `db:"arquivo" json:"file,omitempty"`
	Detail     string    `db:"detalhe" json:"detail,omitempty"`
	InsertedAt time.Time `db:"inserted_at" json:"inserted_at"`
}

// Operator represents the 'operadoras' table.
type Operator struct {
	ID         int64     `db:"id" json:"id"`
	RegistryID string    `db:"registro_ans" json:"registry_id"`
	Name       string    `db:"nome" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IngestionHistory represents the 'ingestion_history' table.
type IngestionHistory struct {
	ID           int64     `db:"id" json:"id"`
	RunID        uuid.UUID `db:"run_id" json:"run_id"`
	ClinicID     int64     `db:"clinica_id" json:"clinic_id"`
	SourceFile   string    `db:"source_file" json:"source_file"`
	TriggerType  string    `db:"trigger_type" json:"trigger_type"`
	Status       string    `db:"status" json:"status"`
	BatchID      *int64    `db:"lote_id" json:"batch_id,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	Attempt      int       `db:"attempt" json:"attempt"`
	ProcessedAt  time.Time `db:"processed_at" json:"processed_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
