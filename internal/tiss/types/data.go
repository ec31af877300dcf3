package types

import "strings"

// HashSource tells where Document.Hash came from.
type HashSource string

const (
	HashFromEpilogue HashSource = "epilogo"
	HashFromHeader   HashSource = "cabecalho"
	HashAbsent       HashSource = ""
)

// ExpenseOrigin is the container an expense was found in, for revisions that
// group "outras despesas" by category. Empty for the generic despesa list.
type ExpenseOrigin string

const (
	OriginGeneric    ExpenseOrigin = ""
	OriginMedication ExpenseOrigin = "medicamentos"
	OriginMaterial   ExpenseOrigin = "materiais"
	OriginFee        ExpenseOrigin = "taxas"
)

// Document is the typed view of one mensagemTISS.
type Document struct {
	Header       TransactionHeader `json:"header"`
	Batch        BatchInfo         `json:"batch"`
	Operator     OperatorIdentity  `json:"operator"`
	Hash         string            `json:"hash"`
	HashSource   HashSource        `json:"hash_source"`
	ComputedHash string            `json:"computed_hash"`
	Guides       []Guide           `json:"guides"`
	Gaps         []ValidationGap   `json:"gaps,omitempty"`
}

// HashMatches reports whether the declared hash equals the content digest.
// The second value is false when there is nothing to compare.
func (d *Document) HashMatches() (match bool, comparable bool) {
	if d.Hash == "" || d.ComputedHash == "" {
		return false, false
	}
	return strings.EqualFold(d.Hash, d.ComputedHash), true
}

type TransactionHeader struct {
	TransactionType  string `json:"transaction_type"`
	Sequence         string `json:"sequence"`
	RegistrationDate string `json:"registration_date"`
	RegistrationTime string `json:"registration_time"`
	ProviderCNPJ     string `json:"provider_cnpj"`
	ProviderCode     string `json:"provider_code"`
	ProviderName     string `json:"provider_name"`
	ProviderCNES     string `json:"provider_cnes"`
	OperatorRegistry string `json:"operator_registry"`
	SchemaVersion    string `json:"schema_version"`
	Hash             string `json:"hash"`
}

type BatchInfo struct {
	Number             string  `json:"number"`
	Competence         string  `json:"competence"`
	SubmissionDate     string  `json:"submission_date"`
	DeclaredTotal      float64 `json:"declared_total"`
	DeclaredGuideCount int     `json:"declared_guide_count"`
}

type OperatorIdentity struct {
	RegistryID string `json:"registry_id"`
	Name       string `json:"name"`
}

// Guide is one guia. Every block pointer is nil when the block is absent from
// the source.
type Guide struct {
	Header        *GuideHeader     `json:"header,omitempty"`
	Authorization *Authorization   `json:"authorization,omitempty"`
	Beneficiary   *Beneficiary     `json:"beneficiary,omitempty"`
	Requester     *Requester       `json:"requester,omitempty"`
	Request       *ClinicalRequest `json:"request,omitempty"`
	Executor      *Executor        `json:"executor,omitempty"`
	Attendance    *Attendance      `json:"attendance,omitempty"`
	Totals        Totals           `json:"totals"`
	Observation   string           `json:"observation,omitempty"`
	Procedures    []Procedure      `json:"procedures"`
	Expenses      []Expense        `json:"expenses"`
}

type GuideHeader struct {
	OperatorRegistry    string `json:"operator_registry"`
	ProviderGuideNumber string `json:"provider_guide_number"`
	MainGuideNumber     string `json:"main_guide_number,omitempty"`
}

type Authorization struct {
	OperatorGuideNumber string `json:"operator_guide_number"`
	Date                string `json:"date"`
	Password            string `json:"password"`
	PasswordValidity    string `json:"password_validity"`
}

type Beneficiary struct {
	CardNumber string `json:"card_number"`
	Name       string `json:"name"`
	Newborn    string `json:"newborn"`
	CNS        string `json:"cns,omitempty"`
}

type Requester struct {
	ProviderCode string        `json:"provider_code"`
	ProviderCNPJ string        `json:"provider_cnpj"`
	ProviderName string        `json:"provider_name"`
	Professional *Professional `json:"professional,omitempty"`
}

type Professional struct {
	Name          string `json:"name"`
	Council       string `json:"council"`
	CouncilNumber string `json:"council_number"`
	State         string `json:"state"`
	CBOS          string `json:"cbos"`
}

type ClinicalRequest struct {
	Date               string `json:"date"`
	CareCharacter      string `json:"care_character"`
	ClinicalIndication string `json:"clinical_indication"`
}

type Executor struct {
	ProviderCode string `json:"provider_code"`
	ProviderCNPJ string `json:"provider_cnpj"`
	ProviderName string `json:"provider_name"`
	CNES         string `json:"cnes"`
}

type Attendance struct {
	Type               string `json:"type"`
	AccidentIndication string `json:"accident_indication"`
	ConsultationType   string `json:"consultation_type"`
	ClosureReason      string `json:"closure_reason"`
	Regime             string `json:"regime"`
	OccupationalHealth string `json:"occupational_health,omitempty"`
}

// Totals are the values a guide declares in valorTotal.
type Totals struct {
	Procedures   float64 `json:"procedures"`
	DailyRates   float64 `json:"daily_rates"`
	FeesRentals  float64 `json:"fees_rentals"`
	Materials    float64 `json:"materials"`
	Medications  float64 `json:"medications"`
	OPME         float64 `json:"opme"`
	MedicalGases float64 `json:"medical_gases"`
	Grand        float64 `json:"grand"`
}

type ProcedureCode struct {
	Table       string `json:"table"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type Procedure struct {
	Sequence      int           `json:"sequence"`
	ExecutionDate string        `json:"execution_date"`
	StartTime     string        `json:"start_time"`
	EndTime       string        `json:"end_time"`
	Code          ProcedureCode `json:"code"`
	Quantity      float64       `json:"quantity"`
	AccessRoute   string        `json:"access_route,omitempty"`
	Technique     string        `json:"technique,omitempty"`
	Multiplier    float64       `json:"multiplier"`
	UnitPrice     float64       `json:"unit_price"`
	TotalPrice    float64       `json:"total_price"`
	Unit          string        `json:"unit,omitempty"`
	Team          []TeamMember  `json:"team,omitempty"`
}

type TeamMember struct {
	Degree       string       `json:"degree"`
	CPF          string       `json:"cpf"`
	ProviderCode string       `json:"provider_code,omitempty"`
	Professional Professional `json:"professional"`
}

type Expense struct {
	Sequence  int              `json:"sequence"`
	Code      string           `json:"code"`
	Origin    ExpenseOrigin    `json:"origin,omitempty"`
	Execution ExpenseExecution `json:"execution"`
}

type ExpenseExecution struct {
	Date            string        `json:"date"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	Code            ProcedureCode `json:"code"`
	Quantity        float64       `json:"quantity"`
	Unit            string        `json:"unit"`
	Multiplier      float64       `json:"multiplier"`
	UnitPrice       float64       `json:"unit_price"`
	TotalPrice      float64       `json:"total_price"`
	AnvisaRegistry  string        `json:"anvisa_registry,omitempty"`
	ManufacturerRef string        `json:"manufacturer_ref,omitempty"`
}
