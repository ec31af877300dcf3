package parser

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/farxc/tiss_wrapper/internal/tiss/types"
)

const fixture = "../testdata/lote_sadt.xml"

func TestParseFileFixture(t *testing.T) {
	doc, err := ParseFile(fixture)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Header.TransactionType != "ENVIO_LOTE_GUIAS" {
		t.Errorf("unexpected transaction type %q", doc.Header.TransactionType)
	}
	if doc.Header.SchemaVersion != "4.01.00" {
		t.Errorf("unexpected schema version %q", doc.Header.SchemaVersion)
	}
	if doc.Header.ProviderCNPJ != "12345678000190" {
		t.Errorf("unexpected provider cnpj %q", doc.Header.ProviderCNPJ)
	}
	if doc.Header.ProviderName != "CLINICA SAO LUCAS" || doc.Header.ProviderCNES != "1234567" {
		t.Errorf("expected provider name and CNES from the executing party, got %+v", doc.Header)
	}

	if doc.Operator.RegistryID != "123456" {
		t.Errorf("unexpected operator registry %q", doc.Operator.RegistryID)
	}

	if doc.Batch.Number != "987" {
		t.Errorf("unexpected batch number %q", doc.Batch.Number)
	}
	if doc.Batch.Competence != "2024-03" {
		t.Errorf("unexpected competence %q", doc.Batch.Competence)
	}
	if doc.Batch.DeclaredGuideCount != 1 {
		t.Errorf("unexpected guide count %d", doc.Batch.DeclaredGuideCount)
	}
	if doc.Batch.DeclaredTotal != 198.10 {
		t.Errorf("unexpected declared total %v", doc.Batch.DeclaredTotal)
	}

	if len(doc.Gaps) != 0 {
		t.Errorf("expected no gaps, got %v", doc.Gaps)
	}
	if doc.ComputedHash == "" || len(doc.ComputedHash) != 32 {
		t.Errorf("expected a computed md5, got %q", doc.ComputedHash)
	}
}

func TestParseGuideBlocks(t *testing.T) {
	doc, err := ParseFile(fixture)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Guides) != 1 {
		t.Fatalf("expected 1 guide, got %d", len(doc.Guides))
	}
	g := doc.Guides[0]

	if g.Header == nil || g.Header.ProviderGuideNumber != "G-0001" {
		t.Errorf("unexpected guide header %+v", g.Header)
	}
	if g.Authorization == nil || g.Authorization.Password != "XPTO1234" {
		t.Errorf("unexpected authorization %+v", g.Authorization)
	}
	if g.Beneficiary == nil || g.Beneficiary.Name != "MARIA DA CONCEIÇÃO" {
		t.Errorf("unexpected beneficiary %+v", g.Beneficiary)
	}
	if g.Requester == nil || g.Requester.Professional == nil {
		t.Fatalf("expected requesting professional, got %+v", g.Requester)
	}
	if p := g.Requester.Professional; p.Name != "JOAO PEREIRA" || p.CouncilNumber != "45678" || p.State != "35" || p.CBOS != "225125" {
		t.Errorf("unexpected requesting professional %+v", p)
	}
	if g.Request == nil || g.Request.ClinicalIndication != "DOR ABDOMINAL" {
		t.Errorf("unexpected clinical request %+v", g.Request)
	}
	if g.Executor == nil || g.Executor.CNES != "1234567" {
		t.Errorf("unexpected executor %+v", g.Executor)
	}
	if g.Attendance == nil || g.Attendance.Type != "05" {
		t.Errorf("unexpected attendance %+v", g.Attendance)
	}
	if g.Totals.Procedures != 185.70 || g.Totals.Medications != 12.40 || g.Totals.Grand != 198.10 {
		t.Errorf("unexpected totals %+v", g.Totals)
	}
	if g.Observation != "SEM INTERCORRENCIAS" {
		t.Errorf("unexpected observation %q", g.Observation)
	}
}

func TestParseProceduresAndExpenses(t *testing.T) {
	doc, err := ParseFile(fixture)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g := doc.Guides[0]

	if len(g.Procedures) != 2 {
		t.Fatalf("expected 2 procedures, got %d", len(g.Procedures))
	}

	first := g.Procedures[0]
	if first.Code.Code != "40901114" || first.Code.Table != "22" {
		t.Errorf("unexpected procedure code %+v", first.Code)
	}
	if first.UnitPrice != 150 || first.TotalPrice != 150 {
		t.Errorf("expected comma decimals to parse, got %v/%v", first.UnitPrice, first.TotalPrice)
	}
	if first.Multiplier != 1.0 {
		t.Errorf("expected default multiplier 1.0, got %v", first.Multiplier)
	}
	if len(first.Team) != 1 {
		t.Fatalf("expected 1 team member, got %d", len(first.Team))
	}
	if m := first.Team[0]; m.Degree != "12" || m.CPF != "12345678909" || m.Professional.Name != "ANA RODRIGUES" {
		t.Errorf("unexpected team member %+v", m)
	}

	second := g.Procedures[1]
	if second.Multiplier != 0.70 || second.Quantity != 2 {
		t.Errorf("unexpected second procedure %+v", second)
	}
	if len(second.Team) != 0 {
		t.Errorf("expected no team, got %v", second.Team)
	}

	if len(g.Expenses) != 1 {
		t.Fatalf("expected 1 expense, got %d", len(g.Expenses))
	}
	e := g.Expenses[0]
	if e.Code != "02" || e.Origin != types.OriginGeneric {
		t.Errorf("unexpected expense classification input %+v", e)
	}
	if e.Execution.Code.Code != "90123456" || e.Execution.Code.Description != "DIPIRONA 500MG" {
		t.Errorf("unexpected expense code %+v", e.Execution.Code)
	}
	if e.Execution.TotalPrice != 12.40 || e.Execution.Multiplier != 1.0 {
		t.Errorf("unexpected expense values %+v", e.Execution)
	}
	if e.Execution.AnvisaRegistry != "1234567890123" {
		t.Errorf("unexpected anvisa registry %q", e.Execution.AnvisaRegistry)
	}
}

func TestParseHashFallback(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantHash   string
		wantSource types.HashSource
	}{
		{
			name:       "epilogue wins over header",
			doc:        `<mensagemTISS><cabecalho><hash>HEADER</hash></cabecalho><epilogo><hash>EPILOGUE</hash></epilogo></mensagemTISS>`,
			wantHash:   "EPILOGUE",
			wantSource: types.HashFromEpilogue,
		},
		{
			name:       "header only",
			doc:        `<mensagemTISS><cabecalho><hash>HEADER</hash></cabecalho></mensagemTISS>`,
			wantHash:   "HEADER",
			wantSource: types.HashFromHeader,
		},
		{
			name:       "empty epilogue falls back",
			doc:        `<mensagemTISS><cabecalho><hash>HEADER</hash></cabecalho><epilogo><hash/></epilogo></mensagemTISS>`,
			wantHash:   "HEADER",
			wantSource: types.HashFromHeader,
		},
		{
			name:       "neither",
			doc:        `<mensagemTISS><cabecalho/></mensagemTISS>`,
			wantHash:   "",
			wantSource: types.HashAbsent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseBytes([]byte(tt.doc))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Hash != tt.wantHash || doc.HashSource != tt.wantSource {
				t.Errorf("got %q (%q), want %q (%q)", doc.Hash, doc.HashSource, tt.wantHash, tt.wantSource)
			}
		})
	}
}

func TestParseFixtureHashPrefersEpilogue(t *testing.T) {
	doc, err := ParseFile(fixture)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Hash != "0123456789abcdef0123456789abcdef" || doc.HashSource != types.HashFromEpilogue {
		t.Errorf("unexpected hash %q from %q", doc.Hash, doc.HashSource)
	}
	if match, comparable := doc.HashMatches(); !comparable || match {
		t.Errorf("expected a comparable mismatch, got match=%v comparable=%v", match, comparable)
	}
}

func TestParseMissingBlocksAreGaps(t *testing.T) {
	doc, err := ParseBytes([]byte(`<mensagemTISS>
		<prestadorParaOperadora><loteGuias><numeroLote>1</numeroLote>
			<guiasTISS><guiaSP-SADT><valorTotal><valorTotalGeral>abc</valorTotalGeral></valorTotal></guiaSP-SADT></guiasTISS>
		</loteGuias></prestadorParaOperadora>
	</mensagemTISS>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Guides) != 1 {
		t.Fatalf("expected 1 guide, got %d", len(doc.Guides))
	}
	g := doc.Guides[0]
	if g.Header != nil || g.Authorization != nil || g.Beneficiary != nil || g.Requester != nil ||
		g.Request != nil || g.Executor != nil || g.Attendance != nil {
		t.Errorf("expected every absent block to be nil, got %+v", g)
	}
	if g.Totals.Grand != 0 {
		t.Errorf("expected bad numeric to be 0, got %v", g.Totals.Grand)
	}
	if g.Procedures == nil || g.Expenses == nil || len(g.Procedures) != 0 || len(g.Expenses) != 0 {
		t.Errorf("expected empty, non-nil child slices")
	}

	want := map[string]bool{
		"cabecalho":                 true,
		"guia[0]/cabecalhoGuia":     true,
		"guia[0]/dadosBeneficiario": true,
		"guia[0]/dadosExecutante":   true,
	}
	for _, gap := range doc.Gaps {
		delete(want, gap.Path)
	}
	if len(want) != 0 {
		t.Errorf("missing expected gaps %v in %v", want, doc.Gaps)
	}
}

func TestParseEmptyBatch(t *testing.T) {
	doc, err := ParseBytes([]byte(`<mensagemTISS><cabecalho/><prestadorParaOperadora><loteGuias><numeroLote>5</numeroLote></loteGuias></prestadorParaOperadora></mensagemTISS>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Guides == nil || len(doc.Guides) != 0 {
		t.Errorf("expected an empty guide slice, got %v", doc.Guides)
	}
	if doc.Batch.DeclaredTotal != 0 || doc.Batch.DeclaredGuideCount != 0 {
		t.Errorf("unexpected batch %+v", doc.Batch)
	}
}

func TestParseGroupedExpenses(t *testing.T) {
	doc, err := ParseBytes([]byte(`<mensagemTISS><prestadorParaOperadora><loteGuias><guiasTISS><guiaSP-SADT>
		<outrasDespesas>
			<despesa><sequencialItem>1</sequencialItem><codigoDespesa>05</codigoDespesa></despesa>
		</outrasDespesas>
		<medicamentos><medicamento><sequencialItem>2</sequencialItem><valorTotal>10</valorTotal></medicamento></medicamentos>
		<materiais><material><sequencialItem>3</sequencialItem></material><material><sequencialItem>4</sequencialItem></material></materiais>
		<taxas><taxa><sequencialItem>5</sequencialItem><reducaoAcrescimo>1,2</reducaoAcrescimo></taxa></taxas>
	</guiaSP-SADT></guiasTISS></loteGuias></prestadorParaOperadora></mensagemTISS>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expenses := doc.Guides[0].Expenses
	wantOrigins := []types.ExpenseOrigin{
		types.OriginGeneric, types.OriginMedication, types.OriginMaterial, types.OriginMaterial, types.OriginFee,
	}
	if len(expenses) != len(wantOrigins) {
		t.Fatalf("expected %d expenses, got %d", len(wantOrigins), len(expenses))
	}
	for i, e := range expenses {
		if e.Origin != wantOrigins[i] || e.Sequence != i+1 {
			t.Errorf("expense %d: got origin %q seq %d", i, e.Origin, e.Sequence)
		}
	}
	if expenses[1].Code != "" || expenses[1].Execution.TotalPrice != 10 {
		t.Errorf("unexpected medication expense %+v", expenses[1])
	}
	if expenses[4].Execution.Multiplier != 1.2 {
		t.Errorf("unexpected fee multiplier %v", expenses[4].Execution.Multiplier)
	}
}

func TestParseLegacyGuideLayout(t *testing.T) {
	doc, err := ParseBytes([]byte(`<mensagemTISS><prestadorParaOperadora><loteGuias>
		<guiaConsulta><cabecalhoGuia><numeroGuiaPrestador>A</numeroGuiaPrestador></cabecalhoGuia></guiaConsulta>
		<guiaConsulta><cabecalhoGuia><numeroGuiaPrestador>B</numeroGuiaPrestador></cabecalhoGuia></guiaConsulta>
	</loteGuias></prestadorParaOperadora></mensagemTISS>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Guides) != 2 || doc.Guides[1].Header.ProviderGuideNumber != "B" {
		t.Errorf("expected both legacy guides, got %+v", doc.Guides)
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := ParseBytes([]byte(`<mensagemTISS><cabecalho>`))
	if !errors.Is(err, types.ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestParseNonNumericValuesAreZero(t *testing.T) {
	raw, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	xml := strings.Replace(string(raw), "<ans:valorUnitario>150,00</ans:valorUnitario>", "<ans:valorUnitario>NaN</ans:valorUnitario>", 1)
	xml = strings.Replace(xml, "<ans:valorTotal>150,00</ans:valorTotal>", "<ans:valorTotal>Infinity</ans:valorTotal>", 1)
	xml = strings.Replace(xml, "<ans:quantidadeExecutada>1</ans:quantidadeExecutada>", "<ans:quantidadeExecutada>1e20</ans:quantidadeExecutada>", 1)

	doc, err := ParseBytes([]byte(xml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := doc.Guides[0].Procedures[0]
	if p.UnitPrice != 0 || p.TotalPrice != 0 || p.Quantity != 0 {
		t.Errorf("expected non-numeric values to be 0, got unit=%v total=%v qty=%v", p.UnitPrice, p.TotalPrice, p.Quantity)
	}
	if _, err := json.Marshal(doc); err != nil {
		t.Errorf("document must stay encodable: %v", err)
	}
}
