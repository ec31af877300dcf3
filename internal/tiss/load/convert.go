package load

import (
	"unicode/utf8"

	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/despesa"
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
)

func toBatch(doc *types.Document, clinicID int64, op operatorIdentity, sourceFile string) *store.Batch {
	batch := &store.Batch{
		ClinicID:            clinicID,
		OperatorRegistry:    op.registry,
		OperatorName:        op.name,
		Number:              doc.Batch.Number,
		Competence:          doc.Batch.Competence,
		SubmissionDate:      utils.ParseDate(doc.Batch.SubmissionDate),
		GuideCount:          doc.Batch.DeclaredGuideCount,
		DeclaredTotal:       doc.Batch.DeclaredTotal,
		Status:              store.BatchStatusPending,
		SourceFile:          sourceFile,
		TransactionType:     doc.Header.TransactionType,
		TransactionSequence: doc.Header.Sequence,
		TransactionDate:     utils.ParseDate(doc.Header.RegistrationDate),
		TransactionTime:     clip(doc.Header.RegistrationTime, timeWidth),
		ProviderCNPJ:        doc.Header.ProviderCNPJ,
		ProviderName:        doc.Header.ProviderName,
		DestinationRegistry: doc.Header.OperatorRegistry,
		SchemaVersion:       doc.Header.SchemaVersion,
		CNES:                doc.Header.ProviderCNES,
		Hash:                doc.Hash,
	}
	if match, comparable := doc.HashMatches(); comparable {
		batch.HashValid = &match
	}
	return batch
}

func toGuideItem(g *types.Guide, batchID, clinicID int64, seq int) *store.Item {
	item := &store.Item{
		BatchID:             batchID,
		ClinicID:            clinicID,
		ItemType:            store.ItemTypeGuide,
		Sequence:            seq,
		ItemCode:            store.GuideItemCode,
		Multiplier:          1.0,
		DeclaredProcedures:  g.Totals.Procedures,
		DeclaredMedications: g.Totals.Medications,
		DeclaredMaterials:   g.Totals.Materials,
		DeclaredFees:        g.Totals.FeesRentals,
		DeclaredGuideTotal:  g.Totals.Grand,
		Observation:         g.Observation,
	}

	if h := g.Header; h != nil {
		item.ProviderGuideNumber = h.ProviderGuideNumber
		item.MainGuideNumber = h.MainGuideNumber
	}
	if a := g.Authorization; a != nil {
		item.OperatorGuideNumber = a.OperatorGuideNumber
		item.AuthorizationDate = utils.ParseDate(a.Date)
		item.Password = a.Password
		item.PasswordValidity = utils.ParseDate(a.PasswordValidity)
	}
	if b := g.Beneficiary; b != nil {
		item.CardNumber = b.CardNumber
		item.BeneficiaryName = b.Name
		item.Newborn = b.Newborn
	}
	if r := g.Requester; r != nil && r.Professional != nil {
		p := r.Professional
		item.RequesterName = p.Name
		item.RequesterCouncil = p.Council
		item.RequesterCouncilNumber = p.CouncilNumber
		item.RequesterState = p.State
		item.RequesterCBOS = p.CBOS
	}
	if r := g.Request; r != nil {
		item.RequestDate = utils.ParseDate(r.Date)
		item.CareCharacter = r.CareCharacter
		item.ClinicalIndication = r.ClinicalIndication
	}
	if e := g.Executor; e != nil {
		item.ExecutorCNPJ = e.ProviderCNPJ
		item.ExecutorName = e.ProviderName
		item.ExecutorCNES = e.CNES
	}
	if a := g.Attendance; a != nil {
		item.AttendanceType = a.Type
		item.AccidentIndication = a.AccidentIndication
		item.ConsultationType = a.ConsultationType
		item.ClosureReason = a.ClosureReason
		item.AttendanceRegime = a.Regime
	}
	return item
}

// toProcedureItem flattens the first team member into the row. Every member
// is also linked to the guide as a professional.
func toProcedureItem(p *types.Procedure, guide *store.Item) *store.Item {
	parentID := guide.ID
	item := &store.Item{
		BatchID:       guide.BatchID,
		ClinicID:      guide.ClinicID,
		ParentID:      &parentID,
		ItemType:      store.ItemTypeProcedure,
		Sequence:      p.Sequence,
		ExecutionDate: utils.ParseDate(p.ExecutionDate),
		StartTime:     clip(p.StartTime, timeWidth),
		EndTime:       clip(p.EndTime, timeWidth),
		TableCode:     p.Code.Table,
		ItemCode:      p.Code.Code,
		Description:   p.Code.Description,
		Quantity:      p.Quantity,
		AccessRoute:   p.AccessRoute,
		Technique:     p.Technique,
		Multiplier:    p.Multiplier,
		UnitPrice:     p.UnitPrice,
		TotalPrice:    p.TotalPrice,
		Unit:          p.Unit,
	}

	if len(p.Team) > 0 {
		m := p.Team[0]
		item.TeamDegree = m.Degree
		item.TeamCPF = m.CPF
		item.TeamName = m.Professional.Name
		item.TeamCouncil = m.Professional.Council
		item.TeamCouncilNumber = m.Professional.CouncilNumber
		item.TeamState = m.Professional.State
		item.TeamCBOS = m.Professional.CBOS
	}
	return item
}

func toExpenseItem(e *types.Expense, guide *store.Item) *store.Item {
	class := despesa.Classify(e.Code, e.Origin)
	exec := e.Execution
	parentID := guide.ID

	return &store.Item{
		BatchID:         guide.BatchID,
		ClinicID:        guide.ClinicID,
		ParentID:        &parentID,
		ItemType:        store.ItemTypeExpense,
		Sequence:        e.Sequence,
		ExecutionDate:   utils.ParseDate(exec.Date),
		StartTime:       clip(exec.StartTime, timeWidth),
		EndTime:         clip(exec.EndTime, timeWidth),
		TableCode:       exec.Code.Table,
		ItemCode:        exec.Code.Code,
		Description:     exec.Code.Description,
		Quantity:        exec.Quantity,
		Multiplier:      exec.Multiplier,
		UnitPrice:       exec.UnitPrice,
		TotalPrice:      exec.TotalPrice,
		Unit:            exec.Unit,
		ExpenseCode:     clip(class.Code, expenseCodeWidth),
		ExpenseCategory: string(class.Category),
		AnvisaRegistry:  exec.AnvisaRegistry,
		ManufacturerRef: exec.ManufacturerRef,
	}
}

// toProfessional returns nil when the identity has no council number, since
// the professional's natural key could not tell it apart from others.
func toProfessional(p types.Professional, cpf string, clinicID, batchID int64) *store.Professional {
	if p.CouncilNumber == "" {
		return nil
	}
	bid := batchID
	return &store.Professional{
		ClinicID:      clinicID,
		BatchID:       &bid,
		Name:          p.Name,
		CPF:           cpf,
		Council:       p.Council,
		CouncilNumber: p.CouncilNumber,
		State:         p.State,
		CBOS:          p.CBOS,
	}
}

// Column widths of the free-form fields that providers are known to overrun.
const (
	timeWidth        = 20
	expenseCodeWidth = 10
)

// clip cuts s to at most n runes so one oversized field cannot abort the
// whole batch transaction.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
