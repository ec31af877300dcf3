package load

import (
	"math"

	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss/despesa"
	"github.com/farxc/tiss_wrapper/internal/tiss/utils"
)

// Reconciled fields.
const (
	FieldProcedures  = "procedimentos"
	FieldMedications = "medicamentos"
	FieldMaterials   = "materiais"
	FieldFees        = "taxas"
	FieldTotal       = "total"
)

const tolerance = 0.005

// Discrepancy is a guide whose declared total for Field differs from the sum
// of its stored children.
type Discrepancy struct {
	GuideItemID         int64   `json:"guide_item_id"`
	ProviderGuideNumber string  `json:"provider_guide_number"`
	Field               string  `json:"field"`
	Declared            float64 `json:"declared"`
	Computed            float64 `json:"computed"`
	Difference          float64 `json:"difference"`
}

type guideSums struct {
	procedures, medications, materials, fees, total float64
}

// Reconcile compares each guide's declared totals with the values of its
// procedure and expense items. Items must belong to a single batch.
func Reconcile(items []store.Item) []Discrepancy {
	sums := make(map[int64]*guideSums)
	var guides []store.Item

	for _, it := range items {
		if it.ItemType == store.ItemTypeGuide {
			guides = append(guides, it)
			if sums[it.ID] == nil {
				sums[it.ID] = &guideSums{}
			}
			continue
		}
		if it.ParentID == nil {
			continue
		}
		s := sums[*it.ParentID]
		if s == nil {
			s = &guideSums{}
			sums[*it.ParentID] = s
		}

		s.total += it.TotalPrice
		switch {
		case it.ItemType == store.ItemTypeProcedure:
			s.procedures += it.TotalPrice
		case it.ExpenseCategory == string(despesa.CategoryMedication):
			s.medications += it.TotalPrice
		case it.ExpenseCategory == string(despesa.CategoryMaterial):
			s.materials += it.TotalPrice
		case it.ExpenseCategory == string(despesa.CategoryFee):
			s.fees += it.TotalPrice
		}
	}

	out := []Discrepancy{}
	for _, g := range guides {
		s := sums[g.ID]
		checks := []struct {
			field    string
			declared float64
			computed float64
		}{
			{FieldProcedures, g.DeclaredProcedures, s.procedures},
			{FieldMedications, g.DeclaredMedications, s.medications},
			{FieldMaterials, g.DeclaredMaterials, s.materials},
			{FieldFees, g.DeclaredFees, s.fees},
			{FieldTotal, g.DeclaredGuideTotal, s.total},
		}
		for _, c := range checks {
			diff := utils.Round2(c.declared - c.computed)
			if math.Abs(diff) < tolerance {
				continue
			}
			out = append(out, Discrepancy{
				GuideItemID:         g.ID,
				ProviderGuideNumber: g.ProviderGuideNumber,
				Field:               c.field,
				Declared:            c.declared,
				Computed:            utils.Round2(c.computed),
				Difference:          diff,
			})
		}
	}
	return out
}
