// Package despesa owns the classification of "outras despesas" lines into
// medication, material and fee buckets.
package despesa

import (
	"strings"

	"github.com/farxc/tiss_wrapper/internal/tiss/types"
)

// Category is the bucket an expense is billed under.
type Category string

const (
	CategoryMedication Category = "medicamento"
	CategoryMaterial   Category = "material"
	CategoryFee        Category = "taxa"
	CategoryOther      Category = "outra"
)

// Canonical despesa codes (TISS table 25).
const (
	CodeMedication = "02"
	CodeMaterial   = "03"
	CodeFee        = "07"
)

type bucket struct {
	Category Category
	Code     string
}

var byCode = map[string]bucket{
	CodeMedication: {CategoryMedication, CodeMedication},
	CodeMaterial:   {CategoryMaterial, CodeMaterial},
	CodeFee:        {CategoryFee, CodeFee},
}

var byOrigin = map[types.ExpenseOrigin]bucket{
	types.OriginMedication: byCode[CodeMedication],
	types.OriginMaterial:   byCode[CodeMaterial],
	types.OriginFee:        byCode[CodeFee],
}

// Classification is the result of Classify. Code is the value to persist.
type Classification struct {
	Category Category
	Code     string
}

// Classify maps a source despesa code and container origin to a bucket.
//
// A known code always wins. Without a code the container origin decides and
// the bucket's canonical code is filled in. Unknown codes stay as sent under
// CategoryOther.
func Classify(code string, origin types.ExpenseOrigin) Classification {
	code = normalizeCode(code)

	if b, ok := byCode[code]; ok {
		return Classification(b)
	}
	if code != "" {
		return Classification{Category: CategoryOther, Code: code}
	}
	if b, ok := byOrigin[origin]; ok {
		return Classification(b)
	}
	return Classification{Category: CategoryOther}
}

// CanonicalCode returns the default code for a bucket, or "" for CategoryOther.
func CanonicalCode(c Category) string {
	for _, b := range byCode {
		if b.Category == c {
			return b.Code
		}
	}
	return ""
}

// normalizeCode pads single digit codes, which some providers send as "2".
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if len(code) == 1 && code[0] >= '0' && code[0] <= '9' {
		return "0" + code
	}
	return code
}
