package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// ParseDate accepts the ISO form TISS uses and the dd/mm/yyyy form some
// providers still send. Anything else is nil.
func ParseDate(dateStr string) *time.Time {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return &t
		}
	}
	return nil
}

// Competence returns the YYYY-MM period of a date, or "" when it does not parse.
func Competence(dateStr string) string {
	t := ParseDate(dateStr)
	if t == nil {
		return ""
	}
	return t.Format("2006-01")
}

var plainDecimal = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// ParseDecimal reads a monetary or quantity value written with either "." or
// "," as decimal separator. When both appear the last one is the decimal
// separator and the other is a thousands mark. A separator that repeats on its
// own is a thousands mark too. Anything that is not a plain decimal is 0, so
// exponents, NaN and Inf never get through.
func ParseDecimal(valStr string) float64 {
	cleanStr := strings.TrimSpace(valStr)
	cleanStr = strings.TrimPrefix(cleanStr, "R$")
	cleanStr = strings.ReplaceAll(cleanStr, " ", "")
	if cleanStr == "" {
		return 0.0
	}

	cleanStr = normalizeSeparators(cleanStr)
	if !plainDecimal.MatchString(cleanStr) {
		return 0.0
	}

	val, err := strconv.ParseFloat(cleanStr, 64)
	if err != nil {
		return 0.0
	}
	return val
}

func normalizeSeparators(s string) string {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		sep := strings.LastIndexAny(s, ".,")
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:sep])
		return intPart + "." + s[sep+1:]
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// ParseMultiplier is ParseDecimal for reducaoAcrescimo, whose neutral value is
// 1.0. An absent or unreadable factor is treated as no adjustment.
func ParseMultiplier(valStr string) float64 {
	if strings.TrimSpace(valStr) == "" {
		return 1.0
	}
	cleanStr := strings.TrimSpace(valStr)
	if strings.Trim(cleanStr, "0123456789.,") != "" {
		return 1.0
	}
	return ParseDecimal(cleanStr)
}

func ParseInt(valStr string) int {
	valStr = strings.TrimSpace(valStr)
	if valStr == "" {
		return 0
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0
	}
	return val
}

func ParseInt64(valStr string) int64 {
	valStr = strings.TrimSpace(valStr)
	if valStr == "" {
		return 0
	}
	val, err := strconv.ParseInt(valStr, 10, 64)
	if err != nil {
		return 0
	}
	return val
}

func ParseBool(valStr string) bool {
	return strings.EqualFold(valStr, "S") || strings.EqualFold(valStr, "Sim") || strings.EqualFold(valStr, "Yes") || valStr == "1"
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
