package utils

import (
	"testing"
	"time"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1234,56", 1234.56},
		{"1234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1,234.56", 1234.56},
		{" 10 ", 10},
		{"R$ 99,90", 99.90},
		{"0.00", 0},
		{"", 0},
		{"abc", 0},
		{"12,3x", 0},
		{"1.234.567", 1234567},
		{"1,234,567", 1234567},
		{"1.234.567,89", 1234567.89},
		{"-12,50", -12.5},
		{"NaN", 0},
		{"Inf", 0},
		{"-Infinity", 0},
		{"1e3", 0},
		{"1e20", 0},
		{"0x1p4", 0},
		{"1.", 0},
	}

	for _, tt := range tests {
		if got := ParseDecimal(tt.in); got != tt.want {
			t.Errorf("ParseDecimal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if ParseDecimal("1234,56") != ParseDecimal("1234.56") {
		t.Error("expected both separators to yield the same value")
	}
}

func TestParseMultiplier(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 1.0},
		{"   ", 1.0},
		{"n/a", 1.0},
		{"1.00", 1.0},
		{"0,70", 0.70},
		{"1.5", 1.5},
		{"0", 0},
	}

	for _, tt := range tests {
		if got := ParseMultiplier(tt.in); got != tt.want {
			t.Errorf("ParseMultiplier(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2024-03-15", "15/03/2024"} {
		got := ParseDate(in)
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "2024-13-40", "yesterday"} {
		if got := ParseDate(in); got != nil {
			t.Errorf("ParseDate(%q) = %v, want nil", in, got)
		}
	}
}

func TestCompetence(t *testing.T) {
	if got := Competence("2024-03-15"); got != "2024-03" {
		t.Errorf("unexpected competence %q", got)
	}
	if got := Competence(""); got != "" {
		t.Errorf("expected empty competence, got %q", got)
	}
}

func TestParseInt(t *testing.T) {
	if ParseInt(" 7 ") != 7 || ParseInt("x") != 0 || ParseInt("") != 0 {
		t.Error("unexpected ParseInt result")
	}
	if ParseInt64("123456789012") != 123456789012 {
		t.Error("unexpected ParseInt64 result")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(10.005); got != 10.01 && got != 10.0 {
		t.Errorf("unexpected rounding %v", got)
	}
	if got := Round2(-3.456); got != -3.46 {
		t.Errorf("unexpected rounding %v", got)
	}
	if got := Round2(1e17); got != 1e17 {
		t.Errorf("expected large sums to keep their sign, got %v", got)
	}
	if got := Round2(-2.5e15); got != -2.5e15 {
		t.Errorf("unexpected rounding %v", got)
	}
}
