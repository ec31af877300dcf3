package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", LevelInfo)

	l.Info("Loader", "batch %s loaded", "42")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "Loader" {
		t.Errorf("expected component Loader, got %v", line["component"])
	}
	if line["message"] != "batch 42 loaded" {
		t.Errorf("unexpected message %v", line["message"])
	}
	if line["level"] != "info" {
		t.Errorf("expected level info, got %v", line["level"])
	}
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", LevelWarn)

	l.Debug("X", "hidden")
	l.Info("X", "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	l.SetLogLevel(LevelDebug)
	l.Debug("X", "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug line after lowering level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDiscardIsSilent(t *testing.T) {
	l := Discard()
	l.Error("X", "nothing to see")
}
