package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TISS_TEST_INT", "abc")
	if got := GetInt("TISS_TEST_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	t.Setenv("TISS_TEST_INT", "12")
	if got := GetInt("TISS_TEST_INT", 7); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

func TestGetDurationAndBool(t *testing.T) {
	t.Setenv("TISS_TEST_DUR", "90s")
	if got := GetDuration("TISS_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}
	if got := GetDuration("TISS_TEST_DUR_MISSING", time.Second); got != time.Second {
		t.Errorf("expected fallback, got %s", got)
	}

	t.Setenv("TISS_TEST_BOOL", "Sim")
	if !GetBool("TISS_TEST_BOOL", false) {
		t.Error("expected Sim to be true")
	}
	t.Setenv("TISS_TEST_BOOL", "maybe")
	if GetBool("TISS_TEST_BOOL", false) {
		t.Error("expected fallback false for unrecognized value")
	}
}

func TestLoadDoesNotOverrideExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TISS_TEST_FROM_FILE=file\nTISS_TEST_PRESET=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TISS_TEST_PRESET", "process")
	os.Unsetenv("TISS_TEST_FROM_FILE")
	defer os.Unsetenv("TISS_TEST_FROM_FILE")

	Load(path, filepath.Join(dir, "missing.env"))

	if got := GetString("TISS_TEST_FROM_FILE", ""); got != "file" {
		t.Errorf("expected value from file, got %q", got)
	}
	if got := GetString("TISS_TEST_PRESET", ""); got != "process" {
		t.Errorf("expected process value to win, got %q", got)
	}
}
