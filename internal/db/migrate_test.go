package db

import (
	"strings"
	"testing"
)

func TestLoadMigrationsSortedAndParsed(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_init" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("migrations not sorted: %d before %d", migrations[i-1].Version, migrations[i].Version)
		}
	}
	if migrations[0].SQL == "" {
		t.Error("expected migration body to be loaded")
	}
}

func TestWidenMigrationFollowsInit(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) < 2 || migrations[1].Version != 2 {
		t.Fatalf("expected a version 2 migration, got %+v", migrations)
	}
	for _, col := range []string{"hora_registro_transacao", "hora_inicial", "hora_final", "codigo_despesa"} {
		if !strings.Contains(migrations[1].SQL, col) {
			t.Errorf("expected %s to be widened", col)
		}
	}
}
