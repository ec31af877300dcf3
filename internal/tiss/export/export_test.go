package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/store/memstore"
	"github.com/farxc/tiss_wrapper/internal/tiss/load"
	"github.com/farxc/tiss_wrapper/internal/tiss/parser"
)

func fixtureRows(t *testing.T) []ItemRow {
	t.Helper()
	ctx := context.Background()

	doc, err := parser.ParseFile("../testdata/lote_sadt.xml")
	if err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	mem := memstore.New()
	storage := mem.Storage()
	res, err := load.NewIngester(storage, logger.Discard(), 0).Ingest(ctx, doc, 1, nil)
	if err != nil {
		t.Fatalf("failed to ingest fixture: %v", err)
	}
	batch, err := storage.Batch.GetByID(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("failed to load batch: %v", err)
	}
	items, err := storage.Item.ListByBatch(ctx, res.BatchID)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	return Rows(*batch, items)
}

func TestRows(t *testing.T) {
	rows := fixtureRows(t)
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	guide := rows[0]
	if guide.ItemType != store.ItemTypeGuide || guide.ItemCode != store.GuideItemCode || guide.ParentID != 0 {
		t.Errorf("expected guide row first, got %+v", guide)
	}
	if guide.BatchNumber != "987" || guide.OperatorRegistry != "123456" || guide.Competence != "2024-03" {
		t.Errorf("unexpected batch identity %+v", guide)
	}

	for _, r := range rows[1:] {
		if r.ParentID != guide.ItemID {
			t.Errorf("row %d: expected parent %d, got %d", r.ItemID, guide.ItemID, r.ParentID)
		}
		if r.ProviderGuideNumber != "G-0001" || r.CardNumber != "0001234500" {
			t.Errorf("row %d: guide fields not propagated: %+v", r.ItemID, r)
		}
		if r.DeclaredGuideTotal != 198.10 {
			t.Errorf("row %d: expected guide total 198.10, got %v", r.ItemID, r.DeclaredGuideTotal)
		}
		if r.ExecutionDate != "2024-03-12" {
			t.Errorf("row %d: expected execution date, got %q", r.ItemID, r.ExecutionDate)
		}
	}

	expense := rows[3]
	if expense.ItemType != store.ItemTypeExpense || expense.ExpenseCode != "02" || expense.ExpenseCategory != "medicamento" {
		t.Errorf("unexpected expense row %+v", expense)
	}
}

func TestCSV(t *testing.T) {
	rows := fixtureRows(t)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, _, _ := strings.Cut(buf.String(), "\n")
	if header != strings.Join(Columns(), ",") {
		t.Errorf("unexpected header %q", header)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 5 {
		t.Errorf("expected header plus 4 lines, got %d", lines)
	}

	back, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(back) != len(rows) {
		t.Fatalf("expected %d rows back, got %d", len(rows), len(back))
	}
	for i := range rows {
		if back[i] != rows[i] {
			t.Errorf("row %d differs:\n got %+v\nwant %+v", i, back[i], rows[i])
		}
	}
}

func TestCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != strings.Join(Columns(), ",") {
		t.Errorf("expected header only, got %q", got)
	}
}

func TestParquet(t *testing.T) {
	rows := fixtureRows(t)
	path := filepath.Join(t.TempDir(), "lote.parquet")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, FormatParquet, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	records, err := parquet.ReadFile[ItemRow](path)
	if err != nil {
		t.Fatalf("failed to read parquet file: %v", err)
	}
	if len(records) != len(rows) {
		t.Fatalf("expected %d records, got %d", len(rows), len(records))
	}
	for i := range rows {
		if records[i] != rows[i] {
			t.Errorf("record %d differs:\n got %+v\nwant %+v", i, records[i], rows[i])
		}
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xlsx", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}
