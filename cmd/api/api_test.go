package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/store/memstore"
	"github.com/farxc/tiss_wrapper/internal/tiss/export"
)

const fixture = "../../internal/tiss/testdata/lote_sadt.xml"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestApp(t *testing.T) (*application, http.Handler) {
	t.Helper()
	cfg := config{
		ingest: ingestConfig{
			retryLimit:  2,
			uploadDir:   t.TempDir(),
			maxUploadMB: 8,
		},
	}
	app := newApplication(cfg, memstore.New().Storage(), logger.Discard())
	return app, app.mount()
}

func readFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(fixture)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return data
}

func do(t *testing.T, h http.Handler, method, target, contentType string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, target, err)
		}
	}
	return rr, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	return out
}

func upload(t *testing.T, h http.Handler, clinic string, body []byte) (int, []UploadResult, envelope) {
	t.Helper()
	rr, env := do(t, h, http.MethodPost, "/v1/clinics/"+clinic+"/batches", "application/xml", body)
	if rr.Code >= 400 {
		return rr.Code, nil, env
	}
	return rr.Code, decode[[]UploadResult](t, env), env
}

func TestHealth(t *testing.T) {
	_, h := newTestApp(t)
	rr, _ := do(t, h, http.MethodGet, "/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"available"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestHealthDegraded(t *testing.T) {
	mem := memstore.New()
	mem.Fault = func(op string) error {
		if op == "ingestion.list" {
			return errors.New("connection refused")
		}
		return nil
	}
	app := newApplication(config{}, mem.Storage(), logger.Discard())

	rr, _ := do(t, app.mount(), http.MethodGet, "/v1/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"degraded"`) {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}

func TestUploadAndIdempotence(t *testing.T) {
	_, h := newTestApp(t)
	body := readFixture(t)

	code, results, _ := upload(t, h, "1", body)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if len(results) != 1 || results[0].BatchID == 0 || results[0].Duplicate {
		t.Fatalf("unexpected results %+v", results)
	}
	if results[0].Status != store.StatusSuccess || results[0].Guides != 1 || results[0].Procedures != 2 || results[0].Expenses != 1 {
		t.Errorf("unexpected counts %+v", results[0])
	}

	code, again, _ := upload(t, h, "1", body)
	if code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", code)
	}
	if !again[0].Duplicate || again[0].BatchID != results[0].BatchID || again[0].Status != store.StatusDuplicate {
		t.Errorf("expected duplicate of %d, got %+v", results[0].BatchID, again[0])
	}

	rr, env := do(t, h, http.MethodGet, "/v1/clinics/1/batches", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if batches := decode[[]store.Batch](t, env); len(batches) != 1 {
		t.Errorf("expected 1 batch, got %d", len(batches))
	}

	rr, env = do(t, h, http.MethodGet, "/v1/ingestion/history?clinic_id=1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	history := decode[[]store.IngestionHistory](t, env)
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	for _, h := range history {
		if h.TriggerType != store.TriggerTypeUpload {
			t.Errorf("unexpected trigger %q", h.TriggerType)
		}
	}
}

func TestUploadMalformed(t *testing.T) {
	_, h := newTestApp(t)
	code, _, env := upload(t, h, "1", []byte("<mensagemTISS><cabecalho>"))
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	if !strings.Contains(env.Error, "malformed") {
		t.Errorf("unexpected error %q", env.Error)
	}
}

func TestUploadBadParams(t *testing.T) {
	_, h := newTestApp(t)
	if code, _, _ := upload(t, h, "abc", readFixture(t)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad clinic id, got %d", code)
	}
	rr, _ := do(t, h, http.MethodPost, "/v1/clinics/1/batches?operator_id=x", "application/xml", readFixture(t))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad operator id, got %d", rr.Code)
	}
}

func TestUploadMultipart(t *testing.T) {
	_, h := newTestApp(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "lote.xml")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(readFixture(t))
	mw.Close()

	rr, env := do(t, h, http.MethodPost, "/v1/clinics/3/batches", mw.FormDataContentType(), buf.Bytes())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, env.Error)
	}
}

func TestUploadZip(t *testing.T) {
	_, h := newTestApp(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"a.xml", "b.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write(readFixture(t))
	}
	w, _ := zw.Create("leia-me.txt")
	w.Write([]byte("ignored"))
	zw.Close()

	rr, env := do(t, h, http.MethodPost, "/v1/clinics/1/batches", "application/zip", buf.Bytes())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, env.Error)
	}
	results := decode[[]UploadResult](t, env)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].Duplicate == results[1].Duplicate || results[0].BatchID != results[1].BatchID {
		t.Errorf("expected one new batch and one duplicate of it, got %+v", results)
	}
}

func TestEmptyListKeepsData(t *testing.T) {
	_, h := newTestApp(t)
	rr, _ := do(t, h, http.MethodGet, "/v1/clinics/42/batches", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"data":[]`) || !strings.Contains(body, `"count":0`) {
		t.Errorf("expected empty data array, got %s", body)
	}
}

func TestBatchEndpoints(t *testing.T) {
	_, h := newTestApp(t)
	_, results, _ := upload(t, h, "1", readFixture(t))
	id := strconv.FormatInt(results[0].BatchID, 10)

	rr, env := do(t, h, http.MethodGet, "/v1/batches/"+id, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	batch := decode[store.Batch](t, env)
	if batch.Number != "987" || batch.Status != store.BatchStatusPending || batch.GuideCount != 1 {
		t.Errorf("unexpected batch %+v", batch)
	}

	rr, env = do(t, h, http.MethodGet, "/v1/batches/"+id+"/items", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	items := decode[[]store.Item](t, env)
	if len(items) != 4 || items[0].ItemType != store.ItemTypeGuide {
		t.Fatalf("expected guide first among 4 items, got %d items", len(items))
	}

	rr, env = do(t, h, http.MethodGet, "/v1/batches/"+id+"/summary", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	summary := decode[BatchSummary](t, env)
	if len(summary.Discrepancies) != 0 {
		t.Errorf("fixture totals balance, got %+v", summary.Discrepancies)
	}
	if len(summary.Categories) == 0 {
		t.Error("expected category totals")
	}

	rr, env = do(t, h, http.MethodGet, "/v1/guides/"+strconv.FormatInt(items[0].ID, 10)+"/professionals", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if pros := decode[[]store.GuideProfessionalDetail](t, env); len(pros) != 2 {
		t.Errorf("expected requester and executor, got %+v", pros)
	}

	rr, _ = do(t, h, http.MethodGet, "/v1/batches/"+id+"/export.csv", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("unexpected content type %q", ct)
	}
	if lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n"); len(lines) != 5 || lines[0] != strings.Join(export.Columns(), ",") {
		t.Errorf("unexpected csv:\n%s", rr.Body.String())
	}

	rr, env = do(t, h, http.MethodGet, "/v1/clinics/1/competences?competences=2024-03", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if comp := decode[[]store.CompetenceSummary](t, env); len(comp) != 1 || comp[0].Competence != "2024-03" {
		t.Errorf("unexpected competence summary %+v", comp)
	}
}

func TestUpdateBatchStatus(t *testing.T) {
	_, h := newTestApp(t)
	_, results, _ := upload(t, h, "1", readFixture(t))
	id := strconv.FormatInt(results[0].BatchID, 10)

	rr, _ := do(t, h, http.MethodPatch, "/v1/batches/"+id+"/status", "application/json", []byte(`{"status":"aberto"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rr.Code)
	}
	rr, _ = do(t, h, http.MethodPatch, "/v1/batches/"+id+"/status", "application/json", []byte(`{"state":"pago"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", rr.Code)
	}
	rr, _ = do(t, h, http.MethodPatch, "/v1/batches/999999/status", "application/json", []byte(`{"status":"pago"}`))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}

	rr, env := do(t, h, http.MethodPatch, "/v1/batches/"+id+"/status", "application/json", []byte(`{"status":"glosado","detail":"glosa total"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, env.Error)
	}
	if batch := decode[store.Batch](t, env); batch.Status != store.BatchStatusDenied {
		t.Errorf("expected status glosado, got %q", batch.Status)
	}

	_, env = do(t, h, http.MethodGet, "/v1/batches/"+id+"/history", "", nil)
	history := decode[[]store.BatchHistoryEntry](t, env)
	if len(history) != 2 {
		t.Fatalf("expected import and status entries, got %+v", history)
	}
	var changed *store.BatchHistoryEntry
	for i := range history {
		if history[i].Event == store.EventStatusChanged {
			changed = &history[i]
		}
	}
	if changed == nil || changed.Detail != "pendente -> glosado: glosa total" {
		t.Errorf("unexpected status entry %+v", changed)
	}
}

func TestBatchNotFound(t *testing.T) {
	_, h := newTestApp(t)
	for _, target := range []string{"/v1/batches/42", "/v1/batches/42/items", "/v1/batches/42/export.csv"} {
		rr, _ := do(t, h, http.MethodGet, target, "", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rr.Code)
		}
	}
	rr, _ := do(t, h, http.MethodGet, "/v1/batches/abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
