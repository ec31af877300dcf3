package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/farxc/tiss_wrapper/internal/response"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss"
	"github.com/farxc/tiss_wrapper/internal/tiss/export"
	"github.com/farxc/tiss_wrapper/internal/tiss/files"
	"github.com/farxc/tiss_wrapper/internal/tiss/load"
	"github.com/farxc/tiss_wrapper/internal/tiss/types"
)

type UploadResult struct {
	File       string `json:"file"`
	BatchID    int64  `json:"batch_id,omitempty"`
	Duplicate  bool   `json:"duplicate"`
	Status     string `json:"status"`
	Guides     int    `json:"guides"`
	Procedures int    `json:"procedures"`
	Expenses   int    `json:"expenses"`
	Error      string `json:"error,omitempty"`
}

type BatchSummary struct {
	Batch         *store.Batch            `json:"batch"`
	Categories    []store.CategorySummary `json:"categories"`
	Discrepancies []load.Discrepancy      `json:"discrepancies"`
}

type UploadBatchResponse = response.APIResponse[[]UploadResult]
type GetBatchesResponse = response.APIResponse[[]store.Batch]
type GetBatchResponse = response.APIResponse[*store.Batch]
type GetBatchItemsResponse = response.APIResponse[[]store.Item]
type GetBatchSummaryResponse = response.APIResponse[*BatchSummary]
type GetBatchHistoryResponse = response.APIResponse[[]store.BatchHistoryEntry]
type GetCompetenceSummaryResponse = response.APIResponse[[]store.CompetenceSummary]
type GetGuideProfessionalsResponse = response.APIResponse[[]store.GuideProfessionalDetail]

// @Summary		Upload a TISS batch
// @Description	Ingests a TISS XML, sent as the raw body or as the multipart field "file". A zip of XMLs is also accepted.
// @Tags			Batches
// @Accept			xml
// @Produce		json
// @Param			clinicID	path		int						true	"Clinic id"
// @Param			operator_id	query		int						false	"Operator registry override"
// @Success		201			{object}	UploadBatchResponse		"Batch ingested"
// @Success		200			{object}	UploadBatchResponse		"Batch already ingested"
// @Failure		422			{object}	response.ErrorResponse	"Malformed document"
// @Failure		500			{object}	response.ErrorResponse	"Failed to store batch"
// @Router			/clinics/{clinicID}/batches [post]
func (app *application) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	clinicID, err := parseIDParam(r, "clinicID")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid clinic id")
		return
	}

	var operatorOverride *int64
	if raw := r.URL.Query().Get("operator_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid operator_id")
			return
		}
		operatorOverride = &id
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(app.config.ingest.maxUploadMB)<<20)

	src, ext, err := uploadSource(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer src.Close()

	path, err := files.SaveSource(app.config.ingest.uploadDir, src, ext)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to store upload: "+err.Error())
		return
	}

	paths := []string{path}
	isZip, err := files.IsZip(path)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to inspect upload: "+err.Error())
		return
	}
	if isZip {
		res, err := files.ExtractXML(path, strings.TrimSuffix(path, filepath.Ext(path)), app.logger)
		if err != nil {
			writeJSONError(w, http.StatusUnprocessableEntity, "invalid zip: "+err.Error())
			return
		}
		if len(res.Files) == 0 {
			writeJSONError(w, http.StatusUnprocessableEntity, "zip holds no xml files")
			return
		}
		paths = res.Files
	}

	ctx := r.Context()
	results := make([]UploadResult, 0, len(paths))
	created, malformed, failed := 0, 0, 0
	for _, p := range paths {
		res := app.orchestrator.Run(ctx, tiss.IngestionJob{
			Path:             p,
			ClinicID:         clinicID,
			OperatorOverride: operatorOverride,
			Trigger:          store.TriggerTypeUpload,
		})
		results = append(results, toUploadResult(p, res))

		switch {
		case errors.Is(res.Error, types.ErrMalformedDocument):
			malformed++
		case res.Error != nil:
			failed++
		case !res.Result.Duplicate:
			created++
		}
	}

	status := http.StatusOK
	switch {
	case failed > 0:
		writeJSONError(w, http.StatusInternalServerError, "failed to store batch: "+firstError(results))
		return
	case malformed == len(results):
		writeJSONError(w, http.StatusUnprocessableEntity, "malformed document: "+firstError(results))
		return
	case created > 0:
		status = http.StatusCreated
	}

	resp := response.List(results, fmt.Sprintf("%d of %d documents ingested", created, len(results)))
	if err := writeJSON(w, status, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// uploadSource picks the multipart "file" field when present, the raw body
// otherwise.
func uploadSource(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		ext := ".xml"
		if mediaType == "application/zip" {
			ext = ".zip"
		}
		return r.Body, ext, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New("missing form field \"file\"")
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".zip" {
		ext = ".xml"
	}
	return file, ext, nil
}

func toUploadResult(path string, res tiss.IngestionResult) UploadResult {
	out := UploadResult{
		File:       filepath.Base(path),
		BatchID:    res.Result.BatchID,
		Duplicate:  res.Result.Duplicate,
		Status:     res.Status,
		Guides:     res.Result.Guides,
		Procedures: res.Result.Procedures,
		Expenses:   res.Result.Expenses,
	}
	if res.Error != nil {
		out.Error = res.Error.Error()
	}
	return out
}

func firstError(results []UploadResult) string {
	for _, r := range results {
		if r.Error != "" {
			return r.Error
		}
	}
	return ""
}

// @Summary		List batches
// @Tags			Batches
// @Produce		json
// @Param			clinicID	path		int					true	"Clinic id"
// @Param			limit		query		int					false	"Limit the number of results"	default(50)
// @Success		200			{object}	GetBatchesResponse	"Successfully retrieved batches"
// @Router			/clinics/{clinicID}/batches [get]
func (app *application) handleListBatches(w http.ResponseWriter, r *http.Request) {
	clinicID, err := parseIDParam(r, "clinicID")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid clinic id")
		return
	}

	data, err := app.store.Batch.ListByClinic(r.Context(), clinicID, parseLimit(r, 50))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list batches: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully retrieved batches")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Get batch
// @Tags			Batches
// @Produce		json
// @Param			id	path		int					true	"Batch id"
// @Success		200	{object}	GetBatchResponse	"Successfully retrieved batch"
// @Failure		404	{object}	response.ErrorResponse	"Batch not found"
// @Router			/batches/{id} [get]
func (app *application) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}

	resp := response.OK(batch, "Successfully retrieved batch")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// loadBatch resolves the {id} path parameter and writes the error response
// itself when that fails.
func (app *application) loadBatch(w http.ResponseWriter, r *http.Request) (*store.Batch, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid batch id")
		return nil, false
	}

	batch, err := app.store.Batch.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to get batch: "+err.Error())
		return nil, false
	}
	return batch, true
}

// @Summary		List batch items
// @Description	Guides come first, each followed by its procedures and expenses.
// @Tags			Batches
// @Produce		json
// @Param			id	path		int						true	"Batch id"
// @Success		200	{object}	GetBatchItemsResponse	"Successfully retrieved items"
// @Router			/batches/{id}/items [get]
func (app *application) handleGetBatchItems(w http.ResponseWriter, r *http.Request) {
	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}

	data, err := app.store.Item.ListByBatch(r.Context(), batch.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list items: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully retrieved items")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Batch summary
// @Description	Totals by item type and category, plus guides whose declared totals differ from their items.
// @Tags			Batches
// @Produce		json
// @Param			id	path		int						true	"Batch id"
// @Success		200	{object}	GetBatchSummaryResponse	"Successfully computed summary"
// @Router			/batches/{id}/summary [get]
func (app *application) handleGetBatchSummary(w http.ResponseWriter, r *http.Request) {
	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	categories, err := app.store.Report.GetBatchSummary(ctx, batch.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to summarize batch: "+err.Error())
		return
	}
	items, err := app.store.Item.ListByBatch(ctx, batch.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list items: "+err.Error())
		return
	}

	discrepancies := load.Reconcile(items)
	if discrepancies == nil {
		discrepancies = []load.Discrepancy{}
	}

	resp := response.OK(&BatchSummary{
		Batch:         batch,
		Categories:    categories,
		Discrepancies: discrepancies,
	}, "Successfully computed batch summary")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Batch history
// @Tags			Batches
// @Produce		json
// @Param			id	path		int						true	"Batch id"
// @Success		200	{object}	GetBatchHistoryResponse	"Successfully retrieved history"
// @Router			/batches/{id}/history [get]
func (app *application) handleGetBatchHistory(w http.ResponseWriter, r *http.Request) {
	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}

	data, err := app.store.BatchHistory.ListByBatch(r.Context(), batch.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list history: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully retrieved batch history")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Export batch items as CSV
// @Tags			Batches
// @Produce		text/csv
// @Param			id	path	int	true	"Batch id"
// @Success		200
// @Router			/batches/{id}/export.csv [get]
func (app *application) handleExportBatchCSV(w http.ResponseWriter, r *http.Request) {
	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}

	items, err := app.store.Item.ListByBatch(r.Context(), batch.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list items: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=lote_%s_%d.csv", batch.Number, batch.ID))
	if err := export.WriteCSV(w, export.Rows(*batch, items)); err != nil {
		app.logger.Error("API", "Failed to write csv export: batch=%d err=%v", batch.ID, err)
	}
}

var batchStatuses = map[string]bool{
	store.BatchStatusPending: true,
	store.BatchStatusPaid:    true,
	store.BatchStatusDenied:  true,
	store.BatchStatusPartial: true,
}

// @Summary		Update batch status
// @Description	Payment reconciliation hook. Records the change in the batch history.
// @Tags			Batches
// @Accept			json
// @Produce		json
// @Param			id		path		int								true	"Batch id"
// @Param			status	body		object{status:string,detail:string}	true	"New status"
// @Success		200		{object}	GetBatchResponse				"Status updated"
// @Failure		400		{object}	response.ErrorResponse			"Invalid status"
// @Router			/batches/{id}/status [patch]
func (app *application) handleUpdateBatchStatus(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Status string `json:"status"`
		Detail string `json:"detail"`
	}

	if err := readJSON(w, r, &input); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}
	if !batchStatuses[input.Status] {
		writeJSONError(w, http.StatusBadRequest, "invalid status: "+input.Status)
		return
	}

	batch, ok := app.loadBatch(w, r)
	if !ok {
		return
	}
	previous := batch.Status

	ctx := r.Context()
	err := app.store.Tx.WithTx(ctx, func(tx *store.Storage) error {
		if err := tx.Batch.UpdateStatus(ctx, batch.ID, input.Status); err != nil {
			return err
		}
		detail := fmt.Sprintf("%s -> %s", previous, input.Status)
		if input.Detail != "" {
			detail += ": " + input.Detail
		}
		return tx.BatchHistory.Insert(ctx, &store.BatchHistoryEntry{
			BatchID: batch.ID,
			Event:   store.EventStatusChanged,
			Detail:  detail,
		})
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to update status: "+err.Error())
		return
	}

	batch.Status = input.Status
	resp := response.OK(batch, "Batch status updated")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Competence summary
// @Description	Batches, guides and totals per competence and status for a clinic.
// @Tags			Reports
// @Produce		json
// @Param			clinicID	path		int								true	"Clinic id"
// @Param			competences	query		string							false	"Comma-separated list of competences (YYYY-MM)"
// @Success		200			{object}	GetCompetenceSummaryResponse	"Successfully computed summary"
// @Router			/clinics/{clinicID}/competences [get]
func (app *application) handleGetCompetenceSummary(w http.ResponseWriter, r *http.Request) {
	clinicID, err := parseIDParam(r, "clinicID")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid clinic id")
		return
	}

	var competences []string
	if raw := r.URL.Query().Get("competences"); raw != "" {
		competences = strings.Split(raw, ",")
	}

	data, err := app.store.Report.GetCompetenceSummary(r.Context(), clinicID, competences)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to summarize competences: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully computed competence summary")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Guide professionals
// @Tags			Batches
// @Produce		json
// @Param			id	path		int								true	"Guide item id"
// @Success		200	{object}	GetGuideProfessionalsResponse	"Successfully retrieved professionals"
// @Router			/guides/{id}/professionals [get]
func (app *application) handleGetGuideProfessionals(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid guide id")
		return
	}

	data, err := app.store.Professional.ListByGuide(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list professionals: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully retrieved professionals")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
