package main

import (
	"net/http"
	"strings"

	"github.com/farxc/tiss_wrapper/internal/response"
	"github.com/farxc/tiss_wrapper/internal/store"
)

type GetIngestionHistoryResponse = response.APIResponse[[]store.IngestionHistory]

// @Summary		Get ingestion history
// @Description	Get ingestion records, newest first, optionally filtered by clinic, status and processing date.
// @Tags			Ingestion
// @Produce		json
// @Param			clinic_id	query		int							false	"Clinic id"
// @Param			status		query		string						false	"Comma-separated list of statuses"
// @Param			start_date	query		string						false	"Start date for filtering (YYYY-MM-DD)"
// @Param			end_date	query		string						false	"End date for filtering, exclusive (YYYY-MM-DD)"
// @Param			limit		query		int							false	"Limit the number of results"	default(10)
// @Success		200			{object}	GetIngestionHistoryResponse	"Successfully retrieved ingestion records"
// @Failure		400			{object}	response.ErrorResponse		"Invalid filter"
// @Failure		500			{object}	response.ErrorResponse		"Failed to get ingestion history"
// @Router			/ingestion/history [get]
func (app *application) handleGetIngestionHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.HistoryFilter{Limit: parseLimit(r, 10)}

	if raw := q.Get("clinic_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid clinic_id")
			return
		}
		filter.ClinicID = id
	}
	if raw := q.Get("status"); raw != "" {
		filter.Statuses = strings.Split(raw, ",")
	}

	var err error
	if filter.From, err = parseTime(parseDateOrDefault(q.Get("start_date"), "2000-01-01")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid start_date format (YYYY-MM-DD expected)")
		return
	}
	if filter.To, err = parseTime(parseDateOrDefault(q.Get("end_date"), "2100-12-31")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid end_date format (YYYY-MM-DD expected)")
		return
	}

	data, err := app.store.IngestionHistory.GetHistoryInRange(r.Context(), filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to get ingestion history: "+err.Error())
		return
	}

	resp := response.List(data, "Successfully retrieved ingestion records")
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
