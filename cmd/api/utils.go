package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const defaultIngestTimeout = 2 * time.Minute

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name))
}

// parseLimit reads ?limit=, falling back to def for missing or non-positive
// values.
func parseLimit(r *http.Request, def int) int {
	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		return def
	}
	l, err := strconv.Atoi(limitParam)
	if err != nil || l <= 0 {
		return def
	}
	return l
}

func parseDateOrDefault(dateStr, defaultStr string) string {
	if dateStr == "" {
		return defaultStr
	}
	return dateStr
}

func parseTime(dateStr string) (time.Time, error) {
	return time.Parse("2006-01-02", dateStr)
}
