package main

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Storage string `json:"storage"`
	Error   string `json:"error,omitempty"`
}

// @Summary		Health check
// @Description	reports whether the service and its storage are reachable
// @Tags			Health
// @Produce		json
// @Success		200	{object}	healthStatus
// @Failure		503	{object}	healthStatus
// @Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := healthStatus{
		Status:  "available",
		Version: version,
		Uptime:  time.Since(app.startedAt).Round(time.Second).String(),
		Storage: "ok",
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := app.store.IngestionHistory.GetLatest(ctx, 1); err != nil {
		app.logger.Warn("API", "Health probe failed: %v", err)
		health.Status = "degraded"
		health.Storage = "unreachable"
		health.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}
