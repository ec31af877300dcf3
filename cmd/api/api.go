package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/farxc/tiss_wrapper/internal/db"
	"github.com/farxc/tiss_wrapper/internal/logger"
	"github.com/farxc/tiss_wrapper/internal/store"
	"github.com/farxc/tiss_wrapper/internal/tiss"
)

type application struct {
	config       config
	store        *store.Storage
	orchestrator *tiss.Orchestrator
	logger       *logger.Logger
	startedAt    time.Time
}

type config struct {
	addr   string
	db     dbConfig
	ingest ingestConfig
	log    logConfig
}

type dbConfig struct {
	db.Config
	autoMigrate bool
}

type ingestConfig struct {
	timeout     time.Duration
	retryLimit  int
	uploadDir   string
	maxUploadMB int
}

type logConfig struct {
	level  string
	format string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(app.logger.Zerolog()))
	r.Use(middleware.Recoverer)

	// Set a timeout value on the request context (ctx), that will signal
	// through ctx.Done() that the request has timed out and further
	// processing should be stopped.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.Route("/clinics/{clinicID}", func(r chi.Router) {
			r.Post("/batches", app.handleUploadBatch)
			r.Get("/batches", app.handleListBatches)
			r.Get("/competences", app.handleGetCompetenceSummary)
		})
		r.Route("/batches/{id}", func(r chi.Router) {
			r.Get("/", app.handleGetBatch)
			r.Get("/items", app.handleGetBatchItems)
			r.Get("/summary", app.handleGetBatchSummary)
			r.Get("/history", app.handleGetBatchHistory)
			r.Get("/export.csv", app.handleExportBatchCSV)
			r.Patch("/status", app.handleUpdateBatchStatus)
		})
		r.Get("/guides/{id}/professionals", app.handleGetGuideProfessionals)
		r.Route("/ingestion", func(r chi.Router) {
			r.Get("/history", app.handleGetIngestionHistory)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 120,
		ReadTimeout:  time.Second * 40,
		IdleTimeout:  time.Minute,
	}

	app.logger.Info("API", "Server started on %s", app.config.addr)
	return srv.ListenAndServe()
}
