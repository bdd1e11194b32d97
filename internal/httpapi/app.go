// Package httpapi exposes the ticket pipeline over HTTP: uploads, ticket
// reads, stage triggers, dashboard metrics, and XLSX export.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/zavaops/ticketflow/internal/common"
	"github.com/zavaops/ticketflow/internal/export"
	"github.com/zavaops/ticketflow/internal/ingest"
	"github.com/zavaops/ticketflow/internal/metrics"
	"github.com/zavaops/ticketflow/internal/pipeline"
	"github.com/zavaops/ticketflow/internal/refdata"
	"github.com/zavaops/ticketflow/internal/store"
)

// App bundles the handler dependencies.
type App struct {
	Store      store.TicketStore
	Ingest     *ingest.Service
	Dispatcher ingest.Submitter
	Metrics    *metrics.Service
	Export     *export.Service
	Mappings   *refdata.Mappings
	Logger     *slog.Logger
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(app *App) chi.Router {
	if app.Logger == nil {
		app.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(app.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", app.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", app.createTicket)
			r.Get("/", app.listTickets)
			r.Get("/export", app.exportTickets)
			r.Route("/{ticketID}", func(r chi.Router) {
				r.Get("/", app.getTicket)
				r.Delete("/", app.deleteTicket)
				r.Get("/extraction", app.stageResults(pipeline.StageExtract))
				r.Get("/ai-processing", app.stageResults(pipeline.StageStandardize))
				r.Get("/invoice-processing", app.stageResults(pipeline.StageInvoice))
				r.Post("/extract", app.triggerStage(pipeline.StageExtract))
				r.Post("/process-ai", app.triggerStage(pipeline.StageStandardize))
				r.Post("/process-invoice", app.triggerStage(pipeline.StageInvoice))
				r.Post("/reprocess", app.reprocessTicket)
			})
		})

		r.Get("/dashboard/metrics", app.dashboard)
		r.Get("/code-mappings", app.codeMappings)
	})

	return r
}

// requestID stamps each request with an ID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}

func (a *App) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", common.RequestIDFromContext(r.Context()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps application errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if msg == "" {
			msg = appErr.Code
		}
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
