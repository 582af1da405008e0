package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/queryloom/queryloom/internal/config"
	"github.com/queryloom/queryloom/internal/observability"
	"github.com/queryloom/queryloom/internal/pipeline"
)

type ReadinessCheck func(ctx context.Context) error

type QueryPipeline interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Pipeline          QueryPipeline
	Database          ReadinessCheck
	VectorStore       ReadinessCheck
	DependencyTimeout time.Duration
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// handleReady reports per-dependency state. The database is required;
// the vector store only degrades the service, because retrieval
// fails closed to an empty context when it is down.
func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	components := map[string]string{}
	ready := true

	if deps.Database != nil {
		if err := deps.Database(ctx); err != nil {
			components["database"] = "unreachable"
			ready = false
		} else {
			components["database"] = "ok"
		}
	}
	if deps.VectorStore != nil {
		if err := deps.VectorStore(ctx); err != nil {
			components["vector_store"] = "degraded"
		} else {
			components["vector_store"] = "ok"
		}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "components": components})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "components": components})
}

func CheckDatabase(db *sql.DB) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database handle is not configured")
		}
		return db.PingContext(ctx)
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, detail string, retryable bool) {
	writeJSON(w, status, map[string]any{
		"reason_code": code,
		"detail":      detail,
		"retryable":   retryable,
		"trace_id":    observability.TraceIDFromContext(ctx),
	})
}
