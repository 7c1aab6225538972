// Package api serves the conversational query agent over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/sqlagent/sqlagent/internal/auth"
	"github.com/sqlagent/sqlagent/internal/config"
	"github.com/sqlagent/sqlagent/internal/export"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/session"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

type ReadinessCheck func(ctx context.Context) error

type SessionManager interface {
	Create(ctx context.Context, principal string) (*session.Session, error)
	Get(id, principal string) (*session.Session, error)
	Delete(ctx context.Context, id, principal string) error
}

type QueryExecutor interface {
	Execute(ctx context.Context, conn query.Conn, candidate string) (query.Result, error)
}

type Exporter interface {
	Transcript(ctx context.Context, sessionID string, turns []transcript.Turn) (export.Artifact, error)
	Result(ctx context.Context, sessionID string, columns []string, rows []query.Row) (export.Artifact, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          SessionManager
	Executor          QueryExecutor
	Warehouse         query.Conn
	Exporter          Exporter
	// Transcripts, when set, is the source for transcript exports.
	Transcripts transcript.Store
}

var protectedRoutes = []string{
	"POST /v1/sessions",
	"GET /v1/sessions/{id}",
	"DELETE /v1/sessions/{id}",
	"POST /v1/sessions/{id}/turns",
	"POST /v1/sessions/{id}/retry",
	"POST /v1/sessions/{id}/reset",
	"GET /v1/sessions/{id}/history",
	"POST /v1/sessions/{id}/export",
	"POST /v1/query",
	"POST /v1/query/validate",
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleCreateSession(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteSession(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/turns", func(w http.ResponseWriter, r *http.Request) {
		handleTurn(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/retry", func(w http.ResponseWriter, r *http.Request) {
		handleRetry(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
		handleReset(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		handleHistory(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sessions/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/validate", func(w http.ResponseWriter, r *http.Request) {
		handleValidate(w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			observability.OrDiscard(deps.Logger).Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, route := range protectedRoutes {
		mux.Handle(route, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	handler := chain(mux, middlewares...)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Trace-ID"},
			ExposedHeaders: []string{"X-Trace-ID"},
		}).Handler(handler)
	}
	return handler
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// NamedCheck prefixes failures of check with name.
func NamedCheck(name string, check func(ctx context.Context) error) ReadinessCheck {
	if check == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// decodeBody decodes a JSON request body. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func isBlank(value string) bool { return strings.TrimSpace(value) == "" }
