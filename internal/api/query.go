package api

import (
	"errors"
	"net/http"

	"github.com/sqlagent/sqlagent/internal/auth"
	"github.com/sqlagent/sqlagent/internal/guard"
	"github.com/sqlagent/sqlagent/internal/query"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Columns  []string    `json:"columns"`
	Rows     []query.Row `json:"rows"`
	RowCount int         `json:"row_count"`
	Stats    queryStats  `json:"stats"`
}

type queryStats struct {
	DurationMs int64 `json:"duration_ms"`
}

// handleQuery runs caller-supplied SQL through the same guard and row cap
// the agent uses, bypassing generation.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query executor is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var request queryRequest
	if !decodeBody(w, r, &request, false) {
		return
	}

	result, err := deps.Executor.Execute(r.Context(), deps.Warehouse, request.SQL)
	if err != nil {
		var violation *guard.Violation
		var execErr *query.ExecutionError
		switch {
		case errors.As(err, &violation):
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", violation.Error(), false, map[string]any{
				"kind":    violation.Kind,
				"keyword": violation.Keyword,
			})
		case errors.As(err, &execErr):
			writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", execErr.Error(), false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), true, nil)
		}
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
		Stats:    queryStats{DurationMs: result.Duration.Milliseconds()},
	})
}

func handleValidate(w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var request queryRequest
	if !decodeBody(w, r, &request, false) {
		return
	}
	writeJSON(w, http.StatusOK, guard.Check(request.SQL))
}
