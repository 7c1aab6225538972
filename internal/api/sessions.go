package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sqlagent/sqlagent/internal/agent"
	"github.com/sqlagent/sqlagent/internal/auth"
	"github.com/sqlagent/sqlagent/internal/memory"
	"github.com/sqlagent/sqlagent/internal/observability"
	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/session"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

const maxHistoryWindow = 100

type turnRequest struct {
	Utterance string `json:"utterance"`
}

type exportRequest struct {
	Kind string `json:"kind"`
}

type turnResponse struct {
	SessionID      string      `json:"session_id"`
	Utterance      string      `json:"utterance"`
	SQL            string      `json:"sql,omitempty"`
	Columns        []string    `json:"columns"`
	Rows           []query.Row `json:"rows"`
	RowCount       int         `json:"row_count"`
	Error          string      `json:"error,omitempty"`
	ErrorKind      string      `json:"error_kind,omitempty"`
	State          string      `json:"state"`
	PreviousError  string      `json:"previous_error,omitempty"`
	RetryAvailable bool        `json:"retry_available"`
	Path           []string    `json:"path"`
	DurationMs     int64       `json:"duration_ms"`
}

type historyResponse struct {
	SessionID string            `json:"session_id"`
	Entries   []memory.Entry    `json:"entries"`
	Turns     []transcript.Turn `json:"turns"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !sessionsConfigured(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleChat); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	s, err := deps.Sessions.Create(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "failed to create session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, s.Status())
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !sessionsConfigured(deps, w, r) {
		return
	}
	if err := requireRole(r, auth.RoleChat); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	id := r.PathValue("id")
	err := deps.Sessions.Delete(r.Context(), id, auth.PrincipalFromContext(r.Context()))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, map[string]any{"session_id": id})
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_DELETE_FAILED", "failed to delete session", true, map[string]any{"details": err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleTurn reports turn failures in the body with status 200; HTTP errors
// are reserved for requests that never reached the agent.
func handleTurn(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	var request turnRequest
	if !decodeBody(w, r, &request, false) {
		return
	}
	if isBlank(request.Utterance) {
		writeError(r.Context(), w, http.StatusBadRequest, "UTTERANCE_REQUIRED", "utterance is required", false, nil)
		return
	}
	start := time.Now()
	outcome := s.Ask(r.Context(), request.Utterance)
	writeJSON(w, http.StatusOK, newTurnResponse(s, outcome, time.Since(start)))
}

func handleRetry(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	start := time.Now()
	outcome, err := s.Retry(r.Context())
	switch {
	case errors.Is(err, session.ErrNothingToRetry):
		writeError(r.Context(), w, http.StatusConflict, "NOTHING_TO_RETRY", err.Error(), false, nil)
		return
	case errors.Is(err, session.ErrRetryExhausted):
		writeError(r.Context(), w, http.StatusConflict, "RETRY_EXHAUSTED", err.Error(), false, nil)
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "RETRY_FAILED", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, newTurnResponse(s, outcome, time.Since(start)))
}

func handleReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if err := s.Reset(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_RESET_FAILED", "failed to reset session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	n := memory.DefaultWindow
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryWindow {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_HISTORY_WINDOW", "n must be between 1 and 100", false, map[string]any{"n": raw})
			return
		}
		n = parsed
	}
	entries, err := s.History(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", "failed to read conversation memory", true, map[string]any{"details": err.Error()})
		return
	}
	turns := s.Turns()
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: s.ID(), Entries: entries, Turns: turns})
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	s, r, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "object store export is not configured", false, nil)
		return
	}
	request := exportRequest{Kind: "transcript"}
	if !decodeBody(w, r, &request, true) {
		return
	}

	switch request.Kind {
	case "transcript":
		turns := s.Turns()
		if deps.Transcripts != nil {
			stored, err := deps.Transcripts.List(r.Context(), s.ID(), 0)
			if err != nil {
				writeError(r.Context(), w, http.StatusInternalServerError, "TRANSCRIPT_UNAVAILABLE", "failed to load transcript", true, map[string]any{"details": err.Error()})
				return
			}
			turns = stored
		}
		artifact, err := deps.Exporter.Transcript(r.Context(), s.ID(), turns)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export transcript", true, map[string]any{"details": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, artifact)
	case "result":
		last, ok := s.LastResult()
		if !ok {
			writeError(r.Context(), w, http.StatusConflict, "NO_RESULT", "session has no successful result to export", false, nil)
			return
		}
		artifact, err := deps.Exporter.Result(r.Context(), s.ID(), last.Columns, last.Rows)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export result", true, map[string]any{"details": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, artifact)
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_KIND", "kind must be transcript or result", false, map[string]any{"kind": request.Kind})
	}
}

func sessionsConfigured(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session manager is not configured", false, nil)
		return false
	}
	return true
}

// lookupSession resolves the {id} path value for the caller's principal and
// returns the request with the session id attached to its context.
func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Session, *http.Request, bool) {
	if !sessionsConfigured(deps, w, r) {
		return nil, r, false
	}
	if err := requireRole(r, auth.RoleChat); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, r, false
	}
	id := r.PathValue("id")
	s, err := deps.Sessions.Get(id, auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session was not found", false, map[string]any{"session_id": id})
		return nil, r, false
	}
	return s, r.WithContext(observability.ContextWithSessionID(r.Context(), id)), true
}

func newTurnResponse(s *session.Session, outcome agent.Outcome, elapsed time.Duration) turnResponse {
	response := turnResponse{
		SessionID:      s.ID(),
		Utterance:      outcome.Utterance,
		SQL:            outcome.SQL,
		Columns:        outcome.Columns,
		Rows:           outcome.Rows,
		RowCount:       len(outcome.Rows),
		State:          outcome.Final,
		ErrorKind:      outcome.ErrKind,
		PreviousError:  outcome.PreviousError,
		RetryAvailable: s.Status().RetryAvailable,
		Path:           outcome.Path,
		DurationMs:     elapsed.Milliseconds(),
	}
	if outcome.Err != nil {
		response.Error = outcome.Err.Error()
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if response.Rows == nil {
		response.Rows = []query.Row{}
	}
	return response
}
