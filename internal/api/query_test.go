package api

import (
	"errors"
	"net/http"
	"testing"
)

func TestQueryRunsGuardedStatement(t *testing.T) {
	stack := newTestStack(t)
	h := stack.handler(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/v1/query", map[string]string{"sql": "SELECT title FROM NETFLIX_MOVIES"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeMap(t, rr)
	if body["row_count"] != float64(20) {
		t.Fatalf("row_count = %v", body["row_count"])
	}
	if columns := body["columns"].([]any); len(columns) != 1 || columns[0] != "title" {
		t.Fatalf("columns = %v", columns)
	}
	if _, ok := body["stats"].(map[string]any)["duration_ms"]; !ok {
		t.Fatalf("stats = %v", body["stats"])
	}
}

func TestQueryRejectsUnsafeStatement(t *testing.T) {
	h := newTestStack(t).handler(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/v1/query", map[string]string{"sql": "SELECT * FROM NETFLIX_MOVIES WHERE 1=1 OR DROP"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeMap(t, rr)
	if body["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	extra := body["context"].(map[string]any)
	if extra["kind"] != "forbidden_keyword" || extra["keyword"] != "drop" {
		t.Fatalf("context = %#v", extra)
	}
}

func TestQueryReportsExecutionFailure(t *testing.T) {
	stack := newTestStack(t)
	stack.conn.Err = errors.New("syntax error at or near FROM")
	h := stack.handler(t, nil)

	rr := doJSON(t, h, http.MethodPost, "/v1/query", map[string]string{"sql": "SELECT FROM NETFLIX_MOVIES"})
	if rr.Code != http.StatusBadRequest || decodeMap(t, rr)["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestQueryNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := doJSON(t, h, http.MethodPost, "/v1/query", map[string]string{"sql": "SELECT 1"})
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestValidateReturnsVerdict(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})

	rr := doJSON(t, h, http.MethodPost, "/v1/query/validate", map[string]string{"sql": "select title from NETFLIX_MOVIES"})
	if rr.Code != http.StatusOK || decodeMap(t, rr)["accepted"] != true {
		t.Fatalf("accepted status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/query/validate", map[string]string{"sql": "SELECT 1; SELECT 2"})
	body := decodeMap(t, rr)
	if body["accepted"] != false || body["kind"] != "multiple_statements" {
		t.Fatalf("rejected body = %#v", body)
	}
	if body["reason"] != "multiple SQL statements are not allowed" {
		t.Fatalf("reason = %v", body["reason"])
	}
}
