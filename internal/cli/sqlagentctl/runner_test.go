package sqlagentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	APIKey string
	Body   map[string]any
}

// fakeAPI answers by "METHOD path" and records every request.
type fakeAPI struct {
	routes   map[string]func(w http.ResponseWriter)
	requests []recordedRequest
}

func newFakeAPI(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, APIKey: r.Header.Get("X-API-Key")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		api.requests = append(api.requests, rec)
		handler, ok := api.routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":"NOT_FOUND","message":"no route"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

const successTurn = `{"session_id":"s1","utterance":"Indian TV shows","sql":"SELECT title FROM NETFLIX_MOVIES","columns":["title"],"rows":[["Sacred Games"],["Delhi Crime"]],"row_count":2,"state":"formatting_result","retry_available":false}`

const failedTurn = `{"session_id":"s1","utterance":"add years","sql":"SELECT year FROM NETFLIX_MOVIES","columns":[],"rows":[],"row_count":0,"error":"database error: column \"year\" does not exist","error_kind":"execution","state":"handled_error","retry_available":true}`

func run(t *testing.T, srv *httptest.Server, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), append([]string{"--base-url", srv.URL}, args...), Options{
		Stdin:   strings.NewReader(stdin),
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	return code, stdout.String(), stderr.String()
}

func TestRunHealthCommand(t *testing.T) {
	api, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"GET /v1/health": reply(http.StatusOK, `{"status":"ok"}`),
	})

	code, stdout, stderr := run(t, srv, "", "--api-key", "k1", "health")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if api.requests[0].APIKey != "k1" {
		t.Fatalf("api key header = %q", api.requests[0].APIKey)
	}
	if !strings.Contains(stdout, `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRunSessionNewPrintsID(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions": reply(http.StatusCreated, `{"session_id":"s1","turns":0}`),
	})

	code, stdout, _ := run(t, srv, "", "session", "new")
	if code != 0 || strings.TrimSpace(stdout) != "s1" {
		t.Fatalf("exit=%d stdout=%q", code, stdout)
	}
}

func TestRunAskRendersTable(t *testing.T) {
	api, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions/s1/turns": reply(http.StatusOK, successTurn),
	})

	code, stdout, stderr := run(t, srv, "", "ask", "s1", "Indian", "TV", "shows")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if api.requests[0].Body["utterance"] != "Indian TV shows" {
		t.Fatalf("request body = %#v", api.requests[0].Body)
	}
	for _, want := range []string{"SELECT title FROM NETFLIX_MOVIES", "Sacred Games", "Delhi Crime", "2 row(s)"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRunAskReportsFailedTurn(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions/s1/turns": reply(http.StatusOK, failedTurn),
	})

	code, _, stderr := run(t, srv, "", "ask", "s1", "add", "years")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, `column "year" does not exist`) || !strings.Contains(stderr, "retry available") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunAskJSONOutput(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions/s1/turns": reply(http.StatusOK, successTurn),
	})

	code, stdout, _ := run(t, srv, "", "-o", "json", "ask", "s1", "Indian TV shows")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if decoded["row_count"] != float64(2) {
		t.Fatalf("row_count = %v", decoded["row_count"])
	}
}

func TestRunHistoryPassesWindow(t *testing.T) {
	api, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"GET /v1/sessions/s1/history": reply(http.StatusOK, `{"entries":[],"turns":[]}`),
	})

	if code, _, stderr := run(t, srv, "", "history", "s1", "-n", "5"); code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr)
	}
	if api.requests[0].Query != "n=5" {
		t.Fatalf("query = %q", api.requests[0].Query)
	}
}

func TestRunExportSendsKind(t *testing.T) {
	api, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions/s1/export": reply(http.StatusCreated, `{"key":"exports/s1.parquet","kind":"result"}`),
	})

	if code, _, stderr := run(t, srv, "", "export", "s1", "--kind", "result"); code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr)
	}
	if api.requests[0].Body["kind"] != "result" {
		t.Fatalf("body = %#v", api.requests[0].Body)
	}
}

func TestRunValidateRejected(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/query/validate": reply(http.StatusOK, `{"accepted":false,"kind":"not_select","reason":"only SELECT queries are allowed"}`),
	})

	code, _, stderr := run(t, srv, "", "validate", "DELETE FROM NETFLIX_MOVIES")
	if code != 1 || !strings.Contains(stderr, "only SELECT queries are allowed") {
		t.Fatalf("exit=%d stderr=%q", code, stderr)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions/s1/retry": reply(http.StatusConflict, `{"error_code":"NOTHING_TO_RETRY","message":"no failed turn to retry"}`),
	})

	code, _, stderr := run(t, srv, "", "retry", "s1")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "NOTHING_TO_RETRY") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRunUsageErrors(t *testing.T) {
	_, srv := newFakeAPI(t, nil)
	for _, args := range [][]string{{}, {"unknown"}, {"ask", "s1"}, {"retry"}} {
		code, _, stderr := run(t, srv, "", args...)
		if code != 2 {
			t.Fatalf("args %v exit code = %d", args, code)
		}
		if stderr == "" {
			t.Fatalf("args %v expected usage output", args)
		}
	}
}

func TestChatLoop(t *testing.T) {
	api, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions":          reply(http.StatusCreated, `{"session_id":"s1"}`),
		"POST /v1/sessions/s1/turns": reply(http.StatusOK, failedTurn),
		"POST /v1/sessions/s1/retry": reply(http.StatusOK, successTurn),
		"POST /v1/sessions/s1/reset": reply(http.StatusOK, `{"session_id":"s1","turns":0}`),
	})

	code, stdout, stderr := run(t, srv, "add years\n\n/retry\n/reset\n/quit\nnever sent\n", "chat")
	if code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr)
	}
	var paths []string
	for _, req := range api.requests {
		paths = append(paths, req.Method+" "+req.Path)
	}
	want := []string{
		"POST /v1/sessions",
		"POST /v1/sessions/s1/turns",
		"POST /v1/sessions/s1/retry",
		"POST /v1/sessions/s1/reset",
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("requests = %v", paths)
	}
	if !strings.Contains(stdout, "Sacred Games") || !strings.Contains(stdout, "retry available") {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestChatStopsOnTransportError(t *testing.T) {
	_, srv := newFakeAPI(t, map[string]func(http.ResponseWriter){
		"POST /v1/sessions": reply(http.StatusCreated, `{"session_id":"s1"}`),
	})

	code, _, _ := run(t, srv, "titles from 2020\n", "chat")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}
