package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureLogs points the default slog logger at a buffer for one test and
// restores the previous logger afterwards.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// lastLogLine decodes the final JSON line written to buf.
func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	out := bytes.TrimSpace(buf.Bytes())
	if len(out) == 0 {
		t.Fatal("no log output")
	}
	lines := bytes.Split(out, []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("parsing log line: %v", err)
	}
	return entry
}

func TestStructuredLoggerRecordsRequest(t *testing.T) {
	buf := captureLogs(t)

	handler := StructuredLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bridges", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entry := lastLogLine(t, buf)
	if entry["msg"] != "http request" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "http request")
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/v1/bridges" {
		t.Errorf("path = %v, want /api/v1/bridges", entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(2) {
		t.Errorf("bytes = %v, want 2", entry["bytes"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("log line is missing duration_ms")
	}
}

func TestStructuredLoggerSeesHandlerStatus(t *testing.T) {
	buf := captureLogs(t)

	handler := StructuredLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conferences", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	entry := lastLogLine(t, buf)
	if entry["status"] != float64(http.StatusServiceUnavailable) {
		t.Errorf("logged status = %v, want 503", entry["status"])
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := newStatusRecorder(rr)

	sr.WriteHeader(http.StatusCreated)
	sr.WriteHeader(http.StatusInternalServerError)

	if sr.status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", sr.status)
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("recorder code = %d, want 201", rr.Code)
	}
}

func TestStatusRecorderImplicitOK(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := newStatusRecorder(rr)

	if sr.status != http.StatusOK {
		t.Fatalf("default status = %d, want 200", sr.status)
	}

	sr.Write([]byte("hello"))
	if sr.bytes != 5 {
		t.Fatalf("bytes = %d, want 5", sr.bytes)
	}
}
