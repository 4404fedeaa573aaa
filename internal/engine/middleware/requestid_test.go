package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"flowplane/internal/logger"
)

func TestRequestIDMiddleware_AssignsAndEchoesID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	middleware := RequestIDMiddleware(base)

	var seenID string
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/waits", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seenID == "" {
		t.Error("handler saw no request id in context")
	}
	if got := rr.Header().Get("X-Request-Id"); got != seenID {
		t.Errorf("response header id %q, context id %q", got, seenID)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("access log line not JSON: %v", err)
	}
	if record["request_id"] != seenID {
		t.Errorf("log request_id %v, want %q", record["request_id"], seenID)
	}
	if record["status"] != float64(http.StatusCreated) {
		t.Errorf("log status %v, want 201", record["status"])
	}
	if record["path"] != "/waits" {
		t.Errorf("log path %v, want /waits", record["path"])
	}
}

func TestRequestIDMiddleware_KeepsCallerSuppliedID(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	middleware := RequestIDMiddleware(base)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logger.RequestIDFromContext(r.Context()); got != "upstream-7" {
			t.Errorf("got id %q, want upstream-7", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/waits", nil)
	req.Header.Set("X-Request-Id", "upstream-7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-Id"); got != "upstream-7" {
		t.Errorf("echoed id %q, want upstream-7", got)
	}
}

func TestRequestIDMiddleware_DefaultStatusIsOK(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	middleware := RequestIDMiddleware(base)

	// Handler writes a body without an explicit WriteHeader.
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("access log line not JSON: %v", err)
	}
	if record["status"] != float64(http.StatusOK) {
		t.Errorf("log status %v, want 200", record["status"])
	}
}
