package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func logOnce(t *testing.T, path string, status int) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://localhost:5500")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if buf.Len() == 0 {
		return nil
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggerRecordsOriginAndStatus(t *testing.T) {
	entry := logOnce(t, "/chat", http.StatusOK)
	if entry == nil {
		t.Fatal("expected a log line")
	}
	if entry["origin"] != "http://localhost:5500" || entry["status"] != float64(200) || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLoggerLevelsByStatus(t *testing.T) {
	if got := logOnce(t, "/chat", http.StatusBadRequest)["level"]; got != "warn" {
		t.Fatalf("expected warn for 400, got %v", got)
	}
	if got := logOnce(t, "/chat", http.StatusInternalServerError)["level"]; got != "error" {
		t.Fatalf("expected error for 500, got %v", got)
	}
}

func TestLoggerQuietsHealthChecks(t *testing.T) {
	if entry := logOnce(t, "/healthz", http.StatusOK); entry != nil {
		t.Fatalf("health check logged at info: %v", entry)
	}
}
