package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, "charlink", "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Str("uid", "u1").Msg("visible")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log output is not a single JSON line: %q", buf.String())
	}
	if line["app"] != "charlink" || line["uid"] != "u1" || line["message"] != "visible" {
		t.Fatalf("line = %+v", line)
	}
}

func TestInitLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := initLogger(&buf, "charlink", "bogus", "json")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info", logger.GetLevel())
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/x", nil))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["level"] != "warn" || line["status"] != float64(404) || line["path"] != "/v1/sessions/x" {
		t.Fatalf("line = %+v", line)
	}
}
