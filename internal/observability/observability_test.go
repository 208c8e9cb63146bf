package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// counterValue reads a counter from the default registry by name and labels.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordProviderCall("openai", "initial", "ok", 2*time.Second, 100, 50)
	RecordProviderCall("openai", "merge", "timeout", time.Second, 0, 0)
	RecordSession("completed")

	if got := counterValue(t, "hivecouncil_provider_calls_total", map[string]string{"provider": "openai", "phase": "merge", "outcome": "timeout"}); got < 1 {
		t.Errorf("provider_calls_total{merge,timeout} = %v, want >= 1", got)
	}
	if got := counterValue(t, "hivecouncil_provider_tokens_total", map[string]string{"provider": "openai", "direction": "input"}); got < 100 {
		t.Errorf("provider_tokens_total{input} = %v, want >= 100", got)
	}
}

func TestInitLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("hivecouncil", "warn", "json", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["app"] != "hivecouncil" || entry["message"] != "shown" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := InitLogger("hivecouncil", "info", "json", &buf)

	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/7", nil))

	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
	if !strings.Contains(buf.String(), `"path":"/ping/:id"`) {
		t.Errorf("log line missing route path: %s", buf.String())
	}
	if got := counterValue(t, "hivecouncil_http_requests_total", map[string]string{"method": "GET", "path": "/ping/:id", "status": "418"}); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}
