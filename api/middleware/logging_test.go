package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
)

func TestLoggingRecordsRoutePatternAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("info"), Output: &buf})
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Use(RequestID(logg), Logging(logg, metrics.NewHTTPMetrics(reg)))
	r.Get("/api/v1/members/{memberID}/loans/history", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/3f1c/loans/history", nil)
	req.Header.Set(requestIDHeader, "req-123")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, "req-123", resp.Header().Get(requestIDHeader))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, buf.String())
	var complete map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &complete))
	require.Equal(t, "request.complete", complete["message"])
	require.Equal(t, float64(http.StatusTeapot), complete["status"])
	require.Equal(t, float64(len("short and stout")), complete["bytes"])
	require.Equal(t, "/api/v1/members/{memberID}/loans/history", complete["route"])
	require.Equal(t, "req-123", complete["request_id"])

	count, err := testutil.GatherAndCount(reg, "circulation_http_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestLoggingWarnsOnServerErrors(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := Logging(logg, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Contains(t, lines[len(lines)-1], `"level":"warn"`)
}

func TestLoggingWithoutLoggerStillServes(t *testing.T) {
	handler := Logging(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
