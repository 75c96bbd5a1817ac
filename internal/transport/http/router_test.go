package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	audithandler "audittrail/internal/audit/handler"
	"audittrail/internal/platform/metrics"
	"audittrail/pkg/platform/audit/query"
	"audittrail/pkg/platform/audit/store/memory"
)

func newTestRouter(t *testing.T, health map[string]HealthCheck) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := query.New(memory.NewInMemoryStore(), query.WithLogger(logger))
	if err != nil {
		t.Fatalf("query service: %v", err)
	}
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Logger:         logger,
		AdminJWTSecret: "router-jwt-secret",
		Admin:          audithandler.New(svc, logger, 0),
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		Health:         health,
	})
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter_Health(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	rr := serve(newTestRouter(t, map[string]HealthCheck{"postgres": ok}), "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"postgres":"ok"}}`, rr.Body.String())

	rr = serve(newTestRouter(t, map[string]HealthCheck{"postgres": ok, "redis": down}), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestRouter_AdminRoutesAreGuarded(t *testing.T) {
	rr := serve(newTestRouter(t, nil), "/admin/audit/logs")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	serve(h, "/admin/audit/logs")

	rr := serve(h, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `audittrail_http_requests_total{route="/admin/audit`)
	assert.Contains(t, body, `status="401"} 1`)
}

func TestRouter_IngestNotMountedWithoutHandler(t *testing.T) {
	rr := serve(newTestRouter(t, nil), "/internal/audit/events")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
