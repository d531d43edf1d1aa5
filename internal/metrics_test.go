package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	router := chi.NewRouter()
	router.Use(m.Middleware())
	router.Get("/assets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/assets/123", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/assets/{id}",status="418"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds")
	assert.NotContains(t, body, `path="/assets/123"`)
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.QRGenerated()
	m.QRGenerated()
	m.QRFailed("upload")
	m.LoginFailed("locked")

	body := scrape(t, m)
	assert.Contains(t, body, "itam_qr_codes_generated_total 2")
	assert.Contains(t, body, `itam_qr_failures_total{stage="upload"} 1`)
	assert.Contains(t, body, `itam_login_failures_total{reason="locked"} 1`)
}

func TestMetricsRouteOnlyWhenEnabled(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Setenv("ENABLE_METRICS", "true")
	ts = newTestServer(t)
	w = ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/health"`)
}
