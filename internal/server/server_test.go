package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/netlens/netlens/internal/config"
	"github.com/netlens/netlens/internal/core"
	"github.com/netlens/netlens/internal/core/governor"
)

func newTestServer(t *testing.T) (*Server, *governor.Governor) {
	t.Helper()
	gov := governor.New(governor.Options{JitterMax: -1})
	srv := New(config.ServerConfig{Host: "localhost", Port: 8080}, gov)
	return srv, gov
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_version")
}

func TestUsageEndpoints(t *testing.T) {
	srv, gov := newTestServer(t)

	permit, err := gov.Acquire(context.Background(), "crt_sh", "lookup", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeSuccess)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var usages []core.Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usages))
	require.Len(t, usages, 1)
	require.Equal(t, "crt_sh", usages[0].Service)
	require.Equal(t, 1, usages[0].MinuteUsed)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage/crt_sh", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var usage core.Usage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	require.Equal(t, "closed", usage.BreakerStatus)
}

func TestMetricsEndpoints(t *testing.T) {
	srv, gov := newTestServer(t)

	permit, err := gov.Acquire(context.Background(), "shodan", "lookup", time.Minute)
	require.NoError(t, err)
	permit.Release(core.OutcomeSuccess)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics/shodan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap core.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.EqualValues(t, 1, snap.Total)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/metrics/reset?service=shodan", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 0, gov.Metrics("shodan").Total)
}

func TestSetPolicyEndpoint(t *testing.T) {
	srv, gov := newTestServer(t)

	body := bytes.NewBufferString(`{"requests_per_minute":20,"requests_per_hour":200,"burst_limit":4,"burst_window":"5s"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/policies/custom", body))
	require.Equal(t, http.StatusOK, rec.Code)

	policy := gov.Policy("custom")
	require.Equal(t, 20, policy.RequestsPerMinute)
	require.Equal(t, 5*time.Second, policy.BurstWindow)
}

func TestSetPolicyEndpointRejectsInvalid(t *testing.T) {
	srv, gov := newTestServer(t)

	body := bytes.NewBufferString(`{"requests_per_minute":100,"requests_per_hour":10,"burst_limit":4}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/policies/custom", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "CONFIG_INVALID")
	// The previous policy is retained.
	require.Equal(t, core.FallbackPolicy("custom"), gov.Policy("custom"))
}

func TestUnknownRouteEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
