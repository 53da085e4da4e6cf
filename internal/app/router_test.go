package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/authz/authztest"
	"github.com/projecthub/projecthub/internal/observability"
	"github.com/projecthub/projecthub/internal/projects"
)

func testConfig() *Config {
	return &Config{AppEnv: "development", CORSOrigins: []string{"http://localhost:3000"}}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: testConfig(),
		Checks: map[string]Pinger{"postgres": func(context.Context) error { return nil }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok", "postgres": "ok"}, body)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthzDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: testConfig(),
		Checks: map[string]Pinger{"redis": func(context.Context) error { return errors.New("dial tcp: refused") }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unavailable"`)
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(RouterParams{Config: testConfig()})
	req := httptest.NewRequest(http.MethodOptions, "/projects/mine", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouterMountsGuardedRoutesAndMetrics(t *testing.T) {
	h := authztest.New()
	metrics := observability.NewMetrics()
	h.Deps.Decisions = metrics
	router := NewRouter(RouterParams{
		Config:          testConfig(),
		Metrics:         metrics,
		ProjectsHandler: projects.NewHandler(nil, h.Deps, projects.NewRepository(), nil),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/3", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `projecthub_authz_decisions_total{kind="project",outcome="unauthenticated"} 1`), body)
	assert.Contains(t, body, `route="/projects/{project_id}"`)
}
