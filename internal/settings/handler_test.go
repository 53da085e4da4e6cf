package settings_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/authz/authztest"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/settings"
)

type memoryStore struct {
	mu      sync.Mutex
	rows    map[int64]settings.Settings
	failing error
}

func (m *memoryStore) Get(_ context.Context, _ db.Querier, userID int64) (*settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) Update(_ context.Context, _ db.Querier, s *settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	m.rows[s.UserID] = *s
	return nil
}

func setup(t *testing.T) (*authztest.Harness, *memoryStore, http.Handler, string) {
	t.Helper()
	h := authztest.New()
	store := &memoryStore{rows: map[int64]settings.Settings{
		1: {UserID: 1, AutoLogoffTime: settings.DefaultAutoLogoffTime, ThemeMode: settings.DefaultThemeMode},
	}}
	r := chi.NewRouter()
	r.Route("/settings", settings.NewHandler(nil, h.Deps, store).MountRoutes)
	token := h.Login(authz.Principal{ID: 1, Username: "alice", Email: "alice@example.com"})
	return h, store, r, token
}

func TestGetSettings(t *testing.T) {
	h, _, router, token := setup(t)

	rec := h.Do(router, http.MethodGet, "/settings/", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got settings.Settings
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, settings.Settings{UserID: 1, AutoLogoffTime: 10, ThemeMode: "light"}, got)
}

func TestGetSettingsRequiresSession(t *testing.T) {
	h, _, router, _ := setup(t)

	rec := h.Do(router, http.MethodGet, "/settings/", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, h.Source.Acquired())
}

func TestUpdateSettingsPartial(t *testing.T) {
	h, store, router, token := setup(t)

	rec := h.Do(router, http.MethodPut, "/settings/", token, `{"theme_mode":"dark","auto_logoff_enabled":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, settings.Settings{UserID: 1, AutoLogoffTime: 10, AutoLogoffEnabled: true, ThemeMode: "dark"}, store.rows[1])
	assert.Equal(t, 1, h.Source.Commits())
}

func TestUpdateSettingsValidation(t *testing.T) {
	for name, body := range map[string]string{
		"zero logoff":    `{"auto_logoff_time":0}`,
		"too long":       `{"auto_logoff_time":1441}`,
		"unknown theme":  `{"theme_mode":"sepia"}`,
		"malformed body": `{"theme_mode":`,
	} {
		t.Run(name, func(t *testing.T) {
			h, store, router, token := setup(t)

			rec := h.Do(router, http.MethodPut, "/settings/", token, body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "light", store.rows[1].ThemeMode)
			assert.Zero(t, h.Source.Commits())
		})
	}
}

func TestUpdateSettingsStorageFailure(t *testing.T) {
	h, store, router, token := setup(t)
	store.failing = errors.New("disk full")

	rec := h.Do(router, http.MethodPut, "/settings/", token, `{"theme_mode":"dark"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, h.Source.Rollbacks())
	assert.Equal(t, 1, h.Source.Released())
}

func TestUpdateSettingsLogsChange(t *testing.T) {
	h := authztest.New()
	store := &memoryStore{rows: map[int64]settings.Settings{1: {UserID: 1, AutoLogoffTime: 10, ThemeMode: "light"}}}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := chi.NewRouter()
	r.Route("/settings", settings.NewHandler(logger, h.Deps, store).MountRoutes)
	token := h.Login(authz.Principal{ID: 1, Username: "alice", Email: "alice@example.com"})

	rec := h.Do(r, http.MethodPut, "/settings/", token, `{"theme_mode":"dark"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "settings updated", entry["msg"])
	assert.Equal(t, float64(1), entry["user_id"])
}
