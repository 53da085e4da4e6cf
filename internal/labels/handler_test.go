package labels_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/authz/authztest"
	"github.com/projecthub/projecthub/internal/labels"
	"github.com/projecthub/projecthub/internal/platform/db"
)

type memoryStore struct {
	mu   sync.Mutex
	h    *authztest.Harness
	rows []labels.Label
}

func (m *memoryStore) Create(_ context.Context, _ db.Querier, l *labels.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *l)
	m.h.Source.Put("labels", l.ID, l.ID, l.ProjectID, l.Name)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, _ db.Querier, l *labels.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == l.ID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			break
		}
	}
	m.h.Source.Delete("labels", l.ID)
	return nil
}

func (m *memoryStore) ListByProject(_ context.Context, _ db.Querier, projectID int64) ([]labels.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []labels.Label
	for _, l := range m.rows {
		if l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	return out, nil
}

func setup(t *testing.T) (*authztest.Harness, *memoryStore, http.Handler, string, string) {
	t.Helper()
	h := authztest.New()
	store := &memoryStore{h: h}
	r := chi.NewRouter()
	r.Route("/labels", labels.NewHandler(nil, h.Deps, store).MountRoutes)

	h.Source.Put("projects", 1, int64(1), "Apollo", "moon", int64(1))
	h.Source.Put("projects", 2, int64(2), "Gemini", "orbit", int64(2))
	h.Members.Join(1, 1)
	h.Members.Join(2, 2)
	alice := h.Login(authz.Principal{ID: 1, Username: "alice", Email: "alice@example.com"})
	bob := h.Login(authz.Principal{ID: 2, Username: "bob", Email: "bob@example.com"})
	return h, store, r, alice, bob
}

func TestLabelLifecycle(t *testing.T) {
	h, store, router, alice, bob := setup(t)

	rec := h.Do(router, http.MethodPost, "/labels/", alice, `{"project_id":1,"name":"bug"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.rows, 1)

	rec = h.Do(router, http.MethodGet, "/labels/by_project/1", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []labels.Label
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, []labels.Label{{ID: 1, Name: "bug", ProjectID: 1}}, list)

	assert.Equal(t, http.StatusForbidden, h.Do(router, http.MethodDelete, "/labels/1", bob, "").Code)
	assert.Len(t, store.rows, 1)

	require.Equal(t, http.StatusOK, h.Do(router, http.MethodDelete, "/labels/1", alice, "").Code)
	assert.Empty(t, store.rows)
	assert.Zero(t, h.Source.Open())
}

func TestCreateLabelForForeignProject(t *testing.T) {
	h, store, router, alice, _ := setup(t)

	rec := h.Do(router, http.MethodPost, "/labels/", alice, `{"project_id":2,"name":"bug"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, store.rows)
}

func TestCreateLabelRequiresName(t *testing.T) {
	h, store, router, alice, _ := setup(t)

	rec := h.Do(router, http.MethodPost, "/labels/", alice, `{"project_id":1,"name":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.rows)
	assert.Zero(t, h.Source.Commits())
}

func TestListLabelsOfForeignProject(t *testing.T) {
	h, _, router, alice, _ := setup(t)

	rec := h.Do(router, http.MethodGet, "/labels/by_project/2", alice, "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
