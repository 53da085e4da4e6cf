package sprints_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/authz/authztest"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/sprints"
)

type memoryStore struct {
	mu     sync.Mutex
	h      *authztest.Harness
	nextID int64
	rows   map[int64]sprints.Sprint
}

func (m *memoryStore) Create(_ context.Context, _ db.Querier, s *sprints.Sprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.rows[s.ID] = *s
	m.h.Source.Put("sprints", s.ID, s.ID, s.ProjectID, s.Name, s.StartDate, s.EndDate)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, _ db.Querier, s *sprints.Sprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, s.ID)
	m.h.Source.Delete("sprints", s.ID)
	return nil
}

func (m *memoryStore) ListByProject(_ context.Context, _ db.Querier, projectID int64) ([]sprints.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sprints.Sprint
	for _, s := range m.rows {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fixture struct {
	h      *authztest.Harness
	store  *memoryStore
	router http.Handler
	member string
	other  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	h := authztest.New()
	store := &memoryStore{h: h, rows: make(map[int64]sprints.Sprint)}
	r := chi.NewRouter()
	r.Route("/sprints", sprints.NewHandler(nil, h.Deps, store).MountRoutes)

	h.Source.Put("projects", 1, int64(1), "Apollo", "moon", int64(1))
	h.Members.Join(1, 1)
	return &fixture{
		h:      h,
		store:  store,
		router: r,
		member: h.Login(authz.Principal{ID: 1, Username: "alice", Email: "alice@example.com"}),
		other:  h.Login(authz.Principal{ID: 2, Username: "bob", Email: "bob@example.com"}),
	}
}

const sprintBody = `{"project_id":1,"name":"Sprint 1","start_date":"2024-03-01","end_date":"2024-03-14"}`

func TestCreateSprint(t *testing.T) {
	f := setup(t)

	rec := f.h.Do(f.router, http.MethodPost, "/sprints/", f.member, sprintBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.store.rows, 1)
	s := f.store.rows[1]
	assert.Equal(t, int64(1), s.ProjectID)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), s.EndDate)
	assert.Equal(t, 1, f.h.Source.Commits())
}

func TestCreateSprintRejections(t *testing.T) {
	cases := map[string]struct {
		token  func(*fixture) string
		body   string
		status int
	}{
		"non member":         {func(f *fixture) string { return f.other }, sprintBody, http.StatusForbidden},
		"no session":         {func(*fixture) string { return "" }, sprintBody, http.StatusUnauthorized},
		"unknown project":    {func(f *fixture) string { return f.member }, `{"project_id":9,"name":"S","start_date":"2024-03-01","end_date":"2024-03-14"}`, http.StatusForbidden},
		"missing project id": {func(f *fixture) string { return f.member }, `{"name":"S","start_date":"2024-03-01","end_date":"2024-03-14"}`, http.StatusBadRequest},
		"empty name":         {func(f *fixture) string { return f.member }, `{"project_id":1,"name":"","start_date":"2024-03-01","end_date":"2024-03-14"}`, http.StatusBadRequest},
		"bad date":           {func(f *fixture) string { return f.member }, `{"project_id":1,"name":"S","start_date":"01/03/2024","end_date":"2024-03-14"}`, http.StatusBadRequest},
		"ends before start":  {func(f *fixture) string { return f.member }, `{"project_id":1,"name":"S","start_date":"2024-03-14","end_date":"2024-03-01"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := setup(t)

			rec := f.h.Do(f.router, http.MethodPost, "/sprints/", tc.token(f), tc.body)

			assert.Equal(t, tc.status, rec.Code)
			assert.Empty(t, f.store.rows)
			assert.Zero(t, f.h.Source.Open())
		})
	}
}

func TestListAndDeleteSprints(t *testing.T) {
	f := setup(t)
	require.Equal(t, http.StatusCreated, f.h.Do(f.router, http.MethodPost, "/sprints/", f.member, sprintBody).Code)

	rec := f.h.Do(f.router, http.MethodGet, "/sprints/by_project/1", f.member, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "2024-03-01", list[0]["start_date"])

	assert.Equal(t, http.StatusForbidden, f.h.Do(f.router, http.MethodGet, "/sprints/by_project/1", f.other, "").Code)
	assert.Equal(t, http.StatusForbidden, f.h.Do(f.router, http.MethodDelete, "/sprints/1", f.other, "").Code)

	require.Equal(t, http.StatusOK, f.h.Do(f.router, http.MethodDelete, "/sprints/1", f.member, "").Code)
	assert.Empty(t, f.store.rows)
	assert.Equal(t, http.StatusForbidden, f.h.Do(f.router, http.MethodDelete, "/sprints/1", f.member, "").Code)
}

func TestListEmptyProjectIsArray(t *testing.T) {
	f := setup(t)

	rec := f.h.Do(f.router, http.MethodGet, "/sprints/by_project/1", f.member, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
