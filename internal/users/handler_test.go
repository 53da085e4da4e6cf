package users_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/authz/authztest"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/users"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*users.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, rows: make(map[int64]*users.User)}
}

func (m *memoryStore) Get(_ context.Context, _ db.Querier, id int64) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) FindByLogin(_ context.Context, _ db.Querier, login string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == login || u.Username == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, httpx.ErrNotFound
}

func (m *memoryStore) Create(_ context.Context, _ db.Querier, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("user already exists: %w", httpx.ErrDuplicate)
		}
	}
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memoryStore) Update(_ context.Context, _ db.Querier, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.rows[u.ID] = &cp
	return nil
}

func (m *memoryStore) Delete(_ context.Context, _ db.Querier, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, u.ID)
	return nil
}

func setup(t *testing.T) (*authztest.Harness, *memoryStore, http.Handler) {
	t.Helper()
	h := authztest.New()
	store := newMemoryStore()
	r := chi.NewRouter()
	r.Route("/users", users.NewHandler(nil, h.Deps, store, nil).MountRoutes)
	return h, store, r
}

const validSignup = `{"username":"alice","email":"alice@example.com","password":"secret1","company":"Acme","phone":"123","sex":"f"}`

func TestRegister(t *testing.T) {
	h, store, router := setup(t)

	rec := h.Do(router, http.MethodPost, "/users/", "", validSignup)

	require.Equal(t, http.StatusCreated, rec.Code)
	u, err := store.FindByLogin(context.Background(), nil, "alice")
	require.NoError(t, err)
	assert.True(t, u.VerifyPassword("secret1"))
	assert.False(t, u.VerifyPassword("wrong"))
	assert.Equal(t, 1, h.Source.Released())
}

func TestRegisterDuplicate(t *testing.T) {
	h, _, router := setup(t)
	require.Equal(t, http.StatusCreated, h.Do(router, http.MethodPost, "/users/", "", validSignup).Code)

	rec := h.Do(router, http.MethodPost, "/users/", "", validSignup)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	cases := map[string]string{
		"short username":   `{"username":"al","email":"a@example.com","password":"secret1","company":"c","phone":"1","sex":"f"}`,
		"invalid username": `{"username":"al!ce","email":"a@example.com","password":"secret1","company":"c","phone":"1","sex":"f"}`,
		"bad email":        `{"username":"alice","email":"nope","password":"secret1","company":"c","phone":"1","sex":"f"}`,
		"short password":   `{"username":"alice","email":"a@example.com","password":"12345","company":"c","phone":"1","sex":"f"}`,
		"missing company":  `{"username":"alice","email":"a@example.com","password":"secret1","phone":"1","sex":"f"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h, store, router := setup(t)

			rec := h.Do(router, http.MethodPost, "/users/", "", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, store.rows)
			assert.Zero(t, h.Source.Acquired())
		})
	}
}

func TestRegisterRejectsPasswordBeyondBcryptLimit(t *testing.T) {
	cases := map[string]string{
		"ascii":     strings.Repeat("a", 80),
		"multibyte": strings.Repeat("é", 40),
	}
	for name, password := range cases {
		t.Run(name, func(t *testing.T) {
			h, store, router := setup(t)
			body := fmt.Sprintf(`{"username":"alice","email":"alice@example.com","password":%q,"company":"Acme","phone":"123","sex":"f"}`, password)

			rec := h.Do(router, http.MethodPost, "/users/", "", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "72 bytes")
			assert.Empty(t, store.rows)
			assert.Zero(t, h.Source.Acquired())
		})
	}
}

func TestSetPasswordAcceptsBcryptLimit(t *testing.T) {
	u := &users.User{}

	require.NoError(t, u.SetPassword(strings.Repeat("a", users.MaxPasswordBytes)))
	assert.True(t, u.VerifyPassword(strings.Repeat("a", users.MaxPasswordBytes)))

	err := u.SetPassword(strings.Repeat("a", users.MaxPasswordBytes+1))
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func seed(t *testing.T, h *authztest.Harness, store *memoryStore) string {
	t.Helper()
	u := &users.User{Username: "alice", Email: "alice@example.com", Company: "Acme", Phone: "123", Sex: "f"}
	require.NoError(t, u.SetPassword("secret1"))
	require.NoError(t, store.Create(context.Background(), nil, u))
	return h.Login(u.Principal())
}

func TestProfileOmitsCredentials(t *testing.T) {
	h, store, router := setup(t)
	token := seed(t, h, store)

	rec := h.Do(router, http.MethodGet, "/users/", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "Acme", body["company"])
	for key := range body {
		assert.NotContains(t, key, "password")
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	h, store, router := setup(t)
	token := seed(t, h, store)

	rec := h.Do(router, http.MethodPut, "/users/", token, `{"company":"Globex","newPassword":"brandnew"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	u, err := store.Get(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "Globex", u.Company)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.VerifyPassword("brandnew"))
}

func TestUpdateRejectsShortPassword(t *testing.T) {
	h, store, router := setup(t)
	token := seed(t, h, store)

	rec := h.Do(router, http.MethodPut, "/users/", token, `{"newPassword":"123"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	u, err := store.Get(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.True(t, u.VerifyPassword("secret1"))
}

func TestUpdateRejectsPasswordBeyondBcryptLimit(t *testing.T) {
	h, store, router := setup(t)
	token := seed(t, h, store)

	rec := h.Do(router, http.MethodPut, "/users/", token, fmt.Sprintf(`{"newPassword":%q}`, strings.Repeat("p", 80)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.Source.Commits())
	u, err := store.Get(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.True(t, u.VerifyPassword("secret1"))
}

func TestDeleteAccount(t *testing.T) {
	h, store, router := setup(t)
	token := seed(t, h, store)

	rec := h.Do(router, http.MethodDelete, "/users/", token, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.rows)
	assert.Equal(t, 1, h.Source.Commits())
}

func TestAccountRoutesRequireSession(t *testing.T) {
	h, _, router := setup(t)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := h.Do(router, method, "/users/", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, method)
	}
}

func TestPrincipalProjection(t *testing.T) {
	u := &users.User{ID: 9, Username: "zed", Email: "zed@example.com", Company: "x"}

	assert.Equal(t, authz.Principal{ID: 9, Username: "zed", Email: "zed@example.com"}, u.Principal())
}
