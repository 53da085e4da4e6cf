// Package authztest wires authz guards to in-memory collaborators so HTTP
// handlers can be exercised without Redis or PostgreSQL.
package authztest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/db/dbtest"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// CookieName carries the session token in requests built by Do.
const CookieName = "sid"

// Harness bundles a fake connection source, session tokens and memberships.
type Harness struct {
	Source  *dbtest.Source
	Members *Members
	Deps    authz.Deps

	mu     sync.Mutex
	tokens map[string]int64
}

// New returns a Harness with no users.
func New() *Harness {
	h := &Harness{
		Source:  dbtest.NewSource(),
		Members: &Members{edges: make(map[[2]int64]bool)},
		tokens:  make(map[string]int64),
	}
	h.Deps = authz.Deps{
		Provider: h.Source.Provider(),
		Resolver: authz.NewResolver(h, principals{}),
		Members:  h.Members,
		Tokens: func(r *http.Request) string {
			c, err := r.Cookie(CookieName)
			if err != nil {
				return ""
			}
			return c.Value
		},
	}
	return h
}

// Login stores the user row and returns a session token for it.
func (h *Harness) Login(p authz.Principal) string {
	h.Source.Put("users", p.ID, p.ID, p.Username, p.Email)
	token := "token-" + strconv.FormatInt(p.ID, 10)
	h.mu.Lock()
	h.tokens[token] = p.ID
	h.mu.Unlock()
	return token
}

// Lookup implements authz.TokenStore.
func (h *Harness) Lookup(_ context.Context, token string) (int64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.tokens[token]
	return id, ok, nil
}

// Do serves one request against handler with the given session token.
func (h *Harness) Do(handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type principals struct{}

func (principals) FindPrincipal(ctx context.Context, q db.Querier, id int64) (authz.Principal, error) {
	var p authz.Principal
	err := q.QueryRow(ctx, `SELECT user_id, username, email FROM users WHERE user_id = $1`, id).Scan(&p.ID, &p.Username, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return authz.Principal{}, httpx.ErrNotFound
	}
	return p, err
}

// Members is an in-memory authz.MembershipChecker.
type Members struct {
	mu    sync.Mutex
	edges map[[2]int64]bool
}

// Join adds the (project, user) edge.
func (m *Members) Join(projectID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[[2]int64{projectID, userID}] = true
}

// Leave removes the (project, user) edge.
func (m *Members) Leave(projectID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, [2]int64{projectID, userID})
}

// IsMember implements authz.MembershipChecker.
func (m *Members) IsMember(_ context.Context, _ db.Querier, projectID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edges[[2]int64{projectID, userID}], nil
}
