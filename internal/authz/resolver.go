package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Resolver turns a session token into a Principal.
type Resolver struct {
	tokens     TokenStore
	principals PrincipalFinder
}

// NewResolver constructs a Resolver.
func NewResolver(tokens TokenStore, principals PrincipalFinder) *Resolver {
	return &Resolver{tokens: tokens, principals: principals}
}

// Lookup returns the user id bound to token. It reads the session store only.
func (r *Resolver) Lookup(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	id, ok, err := r.tokens.Lookup(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("authz: session lookup: %w", err)
	}
	if !ok {
		return 0, ErrUnauthenticated
	}
	return id, nil
}

// Principal loads the user behind an id obtained from Lookup. A user deleted
// after login yields ErrUnauthenticated, like a missing token.
func (r *Resolver) Principal(ctx context.Context, q db.Querier, id int64) (Principal, error) {
	p, err := r.principals.FindPrincipal(ctx, q, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("authz: load principal: %w", err)
	}
	return p, nil
}

// Resolve runs Lookup and Principal in sequence.
func (r *Resolver) Resolve(ctx context.Context, token string, q db.Querier) (Principal, error) {
	id, err := r.Lookup(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	return r.Principal(ctx, q, id)
}
