package authz

import (
	"context"

	"github.com/projecthub/projecthub/internal/platform/db"
)

// Principal describes the authenticated actor.
type Principal struct {
	ID       int64
	Username string
	Email    string
}

// TokenStore maps opaque session tokens to user ids.
type TokenStore interface {
	Lookup(ctx context.Context, token string) (userID int64, ok bool, err error)
}

// PrincipalFinder loads a principal through the caller's handle.
// Missing users are reported with httpx.ErrNotFound.
type PrincipalFinder interface {
	FindPrincipal(ctx context.Context, q db.Querier, id int64) (Principal, error)
}

// MembershipChecker reports whether a project_members edge exists.
type MembershipChecker interface {
	IsMember(ctx context.Context, q db.Querier, projectID, userID int64) (bool, error)
}

// DecisionRecorder observes guard outcomes per resource kind.
type DecisionRecorder interface {
	RecordDecision(kind, outcome string)
}
