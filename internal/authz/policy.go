package authz

import (
	"context"
	"fmt"

	"github.com/projecthub/projecthub/internal/platform/db"
)

// Policy selects how a loaded resource is checked against the principal.
type Policy uint8

const (
	// Membership grants access when the principal is a member of the resource's project.
	Membership Policy = iota + 1
	// Ownership grants access only to the resource's creator.
	Ownership
)

func (p Policy) String() string {
	switch p {
	case Membership:
		return "membership"
	case Ownership:
		return "ownership"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Authorize loads the resource identified by id and evaluates policy for
// principal. A missing resource is never granted. The resource is returned
// only when granted.
func Authorize[R any](ctx context.Context, q db.Querier, policy Policy, members MembershipChecker, kind Kind[R], principal Principal, id int64) (R, bool, error) {
	var zero R
	res, found, err := Load(ctx, q, kind, id)
	if err != nil || !found {
		return zero, false, err
	}

	switch policy {
	case Ownership:
		if kind.CreatedBy == nil || kind.CreatedBy(res) != principal.ID {
			return zero, false, nil
		}
		return res, true, nil
	case Membership:
		ok, err := members.IsMember(ctx, q, kind.ProjectID(res), principal.ID)
		if err != nil {
			return zero, false, fmt.Errorf("authz: membership %s %d: %w", kind.Name, id, err)
		}
		if !ok {
			return zero, false, nil
		}
		return res, true, nil
	default:
		return zero, false, fmt.Errorf("authz: unknown %s", policy)
	}
}
