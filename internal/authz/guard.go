package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/projecthub/projecthub/internal/platform/db"
)

// Stage tracks how far a guarded call progressed.
type Stage uint8

const (
	StageUnauthenticated Stage = iota
	StageAuthenticating
	StageResourceResolving
	StageAuthorized
	StageExecuting
	StageRejected
	StageReleased
)

func (s Stage) String() string {
	switch s {
	case StageUnauthenticated:
		return "unauthenticated"
	case StageAuthenticating:
		return "authenticating"
	case StageResourceResolving:
		return "resource_resolving"
	case StageAuthorized:
		return "authorized"
	case StageExecuting:
		return "executing"
	case StageRejected:
		return "rejected"
	case StageReleased:
		return "released"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// Decision outcomes reported to the DecisionRecorder.
const (
	OutcomeGranted          = "granted"
	OutcomeUnauthenticated  = "unauthenticated"
	OutcomeMissingParameter = "missing_parameter"
	OutcomeForbidden        = "forbidden"
	OutcomeError            = "error"
)

// Deps are the collaborators shared by every guard.
type Deps struct {
	Provider  *db.Provider
	Resolver  *Resolver
	Members   MembershipChecker
	Tokens    TokenSource
	Logger    *slog.Logger
	Decisions DecisionRecorder
}

// Call is what a guarded operation receives. It is valid only until the
// operation returns; the guard clears it afterwards.
type Call[R any] struct {
	Principal Principal
	Resource  R
	Handle    *db.Handle
}

func (c *Call[R]) clear() {
	var zero R
	c.Principal = Principal{}
	c.Resource = zero
	c.Handle = nil
}

// Operation is the body of a guarded call.
type Operation[R any] func(ctx context.Context, call *Call[R]) error

// Unscoped is the resource type of guards that only authenticate.
type Unscoped struct{}

// Guard authenticates the caller, authorizes access to one resource kind and
// runs an operation with a scoped handle.
type Guard[R any] struct {
	deps   Deps
	kind   Kind[R]
	policy Policy
	ids    IDSource
	scoped bool
}

// NewGuard builds a resource guard. Construction panics on an invalid kind or
// an Ownership policy for a kind without a creator.
func NewGuard[R any](deps Deps, kind Kind[R], policy Policy, ids IDSource) *Guard[R] {
	if err := kind.validate(); err != nil {
		panic(err)
	}
	switch policy {
	case Membership:
		if deps.Members == nil {
			panic(fmt.Sprintf("authz: %s guard: membership checker required", kind.Name))
		}
	case Ownership:
		if kind.CreatedBy == nil {
			panic(fmt.Sprintf("authz: %s has no creator, ownership cannot apply", kind.Name))
		}
	default:
		panic(fmt.Sprintf("authz: %s guard: unknown %s", kind.Name, policy))
	}
	if ids == nil {
		panic(fmt.Sprintf("authz: %s guard: id source required", kind.Name))
	}
	return &Guard[R]{deps: deps.withDefaults(), kind: kind, policy: policy, ids: ids, scoped: true}
}

// NewUserGuard builds a guard that only requires an authenticated principal.
func NewUserGuard(deps Deps) *Guard[Unscoped] {
	return &Guard[Unscoped]{deps: deps.withDefaults(), kind: Kind[Unscoped]{Name: "user"}}
}

func (d Deps) withDefaults() Deps {
	if d.Provider == nil || d.Resolver == nil {
		panic("authz: provider and resolver required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Decisions == nil {
		d.Decisions = noopRecorder{}
	}
	return d
}

type noopRecorder struct{}

func (noopRecorder) RecordDecision(string, string) {}

type activeGuardKey struct{}

// Run executes op for the session identified by token against the resource
// named by rawID. Unscoped guards ignore rawID.
//
// The session store is consulted before the id is parsed, and both happen
// before a handle is acquired. op runs only when access is granted; the handle
// is released when Run returns, whatever the outcome.
func (g *Guard[R]) Run(ctx context.Context, token, rawID string, op Operation[R]) error {
	return g.run(ctx, token, func() (string, error) { return rawID, nil }, op)
}

// run reads the resource id through readID only once the token resolved.
func (g *Guard[R]) run(ctx context.Context, token string, readID func() (string, error), op Operation[R]) error {
	if ctx.Value(activeGuardKey{}) != nil {
		return ErrNestedGuard
	}

	stage := StageAuthenticating
	userID, err := g.deps.Resolver.Lookup(ctx, token)
	if err != nil {
		return g.reject(ctx, stage, err)
	}

	var id int64
	if g.scoped {
		rawID, err := readID()
		if err != nil {
			return g.reject(ctx, stage, fmt.Errorf("%w: %s: %v", ErrMissingParameter, g.ids.Name(), err))
		}
		id, err = parseID(rawID)
		if err != nil {
			return g.reject(ctx, stage, fmt.Errorf("%w: %s", ErrMissingParameter, g.ids.Name()))
		}
	}

	executed := false
	err = g.deps.Provider.WithHandle(ctx, func(h *db.Handle) error {
		principal, err := g.deps.Resolver.Principal(ctx, h, userID)
		if err != nil {
			return err
		}

		stage = StageResourceResolving
		var resource R
		if g.scoped {
			res, granted, err := Authorize(ctx, h, g.policy, g.deps.Members, g.kind, principal, id)
			if err != nil {
				return err
			}
			if !granted {
				return ErrForbidden
			}
			resource = res
		}

		stage = StageAuthorized
		g.deps.Decisions.RecordDecision(g.kind.Name, OutcomeGranted)
		call := &Call[R]{Principal: principal, Resource: resource, Handle: h}
		defer call.clear()

		stage = StageExecuting
		executed = true
		return op(context.WithValue(ctx, activeGuardKey{}, g.kind.Name), call)
	})
	if err != nil && !executed {
		return g.reject(ctx, stage, err)
	}
	return err
}

func (g *Guard[R]) reject(ctx context.Context, stage Stage, err error) error {
	outcome := outcomeOf(err)
	g.deps.Decisions.RecordDecision(g.kind.Name, outcome)
	level := slog.LevelDebug
	if outcome == OutcomeError {
		level = slog.LevelError
	}
	g.deps.Logger.Log(ctx, level, "guard rejected call",
		slog.String("kind", g.kind.Name),
		slog.String("stage", stage.String()),
		slog.String("outcome", outcome),
		slog.Any("error", err))
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return OutcomeUnauthenticated
	case errors.Is(err, ErrMissingParameter):
		return OutcomeMissingParameter
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}

// parseID accepts positive base-10 integers only.
func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d out of range", id)
	}
	return id, nil
}
