package authz

import "github.com/projecthub/projecthub/internal/platform/httpx"

type guardError struct {
	msg  string
	kind error
}

func (e *guardError) Error() string { return e.msg }

func (e *guardError) Unwrap() error { return e.kind }

// Guard failures. Each wraps the httpx sentinel carrying its response status.
var (
	// ErrUnauthenticated means no session, an unknown token, or a token whose user is gone.
	ErrUnauthenticated error = &guardError{msg: "not authenticated", kind: httpx.ErrUnauthorized}
	// ErrMissingParameter means the id naming the guarded resource was absent or malformed.
	ErrMissingParameter error = &guardError{msg: "resource id not provided", kind: httpx.ErrValidation}
	// ErrForbidden covers both a denied policy and a resource that does not exist.
	ErrForbidden error = &guardError{msg: "access denied", kind: httpx.ErrForbidden}
	// ErrNestedGuard is returned when a guard runs inside another guarded call.
	ErrNestedGuard error = &guardError{msg: "authz: guards cannot be nested"}
)
