package shared

import (
	"fmt"

	"github.com/projecthub/projecthub/internal/platform/httpx"
)

var (
	// ErrUnknownLogin indicates no account matches the submitted email or username.
	ErrUnknownLogin = fmt.Errorf("user not found: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials passed, check your login and password: %w", httpx.ErrUnauthorized)
)
