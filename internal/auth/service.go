package auth

import (
	"context"
	"errors"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/shared"
	"github.com/projecthub/projecthub/internal/users"
)

// UserFinder looks accounts up by email or username.
type UserFinder interface {
	FindByLogin(ctx context.Context, q db.Querier, login string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	provider *db.Provider
	users    UserFinder
}

// NewService constructs a new Service.
func NewService(provider *db.Provider, users UserFinder) *Service {
	return &Service{provider: provider, users: users}
}

// Authenticate validates login/password credentials. An unknown login yields
// shared.ErrUnknownLogin, a wrong password shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*users.User, error) {
	var user *users.User
	err := s.provider.WithHandle(ctx, func(h *db.Handle) error {
		u, err := s.users.FindByLogin(ctx, h, login)
		if err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				return shared.ErrUnknownLogin
			}
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !user.VerifyPassword(password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
