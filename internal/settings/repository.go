package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
)

// Store is the persistence surface used by the handler.
type Store interface {
	Get(ctx context.Context, q db.Querier, userID int64) (*Settings, error)
	Update(ctx context.Context, q db.Querier, s *Settings) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

// InsertDefaults creates the settings row for a freshly registered user.
func InsertDefaults(ctx context.Context, q db.Querier, userID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_settings (user_id, auto_logoff_time, auto_logoff_enabled, theme_mode)
		VALUES ($1, $2, $3, $4)`,
		userID, DefaultAutoLogoffTime, DefaultAutoLogoffEnabled, DefaultThemeMode)
	if err != nil {
		return fmt.Errorf("settings: insert defaults: %w", err)
	}
	return nil
}

// Get loads the settings of userID.
func (r *Repository) Get(ctx context.Context, q db.Querier, userID int64) (*Settings, error) {
	var s Settings
	err := q.QueryRow(ctx, `
		SELECT user_id, auto_logoff_time, auto_logoff_enabled, theme_mode
		FROM user_settings
		WHERE user_id = $1`, userID).Scan(&s.UserID, &s.AutoLogoffTime, &s.AutoLogoffEnabled, &s.ThemeMode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("settings for user %d: %w", userID, httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("settings: get: %w", err)
	}
	return &s, nil
}

// Update writes every field of s.
func (r *Repository) Update(ctx context.Context, q db.Querier, s *Settings) error {
	tag, err := q.Exec(ctx, `
		UPDATE user_settings
		SET auto_logoff_time = $2, auto_logoff_enabled = $3, theme_mode = $4
		WHERE user_id = $1`,
		s.UserID, s.AutoLogoffTime, s.AutoLogoffEnabled, s.ThemeMode)
	if err != nil {
		return fmt.Errorf("settings: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settings for user %d: %w", s.UserID, httpx.ErrNotFound)
	}
	return nil
}

var _ Store = (*Repository)(nil)
