package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/projecthub/projecthub/internal/authz"
	"github.com/projecthub/projecthub/internal/platform/db"
	"github.com/projecthub/projecthub/internal/platform/httpx"
	"github.com/projecthub/projecthub/internal/settings"
)

// Store is the persistence surface used by the handlers.
type Store interface {
	Get(ctx context.Context, q db.Querier, id int64) (*User, error)
	FindByLogin(ctx context.Context, q db.Querier, login string) (*User, error)
	Create(ctx context.Context, q db.Querier, u *User) error
	Update(ctx context.Context, q db.Querier, u *User) error
	Delete(ctx context.Context, q db.Querier, u *User) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct{}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{}
}

const userColumns = `user_id, username, email, company, phone, sex, password_hash`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Company, &u.Phone, &u.Sex, &u.passwordHash); err != nil {
		return nil, err
	}
	return &u, nil
}

// FindPrincipal implements authz.PrincipalFinder.
func (r *Repository) FindPrincipal(ctx context.Context, q db.Querier, id int64) (authz.Principal, error) {
	var p authz.Principal
	err := q.QueryRow(ctx, `SELECT user_id, username, email FROM users WHERE user_id = $1`, id).Scan(&p.ID, &p.Username, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Principal{}, httpx.ErrNotFound
		}
		return authz.Principal{}, fmt.Errorf("users: find principal: %w", err)
	}
	return p, nil
}

// Get loads a user by id.
func (r *Repository) Get(ctx context.Context, q db.Querier, id int64) (*User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// FindByLogin matches login against email or username.
func (r *Repository) FindByLogin(ctx context.Context, q db.Querier, login string) (*User, error) {
	u, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 OR username = $1 LIMIT 1`, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", login, httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("users: find by login: %w", err)
	}
	return u, nil
}

// FindIDByEmail resolves the account registered under email.
func (r *Repository) FindIDByEmail(ctx context.Context, q db.Querier, email string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT user_id FROM users WHERE email = $1`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user %s: %w", email, httpx.ErrNotFound)
		}
		return 0, fmt.Errorf("users: find by email: %w", err)
	}
	return id, nil
}

// Create inserts u with its default settings and sets u.ID.
func (r *Repository) Create(ctx context.Context, q db.Querier, u *User) error {
	err := q.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, company, phone, sex)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id`,
		u.Username, u.Email, u.passwordHash, u.Company, u.Phone, u.Sex).Scan(&u.ID)
	if err != nil {
		return duplicateOr(err, "users: create")
	}
	return settings.InsertDefaults(ctx, q, u.ID)
}

// Update writes the editable profile fields and the password hash.
func (r *Repository) Update(ctx context.Context, q db.Querier, u *User) error {
	tag, err := q.Exec(ctx, `
		UPDATE users
		SET username = $2, company = $3, phone = $4, sex = $5, password_hash = $6
		WHERE user_id = $1`,
		u.ID, u.Username, u.Company, u.Phone, u.Sex, u.passwordHash)
	if err != nil {
		return duplicateOr(err, "users: update")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", u.ID, httpx.ErrNotFound)
	}
	return nil
}

// Delete removes the account together with the projects it created and
// everything hanging off them. Tasks assigned to the user elsewhere are
// unassigned.
func (r *Repository) Delete(ctx context.Context, q db.Querier, u *User) error {
	owned := `SELECT project_id FROM projects WHERE created_by = $1`
	statements := []string{
		`DELETE FROM task_labels WHERE task_id IN (SELECT task_id FROM tasks WHERE project_id IN (` + owned + `))`,
		`DELETE FROM tasks WHERE project_id IN (` + owned + `)`,
		`DELETE FROM labels WHERE project_id IN (` + owned + `)`,
		`DELETE FROM sprints WHERE project_id IN (` + owned + `)`,
		`DELETE FROM project_members WHERE project_id IN (` + owned + `)`,
		`DELETE FROM projects WHERE created_by = $1`,
		`UPDATE tasks SET assigned_to = NULL WHERE assigned_to = $1`,
		`DELETE FROM project_members WHERE member_id = $1`,
		`DELETE FROM user_settings WHERE user_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt, u.ID); err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
	}
	tag, err := q.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, u.ID)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", u.ID, httpx.ErrNotFound)
	}
	return nil
}

func duplicateOr(err error, op string) error {
	switch {
	case db.IsUniqueViolation(err, "users_username_key"):
		return fmt.Errorf("user with this login already exists: %w", httpx.ErrDuplicate)
	case db.IsUniqueViolation(err, "users_email_key"):
		return fmt.Errorf("user with this email already exists: %w", httpx.ErrDuplicate)
	case db.IsUniqueViolation(err, ""):
		return fmt.Errorf("user already exists: %w", httpx.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var (
	_ Store                 = (*Repository)(nil)
	_ authz.PrincipalFinder = (*Repository)(nil)
)
