package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, password_hash, avatar_url, created_at, updated_at`

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite does not export a typed error for this, so we match
// the driver's message, same as checking for SQLITE_CONSTRAINT_UNIQUE.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser inserts a new email/password account. A duplicate email is a
// conflict, surfaced by the partial unique index on users(email).
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, password_hash, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.PasswordHash,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "an account with this email already exists")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.GitHubID, &u.Login, &u.Email, &u.PasswordHash,
		&u.AvatarURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return &u, nil
}

// UpsertGitHubUser creates the user on first OAuth login and refreshes
// login/email/avatar on subsequent logins. GitHub IDs are stable, so the
// conflict target is github_id.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	now := time.Now()

	var existing model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`,
		user.GitHubID,
	).Scan(&existing.ID, &existing.CreatedAt)

	switch {
	case err == sql.ErrNoRows:
		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`INSERT INTO users (id, github_id, login, email, password_hash, avatar_url, created_at, updated_at)
			 VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
			user.ID, user.GitHubID, user.Login, user.Email, user.AvatarURL,
			user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting github user: %w", err)
		}
		return nil

	case err != nil:
		return fmt.Errorf("sqlite: looking up github user: %w", err)
	}

	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now
	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Login, user.Email, user.AvatarURL, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating github user: %w", err)
	}
	return nil
}
