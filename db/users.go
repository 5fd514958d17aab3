package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mtgscribe/gateway/models"
)

// ErrNotFound is returned by single-row lookups that find nothing live.
var ErrNotFound = errors.New("db: not found")

// CreateUser inserts a new user row. Callers must have already checked
// for an email collision; the unique index is the final backstop.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	const q = `
		INSERT INTO users (id, email, password_hash, tier, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, string(u.Tier), u.EmailVerified, u.CreatedAt, u.UpdatedAt)
	return err
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var tier string
	var deletedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &tier, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Tier = models.Tier(tier)
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return &u, nil
}

const userCols = `id, email, password_hash, tier, email_verified, created_at, updated_at, deleted_at`

// GetUserByEmail returns the live user with the given email, or
// ErrNotFound. Email comparison is case-sensitive at this layer; callers
// must lowercase before calling (sessionmgr does this).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanUser(row)
}

// GetUserByID returns a user regardless of live/deleted status, so
// callers (session resolve) can detect and react to a soft-deleted user.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SoftDeleteUser marks a user gone without removing referencing turns.
func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `UPDATE users SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, now)
	return err
}
