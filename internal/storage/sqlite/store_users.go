package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/amachang/passgate/internal/auth/user"
	"github.com/amachang/passgate/internal/storage"
)

// AddUser inserts one identity row on the caller's query surface.
func (s *Store) AddUser(ctx context.Context, q storage.DBTX, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}

	slug := sql.NullString{}
	if strings.TrimSpace(u.Slug) != "" {
		slug = sql.NullString{String: u.Slug, Valid: true}
	}
	displayName := sql.NullString{}
	if strings.TrimSpace(u.DisplayName) != "" {
		displayName = sql.NullString{String: u.DisplayName, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO users (id, slug, display_name, registered_at)
VALUES (?, ?, ?, ?)
`, u.ID, slug, displayName, toMillis(u.RegisteredAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConstraintViolation
		}
		return fmt.Errorf("add user: %w", err)
	}
	return nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, q storage.DBTX, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if q == nil {
		return user.User{}, fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	row := q.QueryRowContext(ctx, `
SELECT id, slug, display_name, registered_at
FROM users
WHERE id = ?
`, userID)

	var (
		id           string
		slug         sql.NullString
		displayName  sql.NullString
		registeredAt int64
	)
	if err := row.Scan(&id, &slug, &displayName, &registeredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}

	return user.User{
		ID:           id,
		Slug:         slug.String,
		DisplayName:  displayName.String,
		RegisteredAt: fromMillis(registeredAt),
	}, nil
}
