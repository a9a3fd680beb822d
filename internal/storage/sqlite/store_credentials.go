package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/amachang/passgate/internal/storage"
)

// AddCredential inserts one passkey credential row.
//
// A missing owning user or a colliding credential id surfaces as
// storage.ErrConstraintViolation; the caller's transaction decides whether
// anything else written alongside survives.
func (s *Store) AddCredential(ctx context.Context, q storage.DBTX, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO credentials (credential_id, user_id, credential_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, credential.CredentialID, credential.UserID, credential.CredentialJSON,
		toMillis(credential.CreatedAt), toMillis(credential.UpdatedAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConstraintViolation
		}
		return fmt.Errorf("add credential: %w", err)
	}
	return nil
}

// ListCredentials returns all credentials stored for a user.
func (s *Store) ListCredentials(ctx context.Context, q storage.DBTX, userID string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := q.QueryContext(ctx, `
SELECT credential_id, user_id, credential_json, created_at, updated_at
FROM credentials
WHERE user_id = ?
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	credentials := make([]storage.Credential, 0)
	for rows.Next() {
		var (
			credentialID   string
			ownerID        string
			credentialJSON string
			createdAt      int64
			updatedAt      int64
		)
		if err := rows.Scan(&credentialID, &ownerID, &credentialJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, storage.Credential{
			CredentialID:   credentialID,
			UserID:         ownerID,
			CredentialJSON: credentialJSON,
			CreatedAt:      fromMillis(createdAt),
			UpdatedAt:      fromMillis(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredential replaces a credential blob, typically after the verifier
// advanced its signature counter.
func (s *Store) UpdateCredential(ctx context.Context, q storage.DBTX, credentialID string, credentialJSON string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	result, err := q.ExecContext(ctx, `
UPDATE credentials
SET credential_json = ?, updated_at = ?
WHERE credential_id = ?
`, credentialJSON, toMillis(s.clock()), credentialID)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
