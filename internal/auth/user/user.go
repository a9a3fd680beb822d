// Package user provides the authenticated identity record.
package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/amachang/passgate/internal/platform/id"
)

// DefaultDisplayName is assigned to users created through passkey registration
// until they pick their own.
const DefaultDisplayName = "New User"

// User represents an authenticated identity record.
//
// A user row is only written at the end of a successful registration ceremony;
// no provisional rows exist for abandoned ceremonies.
type User struct {
	ID           string
	Slug         string
	DisplayName  string
	RegisteredAt time.Time
}

// NewUser mints a fresh identity for a registration ceremony.
//
// The identity is not persisted here; the ceremony engine writes it inside the
// request transaction once the credential has been verified.
func NewUser(now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewUUID
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	return User{
		ID:           userID,
		Slug:         DeriveSlug(userID),
		DisplayName:  DefaultDisplayName,
		RegisteredAt: now().UTC(),
	}, nil
}

// DeriveSlug builds the default slug for a user identifier.
func DeriveSlug(userID string) string {
	return "user-" + strings.TrimSpace(userID)
}
