// Package storage defines the persistence contracts for users, passkey
// credentials, and posts.
//
// Every operation runs on a caller-supplied DBTX. The stores never begin,
// commit, or roll back transactions themselves; transaction ownership belongs
// to the request's execution context (internal/txn).
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/amachang/passgate/internal/auth/user"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConstraintViolation indicates an insert or update broke a uniqueness or
// referential-integrity constraint.
var ErrConstraintViolation = apperrors.New(apperrors.CodeConstraintViolation, "constraint violation")

// DBTX is the query surface shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Credential stores one passkey for a user. CredentialJSON is the verifier's
// serialized credential and is round-tripped without interpretation.
type Credential struct {
	CredentialID   string
	UserID         string
	CredentialJSON string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Post is a journal entry owned by a user.
type Post struct {
	ID         string
	AuthorID   string
	Title      string
	Body       string
	CreatedAt  time.Time
	AuthorSlug string // populated on reads that join the author
}

// UserStore persists identity records.
type UserStore interface {
	AddUser(ctx context.Context, q DBTX, u user.User) error
	GetUser(ctx context.Context, q DBTX, userID string) (user.User, error)
}

// CredentialStore persists passkey credentials.
type CredentialStore interface {
	AddCredential(ctx context.Context, q DBTX, credential Credential) error
	ListCredentials(ctx context.Context, q DBTX, userID string) ([]Credential, error)
	UpdateCredential(ctx context.Context, q DBTX, credentialID string, credentialJSON string) error
}

// PostStore persists journal posts.
type PostStore interface {
	AddPost(ctx context.Context, q DBTX, post Post) error
	GetPost(ctx context.Context, q DBTX, postID string) (Post, error)
	ListPosts(ctx context.Context, q DBTX) ([]Post, error)
	UpdatePost(ctx context.Context, q DBTX, postID string, title string, body string) error
}
