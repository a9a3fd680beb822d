// Package ceremony orchestrates the two-phase passkey registration and
// authentication protocols.
package ceremony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/amachang/passgate/internal/auth/passkey"
	"github.com/amachang/passgate/internal/auth/session"
	"github.com/amachang/passgate/internal/auth/user"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
	"github.com/amachang/passgate/internal/storage"
	"github.com/amachang/passgate/internal/txn"
)

// passkeyProvider is the cryptographic verifier surface the engine depends
// on. *webauthn.WebAuthn satisfies it.
type passkeyProvider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// credentialParser decodes client ceremony responses. The default delegates
// to the protocol package; tests substitute a fake.
type credentialParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultCredentialParser struct{}

func (defaultCredentialParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultCredentialParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Engine drives passkey ceremonies. All database access goes through the
// transaction handle of the calling request; the engine never opens its own.
type Engine struct {
	provider    passkeyProvider
	parser      credentialParser
	sessions    *session.Manager
	users       storage.UserStore
	credentials storage.CredentialStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithProvider overrides the cryptographic verifier.
func WithProvider(provider passkeyProvider) EngineOption {
	return func(e *Engine) {
		if provider != nil {
			e.provider = provider
		}
	}
}

// WithParser overrides the credential response parser.
func WithParser(parser credentialParser) EngineOption {
	return func(e *Engine) {
		if parser != nil {
			e.parser = parser
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides user ID generation.
func WithIDGenerator(generate func() (string, error)) EngineOption {
	return func(e *Engine) {
		if generate != nil {
			e.idGenerator = generate
		}
	}
}

// NewEngine builds a ceremony engine from relying party configuration.
func NewEngine(cfg passkey.Config, sessions *session.Manager, users storage.UserStore, credentials storage.CredentialStore, opts ...EngineOption) (*Engine, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	provider, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	e := &Engine{
		provider:    provider,
		parser:      defaultCredentialParser{},
		sessions:    sessions,
		users:       users,
		credentials: credentials,
		clock:       time.Now,
		idGenerator: nil,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// StartRegistration mints a fresh identity, produces a creation challenge,
// and parks the ceremony state on the browser session. Nothing is written to
// the database; the user row appears only if the ceremony finishes.
func (e *Engine) StartRegistration(ctx context.Context, sessionID string) (*protocol.CredentialCreation, error) {
	pending, err := user.NewUser(e.clock, e.idGenerator)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "mint registration user", err)
	}

	creation, data, err := e.provider.BeginRegistration(
		&ceremonyUser{user: pending},
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "begin registration", err)
	}
	if data == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "registration session data is missing")
	}

	challenge := session.Challenge{
		Kind:   passkey.SessionKindRegistration,
		UserID: pending.ID,
		Data:   *data,
	}
	if err := e.sessions.PutChallenge(sessionID, challenge); err != nil {
		return nil, err
	}
	return creation, nil
}

// FinishRegistration consumes the pending registration state, verifies the
// authenticator response, and writes the user row plus its first credential
// inside the request transaction. Both writes commit together or not at all.
func (e *Engine) FinishRegistration(ctx context.Context, handle txn.Handle, sessionID string, responseJSON []byte) (user.User, error) {
	challenge, err := e.sessions.TakeChallenge(sessionID, passkey.SessionKindRegistration)
	if err != nil {
		return user.User{}, err
	}
	if len(responseJSON) == 0 {
		return user.User{}, apperrors.New(apperrors.CodeVerificationFailed, "credential response is required")
	}

	parsed, err := e.parser.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "parse credential creation response", err)
	}

	registered := user.User{
		ID:           challenge.UserID,
		Slug:         user.DeriveSlug(challenge.UserID),
		DisplayName:  user.DefaultDisplayName,
		RegisteredAt: e.clock().UTC(),
	}
	credential, err := e.provider.CreateCredential(&ceremonyUser{user: registered}, challenge.Data, parsed)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify credential creation response", err)
	}

	borrow, err := handle.Upgrade()
	if err != nil {
		return user.User{}, err
	}
	defer borrow.Release()

	if err := e.users.AddUser(ctx, borrow.Tx(), registered); err != nil {
		return user.User{}, err
	}
	record, err := encodeCredential(registered.ID, *credential, e.clock().UTC())
	if err != nil {
		return user.User{}, err
	}
	if err := e.credentials.AddCredential(ctx, borrow.Tx(), record); err != nil {
		return user.User{}, err
	}

	if err := e.sessions.SetUser(sessionID, registered.ID); err != nil {
		return user.User{}, err
	}
	return registered, nil
}

// StartAuthentication issues a login challenge covering all of the claimed
// user's credentials and parks the ceremony state on the browser session.
func (e *Engine) StartAuthentication(ctx context.Context, handle txn.Handle, sessionID string, userID string) (*protocol.CredentialAssertion, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeUnknownUser, "user id is required")
	}

	borrow, err := handle.Upgrade()
	if err != nil {
		return nil, err
	}
	defer borrow.Release()

	claimed, err := e.users.GetUser(ctx, borrow.Tx(), userID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeNotFound {
			return nil, apperrors.New(apperrors.CodeUnknownUser, "unknown user")
		}
		return nil, err
	}
	credentials, err := e.loadCredentials(ctx, borrow, claimed.ID)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		return nil, apperrors.New(apperrors.CodeUnknownUser, "user has no credentials")
	}

	assertion, data, err := e.provider.BeginLogin(&ceremonyUser{user: claimed, credentials: credentials})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "begin authentication", err)
	}
	if data == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "authentication session data is missing")
	}

	challenge := session.Challenge{
		Kind:   passkey.SessionKindLogin,
		UserID: claimed.ID,
		Data:   *data,
	}
	if err := e.sessions.PutChallenge(sessionID, challenge); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishAuthentication consumes the pending login state and verifies the
// assertion. Signature counter updates are persisted through the request
// transaction before the user-verification flag is evaluated, so a rejected
// attempt still advances counter bookkeeping when the caller commits.
func (e *Engine) FinishAuthentication(ctx context.Context, handle txn.Handle, sessionID string, responseJSON []byte) (user.User, error) {
	challenge, err := e.sessions.TakeChallenge(sessionID, passkey.SessionKindLogin)
	if err != nil {
		return user.User{}, err
	}
	if len(responseJSON) == 0 {
		return user.User{}, apperrors.New(apperrors.CodeVerificationFailed, "credential response is required")
	}

	parsed, err := e.parser.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "parse credential assertion response", err)
	}

	borrow, err := handle.Upgrade()
	if err != nil {
		return user.User{}, err
	}
	defer borrow.Release()

	claimed, err := e.users.GetUser(ctx, borrow.Tx(), challenge.UserID)
	if err != nil {
		return user.User{}, err
	}
	credentials, err := e.loadCredentials(ctx, borrow, claimed.ID)
	if err != nil {
		return user.User{}, err
	}

	validated, err := e.provider.ValidateLogin(&ceremonyUser{user: claimed, credentials: credentials}, challenge.Data, parsed)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeVerificationFailed, "verify credential assertion", err)
	}

	// Counter bookkeeping happens before the accept/reject decision.
	credentialJSON, err := json.Marshal(validated)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeInternal, "encode validated credential", err)
	}
	credentialID := encodeCredentialID(validated.ID)
	if err := e.credentials.UpdateCredential(ctx, borrow.Tx(), credentialID, string(credentialJSON)); err != nil {
		return user.User{}, err
	}

	if !parsed.Response.AuthenticatorData.Flags.UserVerified() {
		return user.User{}, apperrors.New(apperrors.CodeAuthenticationRejected, "user verification required")
	}

	if err := e.sessions.SetUser(sessionID, claimed.ID); err != nil {
		return user.User{}, err
	}
	return claimed, nil
}

// ceremonyUser adapts a user row and its decoded credentials to the
// verifier's user interface.
type ceremonyUser struct {
	user        user.User
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.user.Slug
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.user.DisplayName
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (e *Engine) loadCredentials(ctx context.Context, borrow *txn.Borrow, userID string) ([]webauthn.Credential, error) {
	records, err := e.credentials.ListCredentials(ctx, borrow.Tx(), userID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, fmt.Sprintf("decode credential %s", record.CredentialID), err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func encodeCredential(userID string, credential webauthn.Credential, now time.Time) (storage.Credential, error) {
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return storage.Credential{}, apperrors.Wrap(apperrors.CodeInternal, "encode credential", err)
	}
	return storage.Credential{
		CredentialID:   encodeCredentialID(credential.ID),
		UserID:         userID,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
