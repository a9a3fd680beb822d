// Package session tracks browser sessions and the single pending WebAuthn
// challenge each one may hold.
package session

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/amachang/passgate/internal/auth/passkey"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
	"github.com/amachang/passgate/internal/platform/id"
)

// ErrSessionNotFound reports a missing or expired browser session.
var ErrSessionNotFound = apperrors.New(apperrors.CodeNotFound, "browser session not found")

// Challenge is the pending ceremony state bound to a browser session. A
// session holds at most one challenge at a time; starting a new ceremony
// replaces whatever was pending.
type Challenge struct {
	Kind   passkey.SessionKind
	UserID string
	Data   webauthn.SessionData
}

// Session is a browser session. UserID is empty until a login or
// registration ceremony completes.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type entry struct {
	session   Session
	challenge *Challenge
}

// Manager holds browser sessions in memory.
type Manager struct {
	ttl         time.Duration
	clock       func() time.Time
	idGenerator func() (string, error)

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager clock.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(generate func() (string, error)) Option {
	return func(m *Manager) {
		if generate != nil {
			m.idGenerator = generate
		}
	}
}

// NewManager returns a Manager whose sessions expire after ttl.
func NewManager(ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &Manager{
		ttl:         ttl,
		clock:       time.Now,
		idGenerator: id.NewID,
		entries:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a new anonymous browser session.
func (m *Manager) Create() (Session, error) {
	sessionID, err := m.idGenerator()
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeInternal, "generate session id", err)
	}
	now := m.clock().UTC()
	session := Session{ID: sessionID, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	m.entries[sessionID] = &entry{session: session}
	return session, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(sessionID string) (Session, error) {
	now := m.clock().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || !e.session.ExpiresAt.After(now) {
		delete(m.entries, sessionID)
		return Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// PutChallenge binds a pending ceremony to the session, replacing any
// challenge already held.
func (m *Manager) PutChallenge(sessionID string, challenge Challenge) error {
	now := m.clock().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || !e.session.ExpiresAt.After(now) {
		delete(m.entries, sessionID)
		return ErrSessionNotFound
	}
	e.challenge = &challenge
	return nil
}

// TakeChallenge removes and returns the session's pending challenge. The
// challenge is consumed even when the kind does not match, so a mismatched
// finish cannot be retried against stale state.
func (m *Manager) TakeChallenge(sessionID string, kind passkey.SessionKind) (Challenge, error) {
	now := m.clock().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || !e.session.ExpiresAt.After(now) {
		delete(m.entries, sessionID)
		return Challenge{}, ErrSessionNotFound
	}
	challenge := e.challenge
	e.challenge = nil
	if challenge == nil || challenge.Kind != kind {
		return Challenge{}, apperrors.New(apperrors.CodeNoPendingCeremony, "no pending ceremony for session")
	}
	return *challenge, nil
}

// SetUser records the authenticated user on the session.
func (m *Manager) SetUser(sessionID, userID string) error {
	now := m.clock().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok || !e.session.ExpiresAt.After(now) {
		delete(m.entries, sessionID)
		return ErrSessionNotFound
	}
	e.session.UserID = userID
	return nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
}

// pruneLocked drops expired sessions. Callers hold m.mu.
func (m *Manager) pruneLocked(now time.Time) {
	for sessionID, e := range m.entries {
		if !e.session.ExpiresAt.After(now) {
			delete(m.entries, sessionID)
		}
	}
}
