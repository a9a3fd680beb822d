package session

import (
	"errors"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/amachang/passgate/internal/auth/passkey"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
)

func newTestManager(now *time.Time) *Manager {
	next := 0
	return NewManager(time.Hour,
		WithClock(func() time.Time { return *now }),
		WithIDGenerator(func() (string, error) {
			next++
			return "session-" + string(rune('a'+next-1)), nil
		}),
	)
}

func TestCreateAndGet(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected session id")
	}
	if created.UserID != "" {
		t.Fatalf("new session user = %q, want anonymous", created.UserID)
	}
	if got := created.ExpiresAt.Sub(created.CreatedAt); got != time.Hour {
		t.Fatalf("session ttl = %v, want %v", got, time.Hour)
	}

	found, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("session id = %q, want %q", found.ID, created.ID)
	}
}

func TestGetUnknownSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	if _, err := m.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestGetExpiredSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := m.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get expired session = %v, want ErrSessionNotFound", err)
	}
}

func TestTakeChallenge(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	challenge := Challenge{
		Kind:   passkey.SessionKindRegistration,
		UserID: "user-1",
		Data:   webauthn.SessionData{Challenge: "challenge-1"},
	}
	if err := m.PutChallenge(created.ID, challenge); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	taken, err := m.TakeChallenge(created.ID, passkey.SessionKindRegistration)
	if err != nil {
		t.Fatalf("take challenge: %v", err)
	}
	if taken.UserID != "user-1" || taken.Data.Challenge != "challenge-1" {
		t.Fatalf("taken challenge = %+v", taken)
	}

	// Single use: the second take finds nothing.
	if _, err := m.TakeChallenge(created.ID, passkey.SessionKindRegistration); apperrors.CodeOf(err) != apperrors.CodeNoPendingCeremony {
		t.Fatalf("second take = %v, want NO_PENDING_CEREMONY", err)
	}
}

func TestTakeChallengeKindMismatchConsumesState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	challenge := Challenge{Kind: passkey.SessionKindRegistration, Data: webauthn.SessionData{Challenge: "c"}}
	if err := m.PutChallenge(created.ID, challenge); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	if _, err := m.TakeChallenge(created.ID, passkey.SessionKindLogin); apperrors.CodeOf(err) != apperrors.CodeNoPendingCeremony {
		t.Fatalf("mismatched take = %v, want NO_PENDING_CEREMONY", err)
	}
	// The mismatch burned the stored state.
	if _, err := m.TakeChallenge(created.ID, passkey.SessionKindRegistration); apperrors.CodeOf(err) != apperrors.CodeNoPendingCeremony {
		t.Fatalf("take after mismatch = %v, want NO_PENDING_CEREMONY", err)
	}
}

func TestPutChallengeReplacesPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first := Challenge{Kind: passkey.SessionKindLogin, Data: webauthn.SessionData{Challenge: "first"}}
	if err := m.PutChallenge(created.ID, first); err != nil {
		t.Fatalf("put first challenge: %v", err)
	}
	second := Challenge{Kind: passkey.SessionKindLogin, Data: webauthn.SessionData{Challenge: "second"}}
	if err := m.PutChallenge(created.ID, second); err != nil {
		t.Fatalf("put second challenge: %v", err)
	}

	taken, err := m.TakeChallenge(created.ID, passkey.SessionKindLogin)
	if err != nil {
		t.Fatalf("take challenge: %v", err)
	}
	if taken.Data.Challenge != "second" {
		t.Fatalf("challenge = %q, want %q", taken.Data.Challenge, "second")
	}
}

func TestSetUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := m.SetUser(created.ID, "user-1"); err != nil {
		t.Fatalf("set user: %v", err)
	}
	found, err := m.Get(created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if found.UserID != "user-1" {
		t.Fatalf("session user = %q, want %q", found.UserID, "user-1")
	}
}

func TestDelete(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(&now)

	created, err := m.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	m.Delete(created.ID)
	if _, err := m.Get(created.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("get deleted session = %v, want ErrSessionNotFound", err)
	}
	// Deleting again is a no-op.
	m.Delete(created.ID)
}
