// Package web exposes the authentication ceremonies and the journal over
// HTTP. Each request runs inside one execution context; handlers never see
// the transaction directly, only its borrowable handle.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/labstack/echo/v4"

	"github.com/amachang/passgate/internal/auth/session"
	"github.com/amachang/passgate/internal/auth/user"
	"github.com/amachang/passgate/internal/platform/id"
	"github.com/amachang/passgate/internal/storage"
	"github.com/amachang/passgate/internal/txn"
)

// SessionCookieName is the canonical browser session cookie.
const SessionCookieName = "passgate_session"

const (
	sessionContextKey = "passgate.session"
	handleContextKey  = "passgate.txn"
)

// ceremonyEngine is the surface of the ceremony engine the handlers use.
// *ceremony.Engine satisfies it; tests substitute a fake.
type ceremonyEngine interface {
	StartRegistration(ctx context.Context, sessionID string) (*protocol.CredentialCreation, error)
	FinishRegistration(ctx context.Context, handle txn.Handle, sessionID string, responseJSON []byte) (user.User, error)
	StartAuthentication(ctx context.Context, handle txn.Handle, sessionID string, userID string) (*protocol.CredentialAssertion, error)
	FinishAuthentication(ctx context.Context, handle txn.Handle, sessionID string, responseJSON []byte) (user.User, error)
}

// Handler wires the HTTP surface to the ceremony engine and the stores.
type Handler struct {
	engine      ceremonyEngine
	sessions    *session.Manager
	tokens      *session.TokenCodec
	users       storage.UserStore
	posts       storage.PostStore
	openContext func(ctx context.Context) (*txn.Context, error)
	clock       func() time.Time
	idGenerator func() (string, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the handler clock.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithIDGenerator overrides post ID generation.
func WithIDGenerator(generate func() (string, error)) Option {
	return func(h *Handler) {
		if generate != nil {
			h.idGenerator = generate
		}
	}
}

// NewHandler builds the HTTP handler set.
func NewHandler(engine ceremonyEngine, sessions *session.Manager, tokens *session.TokenCodec, users storage.UserStore, posts storage.PostStore, openContext func(ctx context.Context) (*txn.Context, error), opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("ceremony engine is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if posts == nil {
		return nil, fmt.Errorf("post store is required")
	}
	if openContext == nil {
		return nil, fmt.Errorf("execution context opener is required")
	}
	h := &Handler{
		engine:      engine,
		sessions:    sessions,
		tokens:      tokens,
		users:       users,
		posts:       posts,
		openContext: openContext,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the routes and middleware on an echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.HTTPErrorHandler = errorHandler
	e.Use(tracingMiddleware)
	e.Use(h.sessionMiddleware)
	e.Use(h.transactionMiddleware)

	e.POST("/auth/register/start", h.startRegistration)
	e.POST("/auth/register/finish", h.finishRegistration)
	e.POST("/auth/login/start", h.startAuthentication)
	e.POST("/auth/login/finish", h.finishAuthentication)
	e.POST("/auth/logout", h.logout)
	e.GET("/auth/me", h.currentUser)

	e.GET("/posts", h.listPosts)
	e.POST("/posts", h.createPost)
	e.GET("/posts/:id", h.getPost)
	e.PUT("/posts/:id", h.updatePost)
}

func currentSession(c echo.Context) session.Session {
	value, _ := c.Get(sessionContextKey).(session.Session)
	return value
}

func currentHandle(c echo.Context) txn.Handle {
	value, _ := c.Get(handleContextKey).(txn.Handle)
	return value
}

func (h *Handler) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Request().TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
