// Package server hosts the passgate HTTP service.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/amachang/passgate/internal/auth/ceremony"
	"github.com/amachang/passgate/internal/auth/passkey"
	"github.com/amachang/passgate/internal/auth/session"
	"github.com/amachang/passgate/internal/platform/config"
	"github.com/amachang/passgate/internal/storage/sqlite"
	"github.com/amachang/passgate/internal/txn"
	"github.com/amachang/passgate/internal/web"
)

// sessionEnv holds browser session settings from the environment.
type sessionEnv struct {
	Secret string        `env:"PASSGATE_SESSION_SECRET"`
	TTL    time.Duration `env:"PASSGATE_SESSION_TTL" envDefault:"24h"`
}

// Server hosts the passgate service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
}

// New creates a configured server listening on the provided port.
func New(port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	store, err := openStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	e, err := buildEcho(store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: e},
		store:      store,
	}, nil
}

func buildEcho(store *sqlite.Store) (*echo.Echo, error) {
	var sessionCfg sessionEnv
	if err := config.ParseEnv(&sessionCfg); err != nil {
		return nil, err
	}
	secret := []byte(strings.TrimSpace(sessionCfg.Secret))
	if len(secret) == 0 {
		// Sessions do not survive restarts without a configured secret.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		log.Printf("PASSGATE_SESSION_SECRET is not set; sessions reset on restart")
	}

	sessions := session.NewManager(sessionCfg.TTL)
	tokens, err := session.NewTokenCodec("passgate", secret, sessionCfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("configure session tokens: %w", err)
	}

	engine, err := ceremony.NewEngine(passkey.LoadConfigFromEnv(), sessions, store, store)
	if err != nil {
		return nil, fmt.Errorf("configure ceremony engine: %w", err)
	}

	handler, err := web.NewHandler(engine, sessions, tokens, store, store,
		func(ctx context.Context) (*txn.Context, error) { return txn.Open(ctx, store.DB()) },
	)
	if err != nil {
		return nil, fmt.Errorf("configure web handler: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	handler.Register(e)
	return e, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, port int) error {
	srv, err := New(port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("passgate server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown http server: %v", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func openStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("PASSGATE_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "passgate.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close store: %v", err)
	}
}
