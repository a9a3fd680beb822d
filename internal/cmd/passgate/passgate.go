// Package passgate parses passgate command flags and starts the HTTP server.
package passgate

import (
	"context"
	"flag"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amachang/passgate/internal/app/server"
	"github.com/amachang/passgate/internal/platform/otel"
)

// Config holds passgate command configuration.
type Config struct {
	Port int
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Port: envPortOrDefault(lookup, "PASSGATE_PORT", 8086),
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The passgate HTTP server port")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the passgate server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "passgate")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	return server.Run(ctx, cfg.Port)
}

func envPortOrDefault(lookup EnvLookup, key string, fallback int) int {
	if lookup == nil {
		return fallback
	}
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	port, err := strconv.Atoi(trimmed)
	if err != nil || port <= 0 {
		return fallback
	}
	return port
}
