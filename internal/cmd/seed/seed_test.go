package seed

import (
	"context"
	"flag"
	"path/filepath"
	"testing"

	"github.com/amachang/passgate/internal/storage/sqlite"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != filepath.Join("data", "passgate.db") {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.SeedConfig.Verbose {
		t.Fatal("expected verbose to default to false")
	}
}

func TestParseConfigEnvFallback(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == "PASSGATE_DB_PATH" {
			return "/tmp/env.db", true
		}
		return "", false
	}

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
}

func TestParseConfigFlagBeatsEnv(t *testing.T) {
	lookup := func(key string) (string, bool) {
		return "/tmp/env.db", true
	}

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/flag.db", "-v"}, lookup)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/flag.db" {
		t.Fatalf("expected flag db path, got %q", cfg.DBPath)
	}
	if !cfg.SeedConfig.Verbose {
		t.Fatal("expected verbose flag to be true")
	}
}

func TestRunCreatesAndSeedsDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seed.db")

	cfg := Config{DBPath: path}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("run: %v", err)
	}

	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	posts, err := store.ListPosts(context.Background(), store.DB())
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) == 0 {
		t.Fatal("expected seeded posts")
	}
}
