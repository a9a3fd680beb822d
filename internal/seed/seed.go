// Package seed populates a development database with demo users and posts.
//
// Seeding is idempotent: users that already exist are skipped along with
// their posts, so reruns leave the database unchanged. All writes happen
// inside a single execution context so a partial seed never commits.
package seed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amachang/passgate/internal/auth/user"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
	"github.com/amachang/passgate/internal/storage"
	"github.com/amachang/passgate/internal/storage/sqlite"
	"github.com/amachang/passgate/internal/txn"
)

// Config holds seeding configuration.
type Config struct {
	Verbose bool
}

type demoUser struct {
	id          string
	displayName string
	posts       []demoPost
}

type demoPost struct {
	id    string
	title string
	body  string
}

var demoUsers = []demoUser{
	{
		id:          "demo-ada",
		displayName: "Ada",
		posts: []demoPost{
			{id: "demo-post-engine", title: "Notes on the engine", body: "Sketched the analytical engine's card reader today."},
			{id: "demo-post-loops", title: "On loops", body: "A sequence of operations may repeat itself."},
		},
	},
	{
		id:          "demo-grace",
		displayName: "Grace",
		posts: []demoPost{
			{id: "demo-post-moth", title: "First actual bug", body: "Found a moth in relay 70. Taped it into the log."},
		},
	},
	{
		id:          "demo-linus",
		displayName: "Linus",
		posts:       nil,
	},
}

// Run seeds the store with demo users and posts.
func Run(ctx context.Context, store *sqlite.Store, cfg Config) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}

	execCtx, err := txn.Open(ctx, store.DB())
	if err != nil {
		return fmt.Errorf("open execution context: %w", err)
	}

	seeded, err := apply(ctx, execCtx.Handle(), store, cfg)
	outcome := txn.Success
	if err != nil {
		outcome = txn.Failure
	}
	if finalizeErr := execCtx.Finalize(outcome); finalizeErr != nil && err == nil {
		return fmt.Errorf("finalize seed transaction: %w", finalizeErr)
	}
	if err != nil {
		return err
	}

	log.Printf("seeded %d users", seeded)
	return nil
}

func apply(ctx context.Context, handle txn.Handle, store *sqlite.Store, cfg Config) (int, error) {
	borrow, err := handle.Upgrade()
	if err != nil {
		return 0, err
	}
	defer borrow.Release()

	now := time.Now().UTC()
	seeded := 0
	for i, demo := range demoUsers {
		registeredAt := now.Add(-time.Duration(len(demoUsers)-i) * time.Hour)

		_, err := store.GetUser(ctx, borrow.Tx(), demo.id)
		if err == nil {
			if cfg.Verbose {
				log.Printf("user %s already present, skipping", demo.id)
			}
			continue
		}
		if apperrors.CodeOf(err) != apperrors.CodeNotFound {
			return 0, fmt.Errorf("check user %s: %w", demo.id, err)
		}

		record := user.User{
			ID:           demo.id,
			Slug:         user.DeriveSlug(demo.id),
			DisplayName:  demo.displayName,
			RegisteredAt: registeredAt,
		}
		if err := store.AddUser(ctx, borrow.Tx(), record); err != nil {
			return 0, fmt.Errorf("add user %s: %w", demo.id, err)
		}

		for j, post := range demo.posts {
			entry := storage.Post{
				ID:        post.id,
				AuthorID:  demo.id,
				Title:     post.title,
				Body:      post.body,
				CreatedAt: registeredAt.Add(time.Duration(j+1) * time.Minute),
			}
			if err := store.AddPost(ctx, borrow.Tx(), entry); err != nil {
				return 0, fmt.Errorf("add post %s: %w", post.id, err)
			}
		}

		if cfg.Verbose {
			log.Printf("seeded user %s with %d posts", demo.id, len(demo.posts))
		}
		seeded++
	}

	return seeded, nil
}
