package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/amachang/passgate/internal/storage"
)

// AddPost inserts one journal post on the caller's query surface.
func (s *Store) AddPost(ctx context.Context, q storage.DBTX, post storage.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(post.ID) == "" {
		return fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(post.AuthorID) == "" {
		return fmt.Errorf("author id is required")
	}
	if strings.TrimSpace(post.Title) == "" {
		return fmt.Errorf("title is required")
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO posts (id, author_id, title, body, created_at)
VALUES (?, ?, ?, ?, ?)
`, post.ID, post.AuthorID, post.Title, post.Body, toMillis(post.CreatedAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrConstraintViolation
		}
		return fmt.Errorf("add post: %w", err)
	}
	return nil
}

// GetPost fetches one post with its author slug.
func (s *Store) GetPost(ctx context.Context, q storage.DBTX, postID string) (storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return storage.Post{}, err
	}
	if q == nil {
		return storage.Post{}, fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(postID) == "" {
		return storage.Post{}, fmt.Errorf("post id is required")
	}

	row := q.QueryRowContext(ctx, `
SELECT p.id, p.author_id, p.title, p.body, p.created_at, COALESCE(u.slug, '')
FROM posts p
JOIN users u ON u.id = p.author_id
WHERE p.id = ?
`, postID)

	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Post{}, storage.ErrNotFound
		}
		return storage.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// ListPosts returns all posts, newest first, with author slugs.
func (s *Store) ListPosts(ctx context.Context, q storage.DBTX) ([]storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("query surface is required")
	}

	rows, err := q.QueryContext(ctx, `
SELECT p.id, p.author_id, p.title, p.body, p.created_at, COALESCE(u.slug, '')
FROM posts p
JOIN users u ON u.id = p.author_id
ORDER BY p.created_at DESC, p.id
`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]storage.Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// UpdatePost rewrites a post's title and body.
func (s *Store) UpdatePost(ctx context.Context, q storage.DBTX, postID string, title string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q == nil {
		return fmt.Errorf("query surface is required")
	}
	if strings.TrimSpace(postID) == "" {
		return fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}

	result, err := q.ExecContext(ctx, `
UPDATE posts
SET title = ?, body = ?
WHERE id = ?
`, title, body, postID)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update post rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (storage.Post, error) {
	var (
		id         string
		authorID   string
		title      string
		body       string
		createdAt  int64
		authorSlug string
	)
	if err := row.Scan(&id, &authorID, &title, &body, &createdAt, &authorSlug); err != nil {
		return storage.Post{}, err
	}
	return storage.Post{
		ID:         id,
		AuthorID:   authorID,
		Title:      title,
		Body:       body,
		CreatedAt:  fromMillis(createdAt),
		AuthorSlug: authorSlug,
	}, nil
}
