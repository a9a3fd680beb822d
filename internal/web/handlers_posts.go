package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/amachang/passgate/internal/platform/errors"
	"github.com/amachang/passgate/internal/platform/requestctx"
	"github.com/amachang/passgate/internal/storage"
)

type postRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type postResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorSlug string    `json:"author_slug,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

func toPostResponse(post storage.Post) postResponse {
	return postResponse{
		ID:         post.ID,
		AuthorID:   post.AuthorID,
		AuthorSlug: post.AuthorSlug,
		Title:      post.Title,
		Body:       post.Body,
		CreatedAt:  post.CreatedAt,
	}
}

func (h *Handler) listPosts(c echo.Context) error {
	borrow, err := currentHandle(c).Upgrade()
	if err != nil {
		return err
	}
	defer borrow.Release()

	posts, err := h.posts.ListPosts(c.Request().Context(), borrow.Tx())
	if err != nil {
		return err
	}
	out := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		out = append(out, toPostResponse(post))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) getPost(c echo.Context) error {
	postID := strings.TrimSpace(c.Param("id"))
	if postID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "post id is required")
	}

	borrow, err := currentHandle(c).Upgrade()
	if err != nil {
		return err
	}
	defer borrow.Release()

	post, err := h.posts.GetPost(c.Request().Context(), borrow.Tx(), postID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPostResponse(post))
}

func (h *Handler) createPost(c echo.Context) error {
	userID := requestctx.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return apperrors.New(apperrors.CodeUnauthorized, "login required")
	}

	var req postRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	postID, err := h.idGenerator()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "generate post id", err)
	}
	post := storage.Post{
		ID:        postID,
		AuthorID:  userID,
		Title:     title,
		Body:      req.Body,
		CreatedAt: h.clock().UTC(),
	}

	borrow, err := currentHandle(c).Upgrade()
	if err != nil {
		return err
	}
	defer borrow.Release()

	if err := h.posts.AddPost(c.Request().Context(), borrow.Tx(), post); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toPostResponse(post))
}

func (h *Handler) updatePost(c echo.Context) error {
	userID := requestctx.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return apperrors.New(apperrors.CodeUnauthorized, "login required")
	}

	postID := strings.TrimSpace(c.Param("id"))
	if postID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "post id is required")
	}
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}

	borrow, err := currentHandle(c).Upgrade()
	if err != nil {
		return err
	}
	defer borrow.Release()

	existing, err := h.posts.GetPost(c.Request().Context(), borrow.Tx(), postID)
	if err != nil {
		return err
	}
	if existing.AuthorID != userID {
		return apperrors.WithMetadata(apperrors.CodeForbidden, "post belongs to another user", map[string]string{
			"post_id": postID,
		})
	}

	if err := h.posts.UpdatePost(c.Request().Context(), borrow.Tx(), postID, title, req.Body); err != nil {
		return err
	}
	updated := existing
	updated.Title = title
	updated.Body = req.Body
	return c.JSON(http.StatusOK, toPostResponse(updated))
}
