package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/amachang/passgate/internal/platform/requestctx"
)

// maxCeremonyResponseBytes bounds authenticator response bodies.
const maxCeremonyResponseBytes = 1 << 20

type startAuthenticationRequest struct {
	UserID string `json:"user_id"`
}

type sessionUserResponse struct {
	UserID      string `json:"user_id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
}

func (h *Handler) startRegistration(c echo.Context) error {
	browserSession := currentSession(c)

	creation, err := h.engine.StartRegistration(c.Request().Context(), browserSession.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, creation)
}

func (h *Handler) finishRegistration(c echo.Context) error {
	browserSession := currentSession(c)

	responseJSON, err := readCeremonyResponse(c)
	if err != nil {
		return err
	}
	registered, err := h.engine.FinishRegistration(c.Request().Context(), currentHandle(c), browserSession.ID, responseJSON)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionUserResponse{
		UserID:      registered.ID,
		Slug:        registered.Slug,
		DisplayName: registered.DisplayName,
	})
}

func (h *Handler) startAuthentication(c echo.Context) error {
	browserSession := currentSession(c)

	var req startAuthenticationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	assertion, err := h.engine.StartAuthentication(c.Request().Context(), currentHandle(c), browserSession.ID, strings.TrimSpace(req.UserID))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, assertion)
}

func (h *Handler) finishAuthentication(c echo.Context) error {
	browserSession := currentSession(c)

	responseJSON, err := readCeremonyResponse(c)
	if err != nil {
		return err
	}
	authenticated, err := h.engine.FinishAuthentication(c.Request().Context(), currentHandle(c), browserSession.ID, responseJSON)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionUserResponse{
		UserID:      authenticated.ID,
		Slug:        authenticated.Slug,
		DisplayName: authenticated.DisplayName,
	})
}

func (h *Handler) logout(c echo.Context) error {
	browserSession := currentSession(c)
	h.sessions.Delete(browserSession.ID)
	h.clearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) currentUser(c echo.Context) error {
	userID := requestctx.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "login required")
	}

	borrow, err := currentHandle(c).Upgrade()
	if err != nil {
		return err
	}
	defer borrow.Release()

	found, err := h.users.GetUser(c.Request().Context(), borrow.Tx(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionUserResponse{
		UserID:      found.ID,
		Slug:        found.Slug,
		DisplayName: found.DisplayName,
	})
}

func readCeremonyResponse(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCeremonyResponseBytes))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return body, nil
}
