package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amachang/passgate/internal/auth/session"
	apperrors "github.com/amachang/passgate/internal/platform/errors"
	"github.com/amachang/passgate/internal/platform/requestctx"
	"github.com/amachang/passgate/internal/txn"
)

// sessionMiddleware resolves the browser session from the signed cookie,
// creating a fresh anonymous session when the cookie is absent, invalid, or
// names a session that no longer exists.
func (h *Handler) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var resolved session.Session

		if cookie, err := c.Cookie(SessionCookieName); err == nil {
			if sessionID, err := h.tokens.Verify(cookie.Value); err == nil {
				if found, err := h.sessions.Get(sessionID); err == nil {
					resolved = found
				}
			}
		}

		if resolved.ID == "" {
			created, err := h.sessions.Create()
			if err != nil {
				return err
			}
			token, err := h.tokens.Issue(created.ID)
			if err != nil {
				return err
			}
			h.setSessionCookie(c, token)
			resolved = created
		}

		c.Set(sessionContextKey, resolved)
		ctx := requestctx.WithSessionID(c.Request().Context(), resolved.ID)
		if resolved.UserID != "" {
			ctx = requestctx.WithUserID(ctx, resolved.UserID)
		}
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// transactionMiddleware owns the request's execution context. The handler
// chain sees only a borrowable handle; commit or rollback is decided here
// from the handler outcome. A rejected authentication is the one failure
// that still commits, so its counter bookkeeping survives.
func (h *Handler) transactionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ec, err := h.openContext(c.Request().Context())
		if err != nil {
			return err
		}
		c.Set(handleContextKey, ec.Handle())

		var handlerErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					if err := ec.Finalize(txn.Failure); err != nil && !errors.Is(err, txn.ErrAlreadyFinalized) {
						log.Printf("rollback after panic: %v", err)
					}
					panic(r)
				}
			}()
			handlerErr = next(c)
		}()

		outcome := txn.Failure
		if handlerErr == nil || apperrors.CodeOf(handlerErr) == apperrors.CodeAuthenticationRejected {
			outcome = txn.Success
		}
		if err := ec.Finalize(outcome); err != nil {
			log.Printf("finalize request transaction: %v", err)
			if handlerErr == nil {
				return apperrors.Wrap(apperrors.CodeInternal, "finalize request transaction", err)
			}
		}
		return handlerErr
	}
}

// errorHandler renders coded errors with their mapped status and a body that
// never echoes internal detail. An unknown user and a failed verification
// produce byte-identical responses.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := ""
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		if text, ok := httpErr.Message.(string); ok && status < http.StatusInternalServerError {
			message = text
		}
	} else {
		code := apperrors.CodeOf(err)
		status = code.HTTPStatus()
		if isCeremonyCode(code) {
			// One body for every protocol or policy failure; the response
			// must not reveal which check failed.
			message = "authentication failed"
		}
	}
	if message == "" {
		message = genericMessage(status)
	}

	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}

	body := map[string]string{"error": message}
	if writeErr := c.JSON(status, body); writeErr != nil {
		log.Printf("write error response: %v", writeErr)
	}
}

func isCeremonyCode(code apperrors.Code) bool {
	switch code {
	case apperrors.CodeNoPendingCeremony, apperrors.CodeVerificationFailed,
		apperrors.CodeAuthenticationRejected, apperrors.CodeUnknownUser:
		return true
	}
	return false
}

func genericMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusUnauthorized:
		return "login required"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	default:
		return "internal error"
	}
}
