package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mcoot/credauth/internal/api/apierr"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/session"
)

type contextKey string

const sessionContextKey contextKey = "session"

// SessionManager is the subset of session.Manager the middleware needs
type SessionManager interface {
	Begin(ctx context.Context) (*model.Session, error)
	Load(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, sess *model.Session) error
}

// Session loads the caller's session, if any, into the request context.
// Unknown or expired IDs leave the request anonymous; a stale cookie is cleared.
func Session(sessions SessionManager, cookies CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := extractToken(r, cookies.name())
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.Load(r.Context(), token)
			switch {
			case errors.Is(err, model.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
				logger.Debug("ignoring stale session", "session", session.LogID(token), "reason", err.Error())
				if fromCookie {
					ClearSessionCookie(w, cookies)
				}
				next.ServeHTTP(w, r)
				return
			case err != nil:
				logger.Error("failed to load session", "session", session.LogID(token), "error", err.Error())
				apierr.WriteError(w, apierr.NewInternalError())
				return
			}

			if err := sessions.Touch(r.Context(), sess); err != nil {
				logger.Warn("failed to record session activity", "session", session.LogID(sess.ID), "error", err.Error())
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// EnsureSession starts an anonymous session for POST requests that arrive
// without one, so login always has a pre-auth session to rotate away from.
func EnsureSession(sessions SessionManager, cookies CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || GetSession(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.Begin(r.Context())
			if err != nil {
				logger.Error("failed to begin session", "error", err.Error())
				apierr.WriteError(w, apierr.NewInternalError())
				return
			}
			SetSessionCookie(w, cookies, sess)

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// extractToken extracts the session ID from the request and reports whether
// it came from the cookie
func extractToken(r *http.Request, cookieName string) (string, bool) {
	// Check Authorization header first
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer "), false
	}

	// Fall back to cookie
	cookie, err := r.Cookie(cookieName)
	if err == nil {
		return cookie.Value, true
	}

	return "", false
}

// WithSession returns ctx carrying sess
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionContextKey).(*model.Session)
	return sess
}
