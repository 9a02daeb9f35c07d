package middleware

import (
	"net/http"
	"time"

	"github.com/mcoot/credauth/internal/model"
)

// DefaultCookieName is the session cookie used when none is configured
const DefaultCookieName = "credauth_session"

// TokenHeader carries a freshly issued session ID for non-browser clients
const TokenHeader = "X-Session-Token"

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
	Path   string
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

func (c CookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// SetSessionCookie writes the cookie for sess, expiring with it
func SetSessionCookie(w http.ResponseWriter, cfg CookieConfig, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.name(),
		Value:    sess.ID,
		Path:     cfg.path(),
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie instructs the client to drop the session cookie
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.name(),
		Value:    "",
		Path:     cfg.path(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
