package model

import "time"

// Principal is the authenticated identity bound to a session after login
type Principal struct {
	UserID        AccountID `json:"user_id"`
	IssuedAt      time.Time `json:"issued_at"`
	LastActivity  time.Time `json:"last_activity"`
	RemoteAddress string    `json:"remote_address"`
}

// Session is server-side session state keyed by an unpredictable ID.
// Principal is nil until the session is authenticated.
type Session struct {
	ID         string     `json:"id"`
	Principal  *Principal `json:"principal,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Authenticated reports whether the session carries a principal
func (s *Session) Authenticated() bool {
	return s != nil && s.Principal != nil
}
