// Package session issues, loads and rotates server-side sessions.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/mcoot/credauth/internal/dependencies/clock"
	"github.com/mcoot/credauth/internal/dependencies/random"
	"github.com/mcoot/credauth/internal/metrics"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/storage"
)

// IDBytes is the entropy of a session ID before encoding
const IDBytes = 32

var (
	ErrSessionExpired  = errors.New("session expired")
	ErrAccountInactive = errors.New("account is not active")
)

// Config controls session lifetime
type Config struct {
	// TTL is the absolute lifetime of a session from the moment it is issued
	TTL time.Duration `mapstructure:"ttl"`
	// IdleTimeout ends an authenticated session with no activity for this long.
	// Zero disables idle expiry.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig returns a 24 hour lifetime with a 30 minute idle timeout
func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		IdleTimeout: 30 * time.Minute,
	}
}

// Manager owns the session lifecycle
type Manager struct {
	store   storage.SessionStore
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewManager creates a new session Manager
func NewManager(store storage.SessionStore, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		store:   store,
		clock:   clk,
		random:  rnd,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// LogID returns a short digest of id that is safe to log
func LogID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

func (m *Manager) newID() (string, error) {
	id, err := m.random.Token(IDBytes)
	if err != nil {
		return "", oops.Code("SESSION_ID_FAILED").Wrap(err)
	}
	return id, nil
}

// Begin creates and stores an anonymous session
func (m *Manager) Begin(ctx context.Context) (*model.Session, error) {
	id, err := m.newID()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	sess := &model.Session{
		ID:         id,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.TTL),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, oops.Code("SESSION_SAVE_FAILED").
			With("operation", "begin").
			Wrap(err)
	}
	return sess, nil
}

// Load returns the live session for id.
// Returns model.ErrSessionNotFound for unknown IDs and ErrSessionExpired when
// the absolute or idle limit has passed, deleting the session in that case.
func (m *Manager) Load(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, model.ErrSessionNotFound
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil, err
		}
		return nil, oops.Code("SESSION_LOAD_FAILED").Wrap(err)
	}

	if m.expired(sess, m.clock.Now()) {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			m.logger.Warn("failed to delete expired session",
				"session", LogID(id),
				"error", err,
			)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func (m *Manager) expired(sess *model.Session, now time.Time) bool {
	if !now.Before(sess.ExpiresAt) {
		return true
	}
	if m.cfg.IdleTimeout > 0 && sess.Authenticated() {
		return now.Sub(sess.Principal.LastActivity) >= m.cfg.IdleTimeout
	}
	return false
}

// Touch records activity on sess
func (m *Manager) Touch(ctx context.Context, sess *model.Session) error {
	now := m.clock.Now()
	sess.LastSeenAt = now
	if sess.Principal != nil {
		sess.Principal.LastActivity = now
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return oops.Code("SESSION_SAVE_FAILED").
			With("operation", "touch").
			Wrap(err)
	}
	return nil
}

// Login issues a fresh authenticated session for account and destroys prev,
// so an ID planted before authentication is never promoted.
// The caller must already have verified the password.
func (m *Manager) Login(ctx context.Context, prev *model.Session, account *model.Account, remoteAddr string) (*model.Session, error) {
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	id, err := m.newID()
	if err != nil {
		return nil, err
	}

	if prev != nil && prev.ID != "" {
		if err := m.store.DeleteSession(ctx, prev.ID); err != nil {
			return nil, oops.Code("SESSION_ROTATE_FAILED").
				With("operation", "delete previous session").
				Wrap(err)
		}
	}

	now := m.clock.Now()
	sess := &model.Session{
		ID: id,
		Principal: &model.Principal{
			UserID:        account.ID,
			IssuedAt:      now,
			LastActivity:  now,
			RemoteAddress: remoteAddr,
		},
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.TTL),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, oops.Code("SESSION_SAVE_FAILED").
			With("operation", "login").
			With("user_id", string(account.ID)).
			Wrap(err)
	}

	m.metrics.SessionIssued()
	m.logger.Info("session issued",
		"user_id", account.ID,
		"session", LogID(id),
	)
	return sess, nil
}

// Logout destroys the session. Unknown IDs are not an error.
func (m *Manager) Logout(ctx context.Context, id string) error {
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

// Sweep removes sessions past their absolute lifetime
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpiredSessions(ctx, m.clock.Now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}
