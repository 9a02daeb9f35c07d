package storage

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mcoot/credauth/internal/model"
)

// AccountStore defines persistence for user accounts.
// Implementations must only use parameterized execution.
type AccountStore interface {
	// FindByEmail returns model.ErrAccountNotFound when no account matches
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id model.AccountID) (*model.Account, error)

	// ExistsByEmailOrIdentifier reports whether either value is already taken
	ExistsByEmailOrIdentifier(ctx context.Context, email, identifier string) (bool, error)

	// Insert persists a new active account and returns its ID.
	// Returns model.ErrDuplicateAccount if the email or identifier is taken.
	Insert(ctx context.Context, reg model.CleanRegistration, passwordHash string) (model.AccountID, error)

	UpdatePasswordHash(ctx context.Context, id model.AccountID, passwordHash string) error
	SetStatus(ctx context.Context, id model.AccountID, status model.AccountStatus) error

	Close() error
}

// SessionStore defines persistence for server-side sessions
type SessionStore interface {
	SaveSession(ctx context.Context, sess *model.Session) error
	// GetSession returns model.ErrSessionNotFound for unknown or expired IDs
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes sessions whose ExpiresAt is not after now
	// and returns how many were removed
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// NewAccount builds the active account row for a validated registration
func NewAccount(reg model.CleanRegistration, passwordHash string, now time.Time) *model.Account {
	return &model.Account{
		ID:           model.AccountID(ulid.Make().String()),
		Name:         reg.Name(),
		Nickname:     reg.Nickname(),
		Identifier:   reg.Identifier(),
		Email:        reg.Email(),
		PasswordHash: passwordHash,
		Status:       model.AccountStatusActive,
		CreatedAt:    now.UTC(),
	}
}
