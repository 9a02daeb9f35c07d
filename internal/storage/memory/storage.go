package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/credauth/internal/dependencies/clock"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/storage"
)

// Storage is an in-memory implementation of the account and session stores.
// Values are copied on the way in and out so callers never share state.
type Storage struct {
	mu    sync.RWMutex
	clock clock.Clock

	accounts        map[model.AccountID]model.Account
	emailIndex      map[string]model.AccountID
	identifierIndex map[string]model.AccountID
	sessions        map[string]model.Session
}

// New creates a new in-memory storage instance
func New(clk clock.Clock) *Storage {
	return &Storage{
		clock:           clk,
		accounts:        make(map[model.AccountID]model.Account),
		emailIndex:      make(map[string]model.AccountID),
		identifierIndex: make(map[string]model.AccountID),
		sessions:        make(map[string]model.Session),
	}
}

// Ensure Storage implements the interfaces
var (
	_ storage.AccountStore = (*Storage)(nil)
	_ storage.SessionStore = (*Storage)(nil)
)

func (s *Storage) Close() error {
	return nil
}

// Account operations

func (s *Storage) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return s.getLocked(id)
}

func (s *Storage) GetByID(ctx context.Context, id model.AccountID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *Storage) getLocked(id model.AccountID) (*model.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &account, nil
}

func (s *Storage) ExistsByEmailOrIdentifier(ctx context.Context, email, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, byEmail := s.emailIndex[email]
	_, byIdentifier := s.identifierIndex[identifier]
	return byEmail || byIdentifier, nil
}

func (s *Storage) Insert(ctx context.Context, reg model.CleanRegistration, passwordHash string) (model.AccountID, error) {
	account := storage.NewAccount(reg, passwordHash, s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emailIndex[account.Email]; ok {
		return "", model.ErrDuplicateAccount
	}
	if _, ok := s.identifierIndex[account.Identifier]; ok {
		return "", model.ErrDuplicateAccount
	}

	s.accounts[account.ID] = *account
	s.emailIndex[account.Email] = account.ID
	s.identifierIndex[account.Identifier] = account.ID
	return account.ID, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, id model.AccountID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	s.accounts[id] = account
	return nil
}

func (s *Storage) SetStatus(ctx context.Context, id model.AccountID, status model.AccountStatus) error {
	if !status.Valid() {
		return model.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.Status = status
	s.accounts[id] = account
	return nil
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, sess *model.Session) error {
	stored := *sess
	if sess.Principal != nil {
		p := *sess.Principal
		stored.Principal = &p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = stored
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.ExpiresAt.After(s.clock.Now()) {
		return nil, model.ErrSessionNotFound
	}
	if sess.Principal != nil {
		p := *sess.Principal
		sess.Principal = &p
	}
	return &sess, nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
