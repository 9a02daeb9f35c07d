// Package storagetest holds behaviour suites shared by every storage backend.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/credauth/internal/dependencies/mocks"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/storage"
)

// Epoch is the time every suite clock starts at
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Registration returns a clean registration for tests. Identifiers must be
// distinct per account; the CPF checksum is not re-checked by stores.
func Registration(email, identifier string) model.CleanRegistration {
	return model.NewCleanRegistration("Ana Souza", "ana", identifier, email, "Abcdef12")
}

// AccountSuite exercises the storage.AccountStore contract
type AccountSuite struct {
	suite.Suite
	// NewStore returns a fresh, empty store that reads time from clk
	NewStore func(clk *mocks.MockClock) storage.AccountStore

	Clock *mocks.MockClock
	Store storage.AccountStore
	Ctx   context.Context
}

func (s *AccountSuite) SetupTest() {
	s.Clock = mocks.NewMockClock(Epoch)
	s.Store = s.NewStore(s.Clock)
	s.Ctx = context.Background()
}

func (s *AccountSuite) TearDownTest() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

func (s *AccountSuite) TestInsertAndFindByEmail() {
	id, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "hash-1")
	s.Require().NoError(err)
	s.NotEmpty(id)

	account, err := s.Store.FindByEmail(s.Ctx, "a@b.com")
	s.Require().NoError(err)
	s.Equal(id, account.ID)
	s.Equal("Ana Souza", account.Name)
	s.Equal("ana", account.Nickname)
	s.Equal("11144477735", account.Identifier)
	s.Equal("a@b.com", account.Email)
	s.Equal("hash-1", account.PasswordHash)
	s.Equal(model.AccountStatusActive, account.Status)
	s.True(account.CreatedAt.Equal(Epoch), "created_at %s", account.CreatedAt)
}

func (s *AccountSuite) TestFindByEmailNotFound() {
	_, err := s.Store.FindByEmail(s.Ctx, "nobody@b.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *AccountSuite) TestGetByID() {
	id, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "hash-1")
	s.Require().NoError(err)

	account, err := s.Store.GetByID(s.Ctx, id)
	s.Require().NoError(err)
	s.Equal("a@b.com", account.Email)

	_, err = s.Store.GetByID(s.Ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *AccountSuite) TestInsertGeneratesDistinctIDs() {
	id1, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)
	id2, err := s.Store.Insert(s.Ctx, Registration("c@d.com", "52998224725"), "h")
	s.Require().NoError(err)
	s.NotEqual(id1, id2)
}

func (s *AccountSuite) TestExistsByEmailOrIdentifier() {
	_, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)

	exists, err := s.Store.ExistsByEmailOrIdentifier(s.Ctx, "a@b.com", "52998224725")
	s.Require().NoError(err)
	s.True(exists, "same email")

	exists, err = s.Store.ExistsByEmailOrIdentifier(s.Ctx, "c@d.com", "11144477735")
	s.Require().NoError(err)
	s.True(exists, "same identifier")

	exists, err = s.Store.ExistsByEmailOrIdentifier(s.Ctx, "c@d.com", "52998224725")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *AccountSuite) TestInsertDuplicateEmail() {
	_, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)

	_, err = s.Store.Insert(s.Ctx, Registration("a@b.com", "52998224725"), "h")
	s.ErrorIs(err, model.ErrDuplicateAccount)

	// The losing insert must not leave a partial record behind
	exists, err := s.Store.ExistsByEmailOrIdentifier(s.Ctx, "x@y.com", "52998224725")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *AccountSuite) TestInsertDuplicateIdentifier() {
	_, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)

	_, err = s.Store.Insert(s.Ctx, Registration("c@d.com", "11144477735"), "h")
	s.ErrorIs(err, model.ErrDuplicateAccount)

	_, err = s.Store.FindByEmail(s.Ctx, "c@d.com")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *AccountSuite) TestUpdatePasswordHash() {
	id, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "old")
	s.Require().NoError(err)

	s.Require().NoError(s.Store.UpdatePasswordHash(s.Ctx, id, "new"))

	account, err := s.Store.GetByID(s.Ctx, id)
	s.Require().NoError(err)
	s.Equal("new", account.PasswordHash)

	err = s.Store.UpdatePasswordHash(s.Ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", "new")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *AccountSuite) TestSetStatus() {
	id, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)

	s.Require().NoError(s.Store.SetStatus(s.Ctx, id, model.AccountStatusInactive))

	account, err := s.Store.FindByEmail(s.Ctx, "a@b.com")
	s.Require().NoError(err)
	s.Equal(model.AccountStatusInactive, account.Status)
	s.False(account.IsActive())

	s.ErrorIs(s.Store.SetStatus(s.Ctx, id, "deleted"), model.ErrInvalidStatus)
	s.ErrorIs(s.Store.SetStatus(s.Ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", model.AccountStatusActive), model.ErrAccountNotFound)
}

func (s *AccountSuite) TestReturnedAccountIsACopy() {
	_, err := s.Store.Insert(s.Ctx, Registration("a@b.com", "11144477735"), "h")
	s.Require().NoError(err)

	account, err := s.Store.FindByEmail(s.Ctx, "a@b.com")
	s.Require().NoError(err)
	account.Status = model.AccountStatusSuspended

	again, err := s.Store.FindByEmail(s.Ctx, "a@b.com")
	s.Require().NoError(err)
	s.Equal(model.AccountStatusActive, again.Status)
}

// SessionSuite exercises the storage.SessionStore contract
type SessionSuite struct {
	suite.Suite
	NewStore func(clk *mocks.MockClock) storage.SessionStore

	Clock *mocks.MockClock
	Store storage.SessionStore
	Ctx   context.Context
}

func (s *SessionSuite) SetupTest() {
	s.Clock = mocks.NewMockClock(Epoch)
	s.Store = s.NewStore(s.Clock)
	s.Ctx = context.Background()
}

func (s *SessionSuite) session(id string, ttl time.Duration) *model.Session {
	now := s.Clock.Now()
	return &model.Session{
		ID:         id,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func (s *SessionSuite) TestSaveAndGetAnonymous() {
	s.Require().NoError(s.Store.SaveSession(s.Ctx, s.session("sess-1", time.Hour)))

	got, err := s.Store.GetSession(s.Ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal("sess-1", got.ID)
	s.False(got.Authenticated())
	s.True(got.ExpiresAt.Equal(Epoch.Add(time.Hour)))
}

func (s *SessionSuite) TestSaveAndGetAuthenticated() {
	sess := s.session("sess-1", time.Hour)
	sess.Principal = &model.Principal{
		UserID:        "user-1",
		IssuedAt:      Epoch,
		LastActivity:  Epoch,
		RemoteAddress: "203.0.113.7",
	}
	s.Require().NoError(s.Store.SaveSession(s.Ctx, sess))

	got, err := s.Store.GetSession(s.Ctx, "sess-1")
	s.Require().NoError(err)
	s.Require().True(got.Authenticated())
	s.Equal(model.AccountID("user-1"), got.Principal.UserID)
	s.Equal("203.0.113.7", got.Principal.RemoteAddress)
	s.True(got.Principal.IssuedAt.Equal(Epoch))
}

func (s *SessionSuite) TestGetUnknownSession() {
	_, err := s.Store.GetSession(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *SessionSuite) TestSaveOverwrites() {
	sess := s.session("sess-1", time.Hour)
	s.Require().NoError(s.Store.SaveSession(s.Ctx, sess))

	sess.Principal = &model.Principal{UserID: "user-1"}
	s.Require().NoError(s.Store.SaveSession(s.Ctx, sess))

	got, err := s.Store.GetSession(s.Ctx, "sess-1")
	s.Require().NoError(err)
	s.True(got.Authenticated())
}

func (s *SessionSuite) TestStoredSessionIsACopy() {
	sess := s.session("sess-1", time.Hour)
	sess.Principal = &model.Principal{UserID: "user-1"}
	s.Require().NoError(s.Store.SaveSession(s.Ctx, sess))

	sess.Principal.UserID = "someone-else"

	got, err := s.Store.GetSession(s.Ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal(model.AccountID("user-1"), got.Principal.UserID)
}

func (s *SessionSuite) TestDeleteSession() {
	s.Require().NoError(s.Store.SaveSession(s.Ctx, s.session("sess-1", time.Hour)))
	s.Require().NoError(s.Store.DeleteSession(s.Ctx, "sess-1"))

	_, err := s.Store.GetSession(s.Ctx, "sess-1")
	s.ErrorIs(err, model.ErrSessionNotFound)

	// Deleting twice is not an error
	s.NoError(s.Store.DeleteSession(s.Ctx, "sess-1"))
}

func (s *SessionSuite) TestDeleteExpiredSessions() {
	s.Require().NoError(s.Store.SaveSession(s.Ctx, s.session("short", time.Minute)))
	s.Require().NoError(s.Store.SaveSession(s.Ctx, s.session("long", time.Hour)))

	removed, err := s.Store.DeleteExpiredSessions(s.Ctx, Epoch.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, removed)

	_, err = s.Store.GetSession(s.Ctx, "long")
	s.NoError(err)
}
