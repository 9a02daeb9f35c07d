package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/credauth/internal/dependencies/mocks"
	"github.com/mcoot/credauth/internal/metrics"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/password"
	"github.com/mcoot/credauth/internal/services/registration"
	"github.com/mcoot/credauth/internal/services/session"
	"github.com/mcoot/credauth/internal/storage/memory"
	tu "github.com/mcoot/credauth/internal/testutil"
)

// flakyStore fails selected operations
type flakyStore struct {
	*memory.Storage
	findErr   error
	existsErr error
	insertErr error
}

func (f *flakyStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Storage.FindByEmail(ctx, email)
}

func (f *flakyStore) ExistsByEmailOrIdentifier(ctx context.Context, email, identifier string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.Storage.ExistsByEmailOrIdentifier(ctx, email, identifier)
}

func (f *flakyStore) Insert(ctx context.Context, reg model.CleanRegistration, hash string) (model.AccountID, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	return f.Storage.Insert(ctx, reg, hash)
}

func fastParams() password.Params {
	return password.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}
}

type ControllerSuite struct {
	suite.Suite
	clock      *mocks.MockClock
	store      *flakyStore
	hasher     *password.Hasher
	pool       *password.Pool
	sessions   *session.Manager
	logs       *tu.LogBuffer
	reg        *prometheus.Registry
	metrics    *metrics.Metrics
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s.store = &flakyStore{Storage: memory.New(s.clock)}
	s.reg = prometheus.NewRegistry()
	s.metrics = metrics.New(s.reg)

	hasher, err := password.NewHasher("test-pepper", fastParams())
	s.Require().NoError(err)
	s.hasher = hasher
	s.pool = password.NewPool(hasher, 2, s.metrics)

	logger, logs := tu.CaptureLogger()
	s.logs = logs
	rnd := mocks.NewMockRandom("sess-1", "sess-2", "sess-3", "sess-4")
	s.sessions = session.NewManager(s.store, s.clock, rnd, session.DefaultConfig(), logger, s.metrics)

	s.controller = NewController(
		s.store,
		registration.NewValidator(registration.DefaultPolicy()),
		s.pool,
		s.sessions,
		hasher.DummyHash(),
		logger,
		s.metrics,
	)
	s.ctx = context.Background()
}

func registerRequest(email, identifier, pw string) Request {
	return Request{
		Method:     http.MethodPost,
		Action:     ActionRegister,
		Name:       "Ana Souza",
		Nickname:   "ana",
		Identifier: identifier,
		Email:      email,
		Password:   pw,
		RemoteAddr: "203.0.113.7",
	}
}

func loginRequest(email, pw string) Request {
	return Request{
		Method:     http.MethodPost,
		Action:     ActionLogin,
		Email:      email,
		Password:   pw,
		RemoteAddr: "203.0.113.7",
	}
}

func (s *ControllerSuite) registerDefault() {
	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "11144477735", "Abcdef12"))
	s.Require().Equal(OutcomeRegisterSuccess, res.Outcome, res.Payload)
}

// Dispatch

func (s *ControllerSuite) TestNonPostIsMethodNotAllowed() {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := loginRequest("a@b.com", "Abcdef12")
		req.Method = method

		res := s.controller.Handle(s.ctx, req)
		s.Equal(OutcomeMethodNotAllowed, res.Outcome)
		s.Equal(KindMethodNotAllowed, res.Kind)
		s.Equal(http.StatusMethodNotAllowed, res.Status)
		s.False(res.Payload.Success)
	}
}

func (s *ControllerSuite) TestUnknownAction() {
	for _, action := range []string{"", "delete", "LOGIN"} {
		req := loginRequest("a@b.com", "Abcdef12")
		req.Action = action

		res := s.controller.Handle(s.ctx, req)
		s.Equal(OutcomeBadRequest, res.Outcome)
		s.Equal(http.StatusBadRequest, res.Status)
		s.Equal(MsgInvalidAction, res.Payload.Error)
	}
}

// Registration

func (s *ControllerSuite) TestRegisterSuccess() {
	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "11144477735", "Abcdef12"))

	s.Equal(OutcomeRegisterSuccess, res.Outcome)
	s.Equal(http.StatusOK, res.Status)
	s.True(res.Payload.Success)
	s.Equal(MsgRegisterSuccess, res.Payload.Message)
	s.True(res.Succeeded())

	account, err := s.store.FindByEmail(s.ctx, "a@b.com")
	s.Require().NoError(err)
	s.Equal(model.AccountStatusActive, account.Status)
	s.Equal("11144477735", account.Identifier)
	s.NotEqual("Abcdef12", account.PasswordHash)
	s.True(strings.HasPrefix(account.PasswordHash, "$argon2id$"))

	ok, err := s.hasher.Verify("Abcdef12", account.PasswordHash)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ControllerSuite) TestRegisterValidationFailure() {
	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "12345678900", "Abcdef12"))

	s.Equal(OutcomeRegisterFailure, res.Outcome)
	s.Equal(KindValidation, res.Kind)
	s.Equal(http.StatusBadRequest, res.Status)
	s.Equal("identifier", res.Payload.Field)
	s.NotEmpty(res.Payload.Error)

	exists, err := s.store.ExistsByEmailOrIdentifier(s.ctx, "a@b.com", "12345678900")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *ControllerSuite) TestRegisterMissingField() {
	req := registerRequest("a@b.com", "11144477735", "Abcdef12")
	req.Nickname = ""

	res := s.controller.Handle(s.ctx, req)
	s.Equal(KindValidation, res.Kind)
	s.Equal("nickname", res.Payload.Field)
}

func (s *ControllerSuite) TestRegisterConflict() {
	s.registerDefault()

	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "52998224725", "Abcdef12"))
	s.Equal(OutcomeRegisterFailure, res.Outcome)
	s.Equal(KindConflict, res.Kind)
	s.Equal(http.StatusConflict, res.Status)
	s.Equal(MsgDuplicateAccount, res.Payload.Error)

	res = s.controller.Handle(s.ctx, registerRequest("c@d.com", "111.444.777-35", "Abcdef12"))
	s.Equal(KindConflict, res.Kind)
}

func (s *ControllerSuite) TestRegisterInsertRaceIsConflict() {
	s.store.insertErr = model.ErrDuplicateAccount

	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "11144477735", "Abcdef12"))
	s.Equal(KindConflict, res.Kind)
	s.Equal(http.StatusConflict, res.Status)
}

func (s *ControllerSuite) TestRegisterStoreFailureIsGenericInternalError() {
	s.store.insertErr = errors.New("dial tcp 10.0.0.5:3306: connection refused")

	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "11144477735", "Abcdef12"))
	s.Equal(OutcomeInternalError, res.Outcome)
	s.Equal(KindInternal, res.Kind)
	s.Equal(http.StatusInternalServerError, res.Status)
	s.Equal(MsgInternal, res.Payload.Error)
	s.NotContains(res.Payload.Error, "10.0.0.5")

	entry, ok := s.logs.Find("auth request failed")
	s.Require().True(ok, "expected a diagnostic log entry")
	s.Equal("ERROR", entry["level"])
	s.Equal("AUTH_REGISTER_FAILED", entry["code"])
	s.Contains(entry["error"], "connection refused")
}

func (s *ControllerSuite) TestRegisterExistsFailure() {
	s.store.existsErr = errors.New("timeout")

	res := s.controller.Handle(s.ctx, registerRequest("a@b.com", "11144477735", "Abcdef12"))
	s.Equal(KindInternal, res.Kind)
}

// Login

func (s *ControllerSuite) TestLoginSuccessIssuesFreshSession() {
	s.registerDefault()

	prev, err := s.sessions.Begin(s.ctx)
	s.Require().NoError(err)

	req := loginRequest("a@b.com", "Abcdef12")
	req.Session = prev
	res := s.controller.Handle(s.ctx, req)

	s.Equal(OutcomeLoginSuccess, res.Outcome)
	s.Equal(http.StatusOK, res.Status)
	s.Equal(MsgLoginSuccess, res.Payload.Message)
	s.Require().NotNil(res.Session)
	s.NotEqual(prev.ID, res.Session.ID)
	s.Require().True(res.Session.Authenticated())
	s.Equal("203.0.113.7", res.Session.Principal.RemoteAddress)

	_, err = s.sessions.Load(s.ctx, prev.ID)
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *ControllerSuite) TestLoginEmailIsNormalized() {
	s.registerDefault()

	res := s.controller.Handle(s.ctx, loginRequest("  A@B.COM ", "Abcdef12"))
	s.Equal(OutcomeLoginSuccess, res.Outcome)
}

func (s *ControllerSuite) TestUnknownEmailAndWrongPasswordAreIndistinguishable() {
	s.registerDefault()

	unknown := s.controller.Handle(s.ctx, loginRequest("nobody@b.com", "Abcdef12"))
	wrong := s.controller.Handle(s.ctx, loginRequest("a@b.com", "Wrongpass1"))

	s.Equal(http.StatusUnauthorized, unknown.Status)
	s.Equal(unknown.Status, wrong.Status)
	s.Equal(unknown.Payload, wrong.Payload)
	s.Equal(unknown.Kind, wrong.Kind)
	s.Equal(MsgInvalidCredentials, unknown.Payload.Error)
	s.Nil(unknown.Session)
	s.Nil(wrong.Session)
}

func (s *ControllerSuite) TestInactiveAccountIsForbidden() {
	s.registerDefault()
	account, err := s.store.FindByEmail(s.ctx, "a@b.com")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetStatus(s.ctx, account.ID, model.AccountStatusInactive))

	res := s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))
	s.Equal(KindForbidden, res.Kind)
	s.Equal(http.StatusForbidden, res.Status)
	s.Equal(MsgAccountInactive, res.Payload.Error)
	s.Nil(res.Session)

	// Status is decided before the password outcome
	res = s.controller.Handle(s.ctx, loginRequest("a@b.com", "Wrongpass1"))
	s.Equal(http.StatusForbidden, res.Status)
}

func (s *ControllerSuite) TestLoginMissingCredentials() {
	res := s.controller.Handle(s.ctx, loginRequest("", "Abcdef12"))
	s.Equal(http.StatusBadRequest, res.Status)
	s.Equal("email", res.Payload.Field)

	res = s.controller.Handle(s.ctx, loginRequest("a@b.com", ""))
	s.Equal(http.StatusBadRequest, res.Status)
	s.Equal("password", res.Payload.Field)
}

func (s *ControllerSuite) TestLoginInvalidEmail() {
	res := s.controller.Handle(s.ctx, loginRequest("not-an-email", "Abcdef12"))
	s.Equal(http.StatusBadRequest, res.Status)
	s.Equal(MsgInvalidEmail, res.Payload.Error)
}

func (s *ControllerSuite) TestLoginStoreFailure() {
	s.store.findErr = errors.New("connection reset")

	res := s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))
	s.Equal(http.StatusInternalServerError, res.Status)
	s.Equal(MsgInternal, res.Payload.Error)
}

func (s *ControllerSuite) TestLoginCancelledContext() {
	s.registerDefault()

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	res := s.controller.Handle(ctx, loginRequest("a@b.com", "Abcdef12"))
	s.Equal(KindInternal, res.Kind)
}

func (s *ControllerSuite) TestLoginRehashesOutdatedHash() {
	old, err := password.NewHasher("test-pepper", password.Params{Memory: 2048, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
	s.Require().NoError(err)
	hash, err := old.Hash("Abcdef12")
	s.Require().NoError(err)

	clean, ferr := registration.NewValidator(registration.DefaultPolicy()).Validate(model.RegistrationInput{
		Name: "Ana", Nickname: "ana", Identifier: "11144477735", Email: "a@b.com", Password: "Abcdef12",
	})
	s.Require().Nil(ferr)
	id, err := s.store.Insert(s.ctx, clean, hash)
	s.Require().NoError(err)

	res := s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))
	s.Require().Equal(OutcomeLoginSuccess, res.Outcome)

	account, err := s.store.GetByID(s.ctx, id)
	s.Require().NoError(err)
	s.NotEqual(hash, account.PasswordHash)
	s.False(s.hasher.NeedsRehash(account.PasswordHash))
}

func (s *ControllerSuite) TestPasswordNeverLogged() {
	s.registerDefault()
	_ = s.controller.Handle(s.ctx, loginRequest("a@b.com", "Wrongpass1"))
	_ = s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))

	out := s.logs.String()
	s.NotContains(out, "Abcdef12")
	s.NotContains(out, "Wrongpass1")
	s.NotContains(out, "test-pepper")
	s.NotContains(out, "sess-1")
}

func (s *ControllerSuite) TestMetricsCountOutcomes() {
	s.registerDefault()
	_ = s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))
	_ = s.controller.Handle(s.ctx, loginRequest("a@b.com", "nope"))

	count, err := testutil.GatherAndCount(s.reg, "credauth_auth_requests_total")
	s.Require().NoError(err)
	s.Equal(3, count)
}

// Logout and Me

func (s *ControllerSuite) TestMeAndLogout() {
	s.registerDefault()
	login := s.controller.Handle(s.ctx, loginRequest("a@b.com", "Abcdef12"))
	s.Require().NotNil(login.Session)

	me := s.controller.Me(s.ctx, login.Session)
	s.Equal(http.StatusOK, me.Status)
	s.Require().NotNil(me.Account)
	s.Equal("a@b.com", me.Account.Email)
	s.Equal("Ana Souza", me.Account.Name)

	out := s.controller.Logout(s.ctx, login.Session)
	s.Equal(OutcomeLogoutSuccess, out.Outcome)

	_, err := s.sessions.Load(s.ctx, login.Session.ID)
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *ControllerSuite) TestMeRequiresAuthenticatedSession() {
	res := s.controller.Me(s.ctx, nil)
	s.Equal(http.StatusUnauthorized, res.Status)

	anon, err := s.sessions.Begin(s.ctx)
	s.Require().NoError(err)
	res = s.controller.Me(s.ctx, anon)
	s.Equal(http.StatusUnauthorized, res.Status)
}

func (s *ControllerSuite) TestLogoutWithoutSession() {
	res := s.controller.Logout(s.ctx, nil)
	s.Equal(http.StatusUnauthorized, res.Status)
}
