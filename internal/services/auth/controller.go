// Package auth runs the login and registration flows for a single request
// and reduces every path to a Result.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/mcoot/credauth/internal/metrics"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/registration"
	"github.com/mcoot/credauth/internal/services/session"
	"github.com/mcoot/credauth/internal/storage"
)

// PasswordHasher hashes on a bounded pool, honouring ctx
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Sessions issues and destroys sessions
type Sessions interface {
	Login(ctx context.Context, prev *model.Session, account *model.Account, remoteAddr string) (*model.Session, error)
	Logout(ctx context.Context, id string) error
}

// Request is one inbound auth request, already decoded by the transport
type Request struct {
	Method string
	Action string

	Name       string
	Nickname   string
	Identifier string
	Email      string
	Password   string

	RemoteAddr string
	// Session is the caller's current session, if any
	Session *model.Session
}

// Controller dispatches auth requests
type Controller struct {
	accounts  storage.AccountStore
	validator *registration.Validator
	hasher    PasswordHasher
	sessions  Sessions
	dummyHash string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewController creates a new auth Controller. dummyHash is verified against
// when no account matches, so unknown emails cost the same as wrong passwords.
func NewController(
	accounts storage.AccountStore,
	validator *registration.Validator,
	hasher PasswordHasher,
	sessions Sessions,
	dummyHash string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		accounts:  accounts,
		validator: validator,
		hasher:    hasher,
		sessions:  sessions,
		dummyHash: dummyHash,
		logger:    logger,
		metrics:   m,
	}
}

// Handle runs req to a terminal Result. It never returns a raw error; internal
// failures are logged here and surface as a generic 500.
func (c *Controller) Handle(ctx context.Context, req Request) Result {
	var res Result
	action := req.Action

	switch {
	case req.Method != http.MethodPost:
		action = "unknown"
		c.logger.Info("auth request rejected",
			"reason", "method not allowed",
			"method", req.Method,
			"remote_addr", req.RemoteAddr,
		)
		res = failure(OutcomeMethodNotAllowed, KindMethodNotAllowed, http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	case action == ActionLogin:
		res = c.login(ctx, req)
	case action == ActionRegister:
		res = c.register(ctx, req)
	default:
		action = "unknown"
		c.logger.Info("auth request rejected",
			"reason", "invalid action",
			"remote_addr", req.RemoteAddr,
		)
		res = failure(OutcomeBadRequest, KindBadRequest, http.StatusBadRequest, MsgInvalidAction)
	}

	c.metrics.RecordAuth(action, string(res.Outcome))
	return res
}

func (c *Controller) login(ctx context.Context, req Request) Result {
	log := c.logger.With(
		"action", ActionLogin,
		"remote_addr", req.RemoteAddr,
	)

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		log.Info("login rejected", "reason", "missing credentials")
		r := failure(OutcomeLoginFailure, KindValidation, http.StatusBadRequest, MsgMissingCredentials)
		if strings.TrimSpace(req.Email) == "" {
			r.Payload.Field = string(registration.FieldEmail)
		} else {
			r.Payload.Field = string(registration.FieldPassword)
		}
		return r
	}

	email, ok := registration.NormalizeEmail(req.Email)
	if !ok {
		log.Info("login rejected", "reason", "invalid email")
		r := failure(OutcomeLoginFailure, KindValidation, http.StatusBadRequest, MsgInvalidEmail)
		r.Payload.Field = string(registration.FieldEmail)
		return r
	}
	log = log.With("email_domain", emailDomain(email))

	account, err := c.accounts.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrAccountNotFound) {
		return c.fail(log, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find account by email").
			Wrap(err))
	}

	targetHash := c.dummyHash
	if account != nil {
		targetHash = account.PasswordHash
	}

	// Always verify so that unknown emails and wrong passwords take as long
	valid, err := c.hasher.Verify(ctx, req.Password, targetHash)
	if err != nil {
		if account == nil && ctx.Err() == nil {
			valid = false
		} else {
			return c.fail(log, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(err))
		}
	}

	if account == nil {
		log.Info("login failed", "reason", "unknown email")
		return failure(OutcomeLoginFailure, KindUnauthorized, http.StatusUnauthorized, MsgInvalidCredentials)
	}

	log = log.With("user_id", account.ID)

	// Status is checked before the password result, as existence of an
	// inactive account is not protected
	if !account.IsActive() {
		log.Warn("login refused", "reason", "account not active", "status", account.Status)
		return failure(OutcomeLoginFailure, KindForbidden, http.StatusForbidden, MsgAccountInactive)
	}

	if !valid {
		log.Info("login failed", "reason", "wrong password")
		return failure(OutcomeLoginFailure, KindUnauthorized, http.StatusUnauthorized, MsgInvalidCredentials)
	}

	c.maybeRehash(ctx, log, account, req.Password)

	sess, err := c.sessions.Login(ctx, req.Session, account, req.RemoteAddr)
	if err != nil {
		if errors.Is(err, session.ErrAccountInactive) {
			return failure(OutcomeLoginFailure, KindForbidden, http.StatusForbidden, MsgAccountInactive)
		}
		return c.fail(log, oops.Code("AUTH_SESSION_FAILED").
			With("operation", "issue session").
			Wrap(err))
	}

	log.Info("login succeeded", "session", session.LogID(sess.ID))
	res := success(OutcomeLoginSuccess, MsgLoginSuccess)
	res.Session = sess
	return res
}

// maybeRehash upgrades a hash made with old cost parameters. Failure is
// logged and does not affect the login.
func (c *Controller) maybeRehash(ctx context.Context, log *slog.Logger, account *model.Account, password string) {
	if !c.hasher.NeedsRehash(account.PasswordHash) {
		return
	}

	hash, err := c.hasher.Hash(ctx, password)
	if err == nil {
		err = c.accounts.UpdatePasswordHash(ctx, account.ID, hash)
	}
	if err != nil {
		log.Warn("password rehash failed", "error", err)
		return
	}
	log.Info("password rehashed with current parameters")
}

func (c *Controller) register(ctx context.Context, req Request) Result {
	log := c.logger.With(
		"action", ActionRegister,
		"remote_addr", req.RemoteAddr,
	)

	clean, ferr := c.validator.Validate(model.RegistrationInput{
		Name:       req.Name,
		Nickname:   req.Nickname,
		Identifier: req.Identifier,
		Email:      req.Email,
		Password:   req.Password,
	})
	if ferr != nil {
		log.Info("registration rejected", "field", ferr.Field, "reason", ferr.Message)
		return validationFailure(OutcomeRegisterFailure, ferr)
	}
	log = log.With("email_domain", emailDomain(clean.Email()))

	exists, err := c.accounts.ExistsByEmailOrIdentifier(ctx, clean.Email(), clean.Identifier())
	if err != nil {
		return c.fail(log, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "check existing account").
			Wrap(err))
	}
	if exists {
		log.Info("registration rejected", "reason", "duplicate account")
		return failure(OutcomeRegisterFailure, KindConflict, http.StatusConflict, MsgDuplicateAccount)
	}

	hash, err := c.hasher.Hash(ctx, clean.Password())
	if err != nil {
		return c.fail(log, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err))
	}

	id, err := c.accounts.Insert(ctx, clean, hash)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateAccount) {
			log.Info("registration rejected", "reason", "duplicate account on insert")
			return failure(OutcomeRegisterFailure, KindConflict, http.StatusConflict, MsgDuplicateAccount)
		}
		return c.fail(log, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert account").
			Wrap(err))
	}

	log.Info("account registered", "user_id", id)
	return success(OutcomeRegisterSuccess, MsgRegisterSuccess)
}

// Logout destroys the caller's session
func (c *Controller) Logout(ctx context.Context, sess *model.Session) Result {
	var res Result
	switch {
	case sess == nil:
		res = failure(OutcomeUnauthorized, KindUnauthorized, http.StatusUnauthorized, MsgNotAuthenticated)
	default:
		if err := c.sessions.Logout(ctx, sess.ID); err != nil {
			res = c.fail(c.logger.With("action", "logout"), oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "delete session").
				Wrap(err))
		} else {
			c.logger.Info("logged out", "session", session.LogID(sess.ID))
			res = success(OutcomeLogoutSuccess, MsgLogoutSuccess)
		}
	}

	c.metrics.RecordAuth("logout", string(res.Outcome))
	return res
}

// Me returns the account behind an authenticated session
func (c *Controller) Me(ctx context.Context, sess *model.Session) Result {
	if !sess.Authenticated() {
		return failure(OutcomeUnauthorized, KindUnauthorized, http.StatusUnauthorized, MsgNotAuthenticated)
	}

	account, err := c.accounts.GetByID(ctx, sess.Principal.UserID)
	if errors.Is(err, model.ErrAccountNotFound) {
		return failure(OutcomeUnauthorized, KindUnauthorized, http.StatusUnauthorized, MsgNotAuthenticated)
	}
	if err != nil {
		return c.fail(c.logger.With("action", "me"), oops.Code("AUTH_ME_FAILED").
			With("operation", "get account").
			With("user_id", string(sess.Principal.UserID)).
			Wrap(err))
	}

	res := success(OutcomeAuthenticated, "")
	res.Account = &AccountSummary{
		ID:         account.ID,
		Name:       account.Name,
		Nickname:   account.Nickname,
		Email:      account.Email,
		Identifier: account.Identifier,
		Status:     account.Status,
	}
	return res
}

// fail logs an unexpected error with its context and returns a generic 500
func (c *Controller) fail(log *slog.Logger, err error) Result {
	attrs := []any{"error", err.Error()}
	if oe, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "code", oe.Code(), "context", oe.Context())
	}
	log.Error("auth request failed", attrs...)
	return internalError()
}

// emailDomain keeps the local part out of logs
func emailDomain(email string) string {
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		return email[at+1:]
	}
	return ""
}
