package auth

import (
	"net/http"

	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/registration"
)

// Action names accepted in the request's action field
const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// Outcome is the terminal state a request ends in
type Outcome string

const (
	OutcomeLoginSuccess     Outcome = "login_success"
	OutcomeLoginFailure     Outcome = "login_failure"
	OutcomeRegisterSuccess  Outcome = "register_success"
	OutcomeRegisterFailure  Outcome = "register_failure"
	OutcomeLogoutSuccess    Outcome = "logout_success"
	OutcomeBadRequest       Outcome = "bad_request"
	OutcomeMethodNotAllowed Outcome = "method_not_allowed"
	OutcomeAuthenticated    Outcome = "authenticated"
	OutcomeUnauthorized     Outcome = "unauthorized"
	OutcomeInternalError    Outcome = "internal_error"
)

// Kind classifies a failure. KindNone marks a success.
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindConflict         Kind = "conflict"
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindBadRequest       Kind = "bad_request"
	KindInternal         Kind = "internal"
)

// Caller-facing messages
const (
	MsgLoginSuccess       = "login successful"
	MsgRegisterSuccess    = "registration successful"
	MsgLogoutSuccess      = "logout successful"
	MsgInvalidCredentials = "invalid credentials"
	MsgAccountInactive    = "account inactive"
	MsgDuplicateAccount   = "email or identifier already registered"
	MsgMissingCredentials = "email and password are required"
	MsgInvalidEmail       = "invalid email address"
	MsgInvalidAction      = "invalid action"
	MsgMethodNotAllowed   = "method not allowed"
	MsgNotAuthenticated   = "not authenticated"
	MsgInternal           = "internal server error"
)

// Payload is the JSON body returned to the caller
type Payload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

// AccountSummary is the public view of an account
type AccountSummary struct {
	ID         model.AccountID     `json:"id"`
	Name       string              `json:"name"`
	Nickname   string              `json:"nickname"`
	Email      string              `json:"email"`
	Identifier string              `json:"identifier"`
	Status     model.AccountStatus `json:"status"`
}

// Result is the structured outcome of one request.
// Session is set when a login issued a new session.
type Result struct {
	Outcome Outcome
	Kind    Kind
	Status  int
	Payload Payload
	Session *model.Session
	Account *AccountSummary
}

// Succeeded reports whether the result is a 2xx outcome
func (r Result) Succeeded() bool {
	return r.Kind == KindNone
}

func success(outcome Outcome, message string) Result {
	return Result{
		Outcome: outcome,
		Status:  http.StatusOK,
		Payload: Payload{Success: true, Message: message},
	}
}

func failure(outcome Outcome, kind Kind, status int, message string) Result {
	return Result{
		Outcome: outcome,
		Kind:    kind,
		Status:  status,
		Payload: Payload{Success: false, Error: message},
	}
}

func validationFailure(outcome Outcome, ferr *registration.FieldError) Result {
	r := failure(outcome, KindValidation, http.StatusBadRequest, ferr.Message)
	r.Payload.Field = string(ferr.Field)
	return r
}

func internalError() Result {
	return failure(OutcomeInternalError, KindInternal, http.StatusInternalServerError, MsgInternal)
}
