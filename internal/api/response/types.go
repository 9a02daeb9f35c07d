package response

import (
	"github.com/mcoot/credauth/internal/services/auth"
)

// Me is the response for GET /auth/me
type Me struct {
	Success bool                `json:"success"`
	Account auth.AccountSummary `json:"account"`
}

// MeFromResult converts a successful auth.Result from Controller.Me
func MeFromResult(res auth.Result) Me {
	me := Me{Success: res.Payload.Success}
	if res.Account != nil {
		me.Account = *res.Account
	}
	return me
}

// Health is the response for GET /health
type Health struct {
	Status string `json:"status"`
}
