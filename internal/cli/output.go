package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"success": false,
			"error":   err.Error(),
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Payload:
		o.printPayload(v)
	case LoginResult:
		o.printLoginResult(v)
	case MeResult:
		o.printAccount(v.Account)
	case Account:
		o.printAccount(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Payload is the body of POST /auth and /auth/logout (matches API)
type Payload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

// LoginResult combines the login payload and the issued token
type LoginResult struct {
	Payload
	Token string `json:"token"`
}

// Account response type
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Nickname   string `json:"nickname"`
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
}

// MeResult is the body of GET /auth/me
type MeResult struct {
	Success bool    `json:"success"`
	Account Account `json:"account"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printPayload(p Payload) {
	if p.Success {
		fmt.Println(p.Message)
		return
	}
	if p.Field != "" {
		fmt.Printf("%s (field: %s)\n", p.Error, p.Field)
		return
	}
	fmt.Println(p.Error)
}

func (o *Output) printLoginResult(l LoginResult) {
	o.printPayload(l.Payload)
	fmt.Printf("Token: %s\n", l.Token)
}

func (o *Output) printAccount(a Account) {
	fmt.Printf("Account: %s (%s)\n", a.Name, a.ID)
	if a.Nickname != "" {
		fmt.Printf("Nickname: %s\n", a.Nickname)
	}
	fmt.Printf("Email: %s\n", a.Email)
	fmt.Printf("CPF: %s\n", a.Identifier)
	fmt.Printf("Status: %s\n", a.Status)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
}
