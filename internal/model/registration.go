package model

// RegistrationInput holds raw, unvalidated registration fields as received
type RegistrationInput struct {
	Name       string
	Nickname   string
	Identifier string
	Email      string
	Password   string
}

// CleanRegistration is a registration that has passed validation.
// Values are only produced by the registration validator; the zero value is
// never valid and fields are read-only.
type CleanRegistration struct {
	name       string
	nickname   string
	identifier string
	email      string
	password   string
}

// NewCleanRegistration builds a CleanRegistration from already-validated values.
// Callers outside the registration validator should not use this.
func NewCleanRegistration(name, nickname, identifier, email, password string) CleanRegistration {
	return CleanRegistration{
		name:       name,
		nickname:   nickname,
		identifier: identifier,
		email:      email,
		password:   password,
	}
}

func (r CleanRegistration) Name() string       { return r.name }
func (r CleanRegistration) Nickname() string   { return r.nickname }
func (r CleanRegistration) Identifier() string { return r.identifier }
func (r CleanRegistration) Email() string      { return r.email }

// Password returns the plaintext password. It must only be passed to the hasher.
func (r CleanRegistration) Password() string { return r.password }

// IsZero reports whether r was never populated
func (r CleanRegistration) IsZero() bool {
	return r == CleanRegistration{}
}
