package registration

// Field identifies the registration input a FieldError refers to
type Field string

const (
	FieldName       Field = "name"
	FieldNickname   Field = "nickname"
	FieldIdentifier Field = "identifier"
	FieldEmail      Field = "email"
	FieldPassword   Field = "password"
)

// FieldError is a validation failure tied to a single input field.
// Message is safe to show to the caller.
type FieldError struct {
	Field   Field
	Message string
}

func (e *FieldError) Error() string {
	return string(e.Field) + ": " + e.Message
}

func fieldError(field Field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}
