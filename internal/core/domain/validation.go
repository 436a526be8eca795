package domain

import (
	"regexp"
	"strings"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// ValidationError carries one or more field-level reasons a record was rejected.
type ValidationError struct {
	Fields []FieldError
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	codes := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		codes = append(codes, f.Code)
	}
	return "validation failed: " + strings.Join(codes, ", ")
}

// Add records a field failure.
func (e *ValidationError) Add(field, code, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
}

// Empty reports whether no failures were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Diagnostics converts the field failures into blocking diagnostics.
func (e *ValidationError) Diagnostics() Diagnostics {
	if e == nil {
		return nil
	}
	out := make(Diagnostics, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, Blocking{Code: f.Code, Message: f.Message})
	}
	return out
}

// Field reasons reported when an account cannot be created.
const (
	CodeEmptyUsername   = "empty_username"
	CodeInvalidUsername = "invalid_username"
	CodeUsernameExists  = "username_exists"
	CodeEmptyEmail      = "empty_email"
	CodeInvalidEmail    = "invalid_email"
	CodeEmailExists     = "email_exists"
)

const maxLoginLength = 60

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z0-9 _.\-@]+$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateNewAccount checks the format of a login/email pair. It never consults storage, so
// username_exists and email_exists are left to the store.
func ValidateNewAccount(login, email string) *ValidationError {
	verr := &ValidationError{}

	login = strings.TrimSpace(login)
	switch {
	case login == "":
		verr.Add("user_login", CodeEmptyUsername, "Please enter a username.")
	case len(login) > maxLoginLength || !loginPattern.MatchString(login):
		verr.Add("user_login", CodeInvalidUsername, "This username is invalid because it uses illegal characters. Please enter a valid username.")
	}

	email = strings.TrimSpace(email)
	switch {
	case email == "":
		verr.Add("user_email", CodeEmptyEmail, "Please type your email address.")
	case !emailPattern.MatchString(email):
		verr.Add("user_email", CodeInvalidEmail, "The email address is not correct.")
	}

	if verr.Empty() {
		return nil
	}
	return verr
}
