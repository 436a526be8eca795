package usecase

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidKey indicates a reset key that does not exist, does not match or was already used.
	ErrInvalidKey = errors.New("invalid reset key")
	// ErrExpiredKey indicates a reset key older than its TTL.
	ErrExpiredKey = errors.New("expired reset key")
	// ErrAuthentication is matched by every *AuthenticationError.
	ErrAuthentication = errors.New("authentication failed")
	// ErrFatalRequest is matched by every *FatalRequestError.
	ErrFatalRequest = errors.New("fatal request")
	// ErrNoSession indicates the request carries no usable session cookie.
	ErrNoSession = errors.New("no active session")
)

// Authentication failure codes. An unknown login and a wrong password share
// CodeInvalidCredentials so the response does not reveal which accounts exist.
const (
	CodeEmptyUsername      = "empty_username"
	CodeEmptyPassword      = "empty_password"
	CodeInvalidCredentials = "invalid_credentials"
	CodeTestCookie         = "test_cookie"
)

// AuthenticationError is a recoverable login failure. It becomes a blocking diagnostic.
type AuthenticationError struct {
	Code    string
	Message string
}

func (e *AuthenticationError) Error() string {
	if e == nil {
		return ""
	}
	return "authentication failed: " + e.Code
}

// Is lets errors.Is(err, ErrAuthentication) match any code.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// FatalRequestError terminates the request with an error page. There is no safe action to
// fall back to.
type FatalRequestError struct {
	Status  int
	Title   string
	Message string
}

func (e *FatalRequestError) Error() string {
	if e == nil {
		return ""
	}
	return "fatal request: " + e.Message
}

func (e *FatalRequestError) Is(target error) bool {
	return target == ErrFatalRequest
}

func fatalRequest(title, message string) *FatalRequestError {
	return &FatalRequestError{Status: http.StatusBadRequest, Title: title, Message: message}
}
