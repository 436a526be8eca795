package domain

import (
	"strings"
	"time"
)

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusActive UserStatus = "active"
)

// Per-user option keys read by the login flows.
const (
	OptionUseSSL = "use_ssl"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           int64
	Login        string
	Email        string
	PasswordHash string
	Status       UserStatus
	Locale       string
	Capabilities []string
	Options      map[string]string
	RegisteredAt time.Time
}

// HasCapability reports whether the user holds the capability token.
func (u User) HasCapability(capability string) bool {
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Option returns the per-user option value, or "" when unset.
func (u User) Option(key string) string {
	if u.Options == nil {
		return ""
	}
	return u.Options[key]
}

// UsesSSL reports whether the user asked for secure-only cookies.
func (u User) UsesSSL() bool {
	switch strings.ToLower(strings.TrimSpace(u.Option(OptionUseSSL))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// PasswordContext carries user attributes the strength checker treats as guessable inputs.
type PasswordContext struct {
	Login string
	Email string
}
