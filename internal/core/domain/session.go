package domain

import "time"

// SessionToken is a server-side login session. The auth and logged-in cookies both carry
// its id; removing it from the store logs the browser out.
type SessionToken struct {
	ID         string
	UserID     int64
	Login      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Remember   bool
	SecureOnly bool
	// Client recorded when the session started.
	IP        string
	UserAgent string
}

// Live reports whether the session still authenticates requests at the given moment.
func (s SessionToken) Live(at time.Time) bool {
	return at.Before(s.ExpiresAt)
}

// Remaining returns the lifetime left at the given moment, zero once expired.
func (s SessionToken) Remaining(at time.Time) time.Duration {
	if !s.Live(at) {
		return 0
	}
	return s.ExpiresAt.Sub(at)
}

// CookieLifetime is the Max-Age for the session cookies. Sessions without "remember me"
// use browser-session cookies, signalled by zero.
func (s SessionToken) CookieLifetime() time.Duration {
	if !s.Remember {
		return 0
	}
	return s.ExpiresAt.Sub(s.IssuedAt)
}
