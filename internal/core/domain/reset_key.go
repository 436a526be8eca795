package domain

import (
	"strings"
	"time"
)

// ResetKeyRecord is the single active password reset key of a user. Only the hash is stored.
type ResetKeyRecord struct {
	UserID   int64
	KeyHash  string
	IssuedAt time.Time
}

// ExpiresAt returns the instant the record stops validating under the given TTL.
func (r ResetKeyRecord) ExpiresAt(ttl time.Duration) time.Time {
	return r.IssuedAt.Add(ttl)
}

// IsExpired reports whether the key has elapsed its validity window at the supplied moment.
func (r ResetKeyRecord) IsExpired(at time.Time, ttl time.Duration) bool {
	return r.ExpiresAt(ttl).Before(at)
}

// PendingReset is the (login, key) pair carried by the reset cookie between the emailed
// link and the new-password form.
type PendingReset struct {
	Login string
	Key   string
}

// CookieValue encodes the pair as "login:key".
func (p PendingReset) CookieValue() string {
	return p.Login + ":" + p.Key
}

// ParsePendingReset decodes a reset cookie value. Logins may not contain ':' so the first
// separator splits the pair.
func ParsePendingReset(value string) (PendingReset, bool) {
	login, key, ok := strings.Cut(value, ":")
	if !ok || login == "" || key == "" {
		return PendingReset{}, false
	}
	return PendingReset{Login: login, Key: key}, true
}
