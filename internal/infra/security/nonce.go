package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const nonceLength = 20

// NonceManager issues short-lived CSRF tokens bound to an action, a user and a session.
// A nonce is valid for the tick it was issued in and the following one, so its lifetime
// is between lifetime/2 and lifetime.
type NonceManager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewNonceManager constructs a manager. A non-positive lifetime defaults to 24h.
func NewNonceManager(secret []byte, lifetime time.Duration) *NonceManager {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	copied := make([]byte, len(secret))
	copy(copied, secret)
	return &NonceManager{secret: copied, lifetime: lifetime, now: time.Now}
}

// WithClock overrides the time source.
func (m *NonceManager) WithClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Create returns the nonce for the action in the current tick.
func (m *NonceManager) Create(action string, userID int64, sessionID string) string {
	return m.compute(m.tick(), action, userID, sessionID)
}

// Verify reports whether nonce was issued for the action in the current or previous tick.
func (m *NonceManager) Verify(nonce, action string, userID int64, sessionID string) bool {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return false
	}
	tick := m.tick()
	for _, candidate := range []int64{tick, tick - 1} {
		expected := m.compute(candidate, action, userID, sessionID)
		if hmac.Equal([]byte(expected), []byte(nonce)) {
			return true
		}
	}
	return false
}

func (m *NonceManager) tick() int64 {
	half := int64(m.lifetime / 2)
	now := m.now().UnixNano()
	return (now + half - 1) / half
}

func (m *NonceManager) compute(tick int64, action string, userID int64, sessionID string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))[:nonceLength]
}
