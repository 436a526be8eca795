package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Largest byte value that maps onto keyAlphabet without modulo bias.
const keyByteLimit = 256 - 256%len(keyAlphabet)

var errKeyLength = errors.New("key length must be positive")

// RandomKey returns length random alphanumeric characters. Reset and confirmation keys use
// it so they travel in URLs and mail bodies without escaping.
func RandomKey(length int) (string, error) {
	if length <= 0 {
		return "", errKeyLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= keyByteLimit {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// HashKey returns the hex SHA-256 of a key. Only this digest is ever persisted.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// KeyMatchesHash compares a presented key against a stored digest in constant time.
func KeyMatchesHash(key, storedHash string) bool {
	if key == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashKey(key)), []byte(strings.ToLower(storedHash))) == 1
}

// SiteHash derives the per-site suffix of cookie names.
func SiteHash(siteURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(strings.TrimSpace(siteURL), "/")))
	return hex.EncodeToString(sum[:16])
}
