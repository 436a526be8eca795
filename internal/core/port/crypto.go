package port

import "github.com/arklim/social-platform-login/internal/core/domain"

// PasswordStrengthChecker judges new passwords. Check returns an error for a weak password;
// the reset form lets the user keep it only after confirming.
type PasswordStrengthChecker interface {
	Check(password string, pc domain.PasswordContext) error
}

// PasswordHasher hashes account passwords and protected-content passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
	// NeedsRehash reports whether a verified hash was made with outdated parameters.
	NeedsRehash(encoded string) bool
}
