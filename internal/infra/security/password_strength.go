package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

const (
	defaultMinPasswordLength = 8
	defaultMinPasswordScore  = 3
	maxPasswordScore         = 4
)

// Reasons a password is reported as weak.
const (
	WeakReasonTooShort  = "too_short"
	WeakReasonUserInput = "matches_user_input"
	WeakReasonGuessable = "guessable"
)

var errStrengthCheckerMissing = errors.New("password strength checker not configured")

// WeakPasswordError is returned by StrengthChecker.Check for a password below the bar.
type WeakPasswordError struct {
	Reason string
	Score  int
}

func (e *WeakPasswordError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("weak password: %s (score %d)", e.Reason, e.Score)
}

// StrengthChecker rates new passwords with zxcvbn. The user's login and email, plus any
// site-wide words, are fed in as guessable inputs.
type StrengthChecker struct {
	minLength  int
	minScore   int
	siteInputs []string
}

// StrengthOption customises a StrengthChecker.
type StrengthOption func(*StrengthChecker)

// WithMinLength sets the shortest acceptable password, counted in runes.
func WithMinLength(n int) StrengthOption {
	return func(c *StrengthChecker) {
		if n > 0 {
			c.minLength = n
		}
	}
}

// WithMinScore sets the lowest acceptable zxcvbn score. Zero disables the score check.
func WithMinScore(score int) StrengthOption {
	return func(c *StrengthChecker) {
		switch {
		case score < 0:
			c.minScore = 0
		case score > maxPasswordScore:
			c.minScore = maxPasswordScore
		default:
			c.minScore = score
		}
	}
}

// WithSiteInputs adds words such as the site name that make a password guessable on
// this site.
func WithSiteInputs(inputs ...string) StrengthOption {
	return func(c *StrengthChecker) {
		for _, in := range inputs {
			if in = strings.TrimSpace(in); in != "" {
				c.siteInputs = append(c.siteInputs, in)
			}
		}
	}
}

// NewStrengthChecker builds a checker requiring eight characters and a score of three
// unless overridden.
func NewStrengthChecker(opts ...StrengthOption) *StrengthChecker {
	c := &StrengthChecker{minLength: defaultMinPasswordLength, minScore: defaultMinPasswordScore}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score returns the zxcvbn score (0-4) of the password for the given user.
func (c *StrengthChecker) Score(password string, pc domain.PasswordContext) int {
	if password == "" {
		return 0
	}
	return zxcvbn.PasswordStrength(password, c.inputs(pc)).Score
}

// Check returns a *WeakPasswordError when the password is too short, equals one of the
// user's own identifiers or scores below the minimum.
func (c *StrengthChecker) Check(password string, pc domain.PasswordContext) error {
	if c == nil {
		return errStrengthCheckerMissing
	}

	if utf8.RuneCountInString(password) < c.minLength {
		return &WeakPasswordError{Reason: WeakReasonTooShort}
	}

	inputs := c.inputs(pc)
	for _, in := range inputs {
		if strings.EqualFold(password, in) {
			return &WeakPasswordError{Reason: WeakReasonUserInput}
		}
	}

	if c.minScore == 0 {
		return nil
	}
	score := zxcvbn.PasswordStrength(password, inputs).Score
	if score < c.minScore {
		return &WeakPasswordError{Reason: WeakReasonGuessable, Score: score}
	}
	return nil
}

func (c *StrengthChecker) inputs(pc domain.PasswordContext) []string {
	inputs := make([]string, 0, len(c.siteInputs)+3)
	inputs = append(inputs, c.siteInputs...)
	if login := strings.TrimSpace(pc.Login); login != "" {
		inputs = append(inputs, login)
	}
	if email := strings.TrimSpace(pc.Email); email != "" {
		inputs = append(inputs, email)
		if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
			inputs = append(inputs, local)
		}
	}
	return inputs
}
