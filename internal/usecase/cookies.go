package usecase

import (
	"net/http"
	"time"

	"github.com/arklim/social-platform-login/internal/infra/security"
)

const (
	testCookieValue    = "login cookie check"
	languageCookieTTL  = 365 * 24 * time.Hour
	languageCookieName = "login_language"
	testCookieName     = "login_test_cookie"
)

// CookieNames lists the cookies of one site. Site-bound names carry a hash of the site URL so
// two sites on one domain do not collide.
type CookieNames struct {
	Test         string
	Language     string
	PostPass     string
	Reset        string
	Auth         string
	LoggedIn     string
	RecoveryMode string
}

// NewCookieNames derives the cookie names for siteURL.
func NewCookieNames(siteURL string) CookieNames {
	hash := security.SiteHash(siteURL)
	return CookieNames{
		Test:         testCookieName,
		Language:     languageCookieName,
		PostPass:     "postpass_" + hash,
		Reset:        "resetpass-" + hash,
		Auth:         "auth_" + hash,
		LoggedIn:     "logged_in_" + hash,
		RecoveryMode: "recovery_mode_" + hash,
	}
}

func newCookie(name, value, path string, secure bool, ttl time.Duration, now time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.Expires = now.Add(ttl)
		c.MaxAge = int(ttl / time.Second)
	}
	return c
}

func expiredCookie(name, path string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	}
}
