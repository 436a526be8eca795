package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/infra/security"
)

const strongPassword = "vT8#qLz!2mWp$7Rk"

func TestDispatch_UnknownActionsFallBackToLogin(t *testing.T) {
	h := newHarness(t)
	baseline := h.dispatch(getRequest(values("action", "login"), nil))
	require.NotNil(t, baseline.View)

	for _, action := range []string{"", "bogus", "LOGIN", "../admin", "log out", "resetpass\x00"} {
		t.Run(strconv.Quote(action), func(t *testing.T) {
			resp := h.dispatch(getRequest(values("action", action), nil))
			require.NotNil(t, resp.View)
			assert.Equal(t, baseline.View.Name, resp.View.Name)
			assert.Equal(t, baseline.Status, resp.Status)
			assert.Equal(t, baseline.View.Diagnostics.Codes(), resp.View.Diagnostics.Codes())
		})
	}
}

func TestDispatch_SetsTestCookieAndHeaders(t *testing.T) {
	h := newHarness(t)
	resp := h.dispatch(getRequest(nil, nil))

	c := resp.Cookie(h.cookies().Test)
	require.NotNil(t, c)
	assert.Equal(t, testCookieValue, c.Value)
	assert.Equal(t, "SAMEORIGIN", resp.Headers.Get("X-Frame-Options"))
	assert.Contains(t, resp.Headers.Get("Cache-Control"), "no-store")
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", strongPassword, "testcookie", "1"),
		map[string]string{h.cookies().Test: testCookieValue}))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testAdminURL, resp.Location)
	assert.NotNil(t, resp.Cookie(h.cookies().Auth))
	assert.NotNil(t, resp.Cookie(h.cookies().LoggedIn))
	assert.Equal(t, 1, h.sessions.count())
}

func TestLogin_UpgradesOutdatedHash(t *testing.T) {
	h := newHarness(t)
	outdated, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	legacyHash, err := outdated.Hash(strongPassword)
	require.NoError(t, err)
	alice := h.users.add(domain.User{
		Login:        "alice",
		Email:        "alice@example.test",
		PasswordHash: legacyHash,
		Status:       domain.UserStatusActive,
		Capabilities: []string{domain.CapabilityRead, domain.CapabilityEditPosts},
	})

	resp := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", strongPassword),
		map[string]string{h.cookies().Test: testCookieValue}))

	require.True(t, resp.IsRedirect())
	upgraded := h.users.passwordHash(alice.ID)
	assert.NotEqual(t, legacyHash, upgraded)
	assert.False(t, h.hasher.NeedsRehash(upgraded))
	ok, err := h.hasher.Verify(strongPassword, upgraded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, h.users.passwordChanges)
}

func TestLogin_LoginByEmail(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(nil,
		values("log", "Alice@Example.test", "pwd", strongPassword),
		map[string]string{h.cookies().Test: testCookieValue}))

	assert.True(t, resp.IsRedirect())
}

func TestLogin_MissingTestCookie(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(nil, values("log", "alice", "pwd", strongPassword), nil))

	require.NotNil(t, resp.View)
	assert.Equal(t, "login", resp.View.Name)
	assert.True(t, resp.View.Diagnostics.Has(CodeTestCookie))
	assert.True(t, resp.View.Diagnostics.HasBlocking())
	assert.Nil(t, resp.Cookie(h.cookies().Auth))
	assert.Nil(t, resp.Cookie(h.cookies().LoggedIn))
	assert.Zero(t, h.sessions.count())
}

func TestLogin_UnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)
	jar := map[string]string{h.cookies().Test: testCookieValue}

	unknown := h.dispatch(postRequest(nil, values("log", "mallory", "pwd", strongPassword), jar))
	wrong := h.dispatch(postRequest(nil, values("log", "alice", "pwd", "not-it"), jar))

	require.NotNil(t, unknown.View)
	require.NotNil(t, wrong.View)
	assert.Equal(t, []string{CodeInvalidCredentials}, unknown.View.Diagnostics.Codes())
	assert.Equal(t, unknown.View.Diagnostics, wrong.View.Diagnostics)
	assert.Zero(t, h.sessions.count())

	require.Len(t, h.events.loginFailed, 2)
	assert.Equal(t, loginFailedUnknownUser, h.events.loginFailed[0].Reason)
	assert.Zero(t, h.events.loginFailed[0].UserID)
	assert.NotEqual(t, "mallory", h.events.loginFailed[0].MaskedLogin)
	assert.Equal(t, loginFailedIncorrectPassword, h.events.loginFailed[1].Reason)
	assert.NotZero(t, h.events.loginFailed[1].UserID)
}

func TestLogin_EmptyFields(t *testing.T) {
	h := newHarness(t)
	jar := map[string]string{h.cookies().Test: testCookieValue}

	resp := h.dispatch(postRequest(nil, values("log", "", "pwd", ""), jar))
	require.NotNil(t, resp.View)
	assert.Equal(t, []string{CodeEmptyUsername, CodeEmptyPassword}, resp.View.Diagnostics.Codes())

	resp = h.dispatch(postRequest(nil, values("log", "alice", "pwd", ""), jar))
	require.NotNil(t, resp.View)
	assert.Equal(t, []string{CodeEmptyPassword}, resp.View.Diagnostics.Codes())
}

func TestLogin_FirstPaintSuppressesEmptyFieldErrors(t *testing.T) {
	h := newHarness(t)
	jar := map[string]string{h.cookies().Test: testCookieValue}

	resp := h.dispatch(postRequest(nil, nil, jar))

	require.NotNil(t, resp.View)
	assert.Empty(t, resp.View.Diagnostics)
}

func TestLogin_RedirectTargets(t *testing.T) {
	cases := []struct {
		name     string
		redirect string
		want     string
	}{
		{name: "relative admin path kept", redirect: "/wp-admin/", want: "/wp-admin/"},
		{name: "same site absolute kept", redirect: "http://example.test/admin/edit", want: "http://example.test/admin/edit"},
		{name: "foreign host rejected", redirect: "https://evil.example/", want: testAdminURL},
		{name: "protocol relative rejected", redirect: "//evil.example/", want: testAdminURL},
		{name: "backslash trick rejected", redirect: "/\\evil.example", want: testAdminURL},
		{name: "javascript rejected", redirect: "javascript:alert(1)", want: testAdminURL},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addUser("alice", "alice@example.test", strongPassword)

			resp := h.dispatch(postRequest(nil,
				values("log", "alice", "pwd", strongPassword, "redirect_to", tc.redirect),
				map[string]string{h.cookies().Test: testCookieValue}))

			require.True(t, resp.IsRedirect())
			assert.Equal(t, tc.want, resp.Location)
		})
	}
}

func TestLogin_SubscriberLandsOnProfile(t *testing.T) {
	h := newHarness(t)
	h.addUser("sam", "sam@example.test", strongPassword, domain.CapabilityRead)

	resp := h.dispatch(postRequest(nil,
		values("log", "sam", "pwd", strongPassword),
		map[string]string{h.cookies().Test: testCookieValue}))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "http://example.test/admin/profile", resp.Location)
}

func TestLogin_UseSSLForcesSecureCookiesAndHTTPS(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	require.NoError(t, h.users.SetOption(context.Background(), alice.ID, domain.OptionUseSSL, "1"))

	resp := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", strongPassword),
		map[string]string{h.cookies().Test: testCookieValue}))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "https://example.test/admin/", resp.Location)
	require.NotNil(t, resp.Cookie(h.cookies().Auth))
	assert.True(t, resp.Cookie(h.cookies().Auth).Secure)
	assert.True(t, resp.Cookie(h.cookies().LoggedIn).Secure)
}

func TestLogin_RememberMe(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", strongPassword, "rememberme", "forever"),
		map[string]string{h.cookies().Test: testCookieValue}))

	c := resp.Cookie(h.cookies().LoggedIn)
	require.NotNil(t, c)
	assert.Positive(t, c.MaxAge)
}

func TestLogin_InterimRendersSuccess(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", strongPassword, "interim-login", "1"),
		map[string]string{h.cookies().Test: testCookieValue}))

	require.NotNil(t, resp.View)
	assert.Equal(t, "interim_login_success", resp.View.Name)
	assert.Empty(t, resp.Headers.Get("X-Frame-Options"))
	assert.NotNil(t, resp.Cookie(h.cookies().LoggedIn))
}

func TestLogin_SignedInVisitorIsRedirected(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	jar, _ := h.login(alice)

	resp := h.dispatch(getRequest(nil, jar))
	require.True(t, resp.IsRedirect())
	assert.Equal(t, testAdminURL, resp.Location)

	reauth := h.dispatch(getRequest(values("reauth", "1"), jar))
	require.NotNil(t, reauth.View)
	assert.Equal(t, "login", reauth.View.Name)
	assert.Equal(t, -1, reauth.Cookie(h.cookies().LoggedIn).MaxAge)
	assert.Zero(t, h.sessions.count())
}

func TestLogin_QueryNotices(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("loggedout", "true"), nil))
	require.NotNil(t, resp.View)
	blocking, info := resp.View.Diagnostics.Split()
	assert.Empty(t, blocking)
	require.Len(t, info, 1)
	assert.Equal(t, "loggedout", info[0].Code)

	resp = h.dispatch(getRequest(values("registration", "disabled"), nil))
	assert.True(t, resp.View.Diagnostics.Has("registerdisabled"))

	resp = h.dispatch(getRequest(values("checkemail", "confirm"), nil))
	assert.True(t, resp.View.Diagnostics.Has("confirm"))
}

func TestLogin_LanguageSwitcher(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("wp_lang", "de_DE"), nil))
	c := resp.Cookie(h.cookies().Language)
	require.NotNil(t, c)
	assert.Equal(t, "de_DE", c.Value)

	resp = h.dispatch(getRequest(values("wp_lang", "xx_XX"), nil))
	assert.Nil(t, resp.Cookie(h.cookies().Language))
}

func TestLogout_RequiresNonce(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	jar, _ := h.login(alice)

	resp := h.dispatch(getRequest(values("action", "logout", "_wpnonce", "forged"), jar))

	require.NotNil(t, resp.View)
	assert.Equal(t, "logout_confirm", resp.View.Name)
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, 1, h.sessions.count())
	assert.Nil(t, resp.Cookie(h.cookies().LoggedIn))
}

func TestLogout_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	jar, session := h.login(alice)
	nonce := h.dispatcher.LogoutNonce(*session)

	first := h.dispatch(getRequest(values("action", "logout", "_wpnonce", nonce), jar))
	require.True(t, first.IsRedirect())
	assert.Equal(t, testLoginURL+"?loggedout=true", first.Location)
	assert.Equal(t, -1, first.Cookie(h.cookies().LoggedIn).MaxAge)
	assert.Zero(t, h.sessions.count())

	// The browser replays the stale cookies; the session is gone, so there is nothing to protect.
	second := h.dispatch(getRequest(values("action", "logout", "_wpnonce", nonce), jar))
	require.True(t, second.IsRedirect())
	assert.Equal(t, testLoginURL+"?loggedout=true", second.Location)
	assert.Equal(t, -1, second.Cookie(h.cookies().Auth).MaxAge)

	third := h.dispatch(getRequest(values("action", "logout"), nil))
	assert.True(t, third.IsRedirect())
	assert.Zero(t, h.sessions.count())
}

func TestLogout_HonoursSafeRedirect(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	jar, session := h.login(alice)
	nonce := h.dispatcher.LogoutNonce(*session)

	resp := h.dispatch(getRequest(values("action", "logout", "_wpnonce", nonce, "redirect_to", "https://evil.example/"), jar))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?loggedout=true", resp.Location)
}

func TestLostPassword_IssuesKeyAndRedirects(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(values("action", "lostpassword"), values("user_login", "alice"), nil))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?checkemail=confirm", resp.Location)
	assert.True(t, h.keys.has(alice.ID))
	require.Len(t, h.notifier.sent, 1)
	sent := h.notifier.sent[0]
	assert.Equal(t, "alice", sent.Login)
	assert.False(t, sent.NewAccount)
	assert.Contains(t, sent.ResetURL, "action=rp")
	assert.Contains(t, sent.ResetURL, "key="+url.QueryEscape(sent.Key))
	require.Len(t, h.events.resetRequested, 1)
	assert.Equal(t, "ali***@example.test", h.events.resetRequested[0].MaskedDestination)
}

func TestLostPassword_RetrievePasswordAlias(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(values("action", "retrievepassword"), values("user_login", "alice@example.test"), nil))

	require.True(t, resp.IsRedirect())
	assert.True(t, h.keys.has(alice.ID))
}

func TestLostPassword_UnknownAccountLooksLikeSuccess(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(postRequest(values("action", "lostpassword"), values("user_login", "nobody"), nil))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?checkemail=confirm", resp.Location)
	assert.Empty(t, h.notifier.sent)
}

func TestLostPassword_EmptyIdentifier(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(postRequest(values("action", "lostpassword"), values("user_login", " "), nil))

	require.NotNil(t, resp.View)
	assert.Equal(t, "lostpassword", resp.View.Name)
	assert.Equal(t, []string{CodeEmptyUsername}, resp.View.Diagnostics.Codes())
}

func TestLostPassword_MailFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)
	h.notifier.err = errors.New("smtp down")

	resp := h.dispatch(postRequest(values("action", "lostpassword"), values("user_login", "alice"), nil))

	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has("retrieve_password_email_failure"))
}

func TestLostPassword_ErrorQueryMessages(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("action", "lostpassword", "error", "expiredkey"), nil))
	require.NotNil(t, resp.View)
	assert.Equal(t, []string{"expiredkey"}, resp.View.Diagnostics.Codes())

	resp = h.dispatch(getRequest(values("action", "lostpassword", "error", "invalidkey"), nil))
	assert.Equal(t, []string{"invalidkey"}, resp.View.Diagnostics.Codes())
}

func TestLostPassword_HookCanBlock(t *testing.T) {
	h := newHarness(t, withHooks(Hooks{
		LostPasswordErrors: func(identifier string) domain.Diagnostics {
			return domain.Diagnostics{domain.Blocking{Code: "captcha", Message: "Solve the captcha."}}
		},
	}))
	alice := h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(values("action", "lostpassword"), values("user_login", "alice"), nil))

	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has("captcha"))
	assert.False(t, h.keys.has(alice.ID))
}

func TestResetPass_QueryKeyMovesIntoCookie(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("action", "resetpass", "key", "abc", "login", "alice"), nil))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?action=resetpass", resp.Location)
	c := resp.Cookie(h.cookies().Reset)
	require.NotNil(t, c)
	assert.Equal(t, "alice:abc", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/login", c.Path)
}

func TestResetPass_QueryWinsOverExistingCookie(t *testing.T) {
	h := newHarness(t)
	jar := map[string]string{h.cookies().Reset: "bob:old"}

	resp := h.dispatch(getRequest(values("action", "rp", "key", "new", "login", "alice"), jar))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "alice:new", resp.Cookie(h.cookies().Reset).Value)
	assert.Equal(t, testLoginURL+"?action=rp", resp.Location)
}

func (h *harness) resetJar(login, key string) map[string]string {
	return map[string]string{
		h.cookies().Test:  testCookieValue,
		h.cookies().Reset: domain.PendingReset{Login: login, Key: key}.CookieValue(),
	}
}

func TestResetPass_RendersFormForValidCookie(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)

	resp := h.dispatch(getRequest(values("action", "resetpass"), h.resetJar("alice", key)))

	require.NotNil(t, resp.View)
	assert.Equal(t, "resetpass", resp.View.Name)
	assert.Equal(t, key, resp.View.Fields["rp_key"])
	assert.Equal(t, "alice", resp.View.Fields["user_login"])
}

func TestResetPass_MissingOrBadCookie(t *testing.T) {
	h := newHarness(t)
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(getRequest(values("action", "resetpass"), nil))
	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?action=lostpassword&error=invalidkey", resp.Location)

	resp = h.dispatch(getRequest(values("action", "resetpass"), h.resetJar("alice", "guess")))
	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?action=lostpassword&error=invalidkey", resp.Location)
	assert.Equal(t, -1, resp.Cookie(h.cookies().Reset).MaxAge)
}

func TestResetPass_ExpiredKey(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)
	h.now = h.now.Add(25 * time.Hour)

	resp := h.dispatch(getRequest(values("action", "resetpass"), h.resetJar("alice", key)))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?action=lostpassword&error=expiredkey", resp.Location)
}

func TestResetPass_MismatchedPasswords(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)
	before := h.users.passwordHash(alice.ID)

	resp := h.dispatch(postRequest(values("action", "resetpass"),
		values("pass1", "Zx9!mQ2#pL7@wR4$", "pass2", "something-else", "rp_key", key),
		h.resetJar("alice", key)))

	require.NotNil(t, resp.View)
	assert.Equal(t, "resetpass", resp.View.Name)
	assert.True(t, resp.View.Diagnostics.Has(CodePasswordMismatch))
	assert.Equal(t, before, h.users.passwordHash(alice.ID))
	assert.Zero(t, h.users.passwordChanges)
	assert.True(t, h.keys.has(alice.ID))
}

func TestResetPass_WeakPasswordNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)

	resp := h.dispatch(postRequest(values("action", "resetpass"),
		values("pass1", "password", "pass2", "password", "rp_key", key),
		h.resetJar("alice", key)))
	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has(CodePasswordWeak))
	assert.Zero(t, h.users.passwordChanges)

	resp = h.dispatch(postRequest(values("action", "resetpass"),
		values("pass1", "password", "pass2", "password", "rp_key", key, "pw_weak", "on"),
		h.resetJar("alice", key)))
	require.NotNil(t, resp.View)
	assert.Equal(t, "resetpass_done", resp.View.Name)
	assert.Equal(t, 1, h.users.passwordChanges)
}

func TestResetPass_LeadingSpaceRejected(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)

	resp := h.dispatch(postRequest(values("action", "resetpass"),
		values("pass1", " Zx9!mQ2#pL7@wR4$", "pass2", " Zx9!mQ2#pL7@wR4$", "rp_key", key),
		h.resetJar("alice", key)))

	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has(CodePasswordEmptySpace))
}

func TestResetPass_RpKeyMustMatchCookie(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)

	resp := h.dispatch(postRequest(values("action", "resetpass"),
		values("pass1", "Zx9!mQ2#pL7@wR4$", "pass2", "Zx9!mQ2#pL7@wR4$", "rp_key", "other"),
		h.resetJar("alice", key)))

	require.True(t, resp.IsRedirect())
	assert.Contains(t, resp.Location, "error=invalidkey")
	assert.Zero(t, h.users.passwordChanges)
}

func TestResetPass_SuccessThenReplay(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	h.login(alice)
	key, err := h.resetKeys.Issue(context.Background(), alice)
	require.NoError(t, err)
	const newPassword = "Zx9!mQ2#pL7@wR4$"

	submit := func() *Response {
		return h.dispatch(postRequest(values("action", "resetpass"),
			values("pass1", newPassword, "pass2", newPassword, "rp_key", key),
			h.resetJar("alice", key)))
	}

	resp := submit()
	require.NotNil(t, resp.View)
	assert.Equal(t, "resetpass_done", resp.View.Name)
	assert.Equal(t, -1, resp.Cookie(h.cookies().Reset).MaxAge)
	assert.False(t, h.keys.has(alice.ID))
	assert.Zero(t, h.sessions.count(), "password reset ends existing sessions")
	require.Len(t, h.events.passwordChanged, 1)
	assert.Equal(t, 1, h.events.passwordChanged[0].SessionsRevoked)

	ok, err := h.hasher.Verify(newPassword, h.users.passwordHash(alice.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	hashAfterReset := h.users.passwordHash(alice.ID)

	replay := submit()
	require.True(t, replay.IsRedirect())
	assert.Equal(t, testLoginURL+"?action=lostpassword&error=invalidkey", replay.Location)
	assert.Equal(t, hashAfterReset, h.users.passwordHash(alice.ID))
	assert.Equal(t, 1, h.users.passwordChanges)

	login := h.dispatch(postRequest(nil,
		values("log", "alice", "pwd", newPassword),
		map[string]string{h.cookies().Test: testCookieValue}))
	assert.True(t, login.IsRedirect())
}

func TestRegister_Disabled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.options.Set(context.Background(), port.SiteOptionUsersCanRegister, "0"))

	resp := h.dispatch(postRequest(values("action", "register"),
		values("user_login", "carol", "user_email", "carol@example.test"), nil))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?registration=disabled", resp.Location)
	assert.Zero(t, h.users.count())
}

func TestRegister_CreatesUserAndMailsSetPasswordLink(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.options.Set(context.Background(), port.SiteOptionUsersCanRegister, "1"))

	resp := h.dispatch(postRequest(values("action", "register"),
		values("user_login", "carol", "user_email", "carol@example.test"),
		map[string]string{h.cookies().Language: "de_DE"}))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL+"?checkemail=registered", resp.Location)

	carol, err := h.users.FindByLogin(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, "de_DE", carol.Locale)
	assert.Equal(t, []string{domain.CapabilityRead}, carol.Capabilities)
	assert.True(t, h.keys.has(carol.ID))
	require.Len(t, h.notifier.sent, 1)
	assert.True(t, h.notifier.sent[0].NewAccount)
	require.Len(t, h.events.registered, 1)
	assert.Equal(t, carol.ID, h.events.registered[0].UserID)
}

func TestRegister_ValidationErrors(t *testing.T) {
	h := newHarness(t, withSettings(func(s *config.LoginSettings) { s.UsersCanRegister = true }))
	h.addUser("alice", "alice@example.test", strongPassword)

	resp := h.dispatch(postRequest(values("action", "register"),
		values("user_login", "alice", "user_email", "ALICE@example.test"), nil))
	require.NotNil(t, resp.View)
	assert.Equal(t, "register", resp.View.Name)
	assert.Equal(t, []string{domain.CodeUsernameExists, domain.CodeEmailExists}, resp.View.Diagnostics.Codes())

	resp = h.dispatch(postRequest(values("action", "register"),
		values("user_login", "", "user_email", "not-an-email"), nil))
	assert.Equal(t, []string{domain.CodeEmptyUsername, domain.CodeInvalidEmail}, resp.View.Diagnostics.Codes())
	assert.Equal(t, 1, h.users.count())
}

func TestRegister_HookErrorsBlockCreation(t *testing.T) {
	h := newHarness(t,
		withSettings(func(s *config.LoginSettings) { s.UsersCanRegister = true }),
		withHooks(Hooks{RegistrationErrors: func(login, email string) domain.Diagnostics {
			return domain.Diagnostics{domain.Blocking{Code: "banned_domain", Message: "Registrations from this domain are closed."}}
		}}),
	)

	resp := h.dispatch(postRequest(values("action", "register"),
		values("user_login", "carol", "user_email", "carol@example.test"), nil))

	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has("banned_domain"))
	assert.Zero(t, h.users.count())
}

func TestConfirmAdminEmail_Unauthenticated(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("action", "confirm_admin_email"), nil))

	require.True(t, resp.IsRedirect())
	assert.Contains(t, resp.Location, testLoginURL+"?redirect_to=")
}

func TestConfirmAdminEmail_Unauthorized(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser("alice", "alice@example.test", strongPassword)
	jar, _ := h.login(alice)

	resp := h.dispatch(getRequest(values("action", "confirm_admin_email"), jar))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, testLoginURL, resp.Location)
}

func TestConfirmAdminEmail_ConfirmAndRemind(t *testing.T) {
	h := newHarness(t)
	admin := h.addUser("admin", "admin@example.test", strongPassword,
		domain.CapabilityRead, domain.CapabilityEditPosts, domain.CapabilityManageOptions)
	jar, session := h.login(admin)
	ctx := context.Background()
	require.NoError(t, h.options.Set(ctx, port.SiteOptionAdminEmail, "admin@example.test"))

	view := h.dispatch(getRequest(values("action", "confirm_admin_email"), jar))
	require.NotNil(t, view.View)
	assert.Equal(t, "confirm_admin_email", view.View.Name)
	assert.Equal(t, "admin@example.test", view.View.Fields["admin_email"])

	confirm, remind := h.dispatcher.AdminEmailNonces(*session)

	forged := h.dispatch(postRequest(values("action", "confirm_admin_email"),
		values("correct-admin-email", "1", "_wpnonce", remind), jar))
	assert.Equal(t, http.StatusForbidden, forged.Status)
	_, set, _ := h.options.Get(ctx, port.SiteOptionAdminEmailLifespan)
	assert.False(t, set)

	resp := h.dispatch(postRequest(values("action", "confirm_admin_email"),
		values("correct-admin-email", "1", "_wpnonce", confirm), jar))
	require.True(t, resp.IsRedirect())
	assert.Equal(t, testAdminURL, resp.Location)
	lifespan, _, _ := h.options.Get(ctx, port.SiteOptionAdminEmailLifespan)
	assert.Equal(t, strconv.FormatInt(h.now.Add(defaultAdminEmailLifespan).Unix(), 10), lifespan)

	resp = h.dispatch(postRequest(values("action", "confirm_admin_email"),
		values("remind_me_later", "1", "_wpnonce", remind), jar))
	require.True(t, resp.IsRedirect())
	lifespan, _, _ = h.options.Get(ctx, port.SiteOptionAdminEmailLifespan)
	assert.Equal(t, strconv.FormatInt(h.now.Add(defaultAdminEmailRemindIn).Unix(), 10), lifespan)
}

func TestCheckEmail(t *testing.T) {
	h := newHarness(t)

	resp := h.dispatch(getRequest(values("action", "checkemail", "checkemail", "registered"), nil))

	require.NotNil(t, resp.View)
	assert.Equal(t, "checkemail", resp.View.Name)
	assert.Equal(t, []string{"registered"}, resp.View.Diagnostics.Codes())
	assert.False(t, resp.View.Diagnostics.HasBlocking())
}

func TestConfirmAction_MissingParametersAreFatal(t *testing.T) {
	h := newHarness(t)

	for _, query := range []url.Values{
		values("action", "confirmaction"),
		values("action", "confirmaction", "request_id", "7"),
		values("action", "confirmaction", "confirm_key", "k"),
		values("action", "confirmaction", "request_id", "seven", "confirm_key", "k"),
	} {
		_, err := h.dispatcher.Dispatch(context.Background(), getRequest(query, nil))
		require.ErrorIs(t, err, ErrFatalRequest, query.Encode())

		var fatal *FatalRequestError
		require.True(t, errors.As(err, &fatal))
		assert.Equal(t, http.StatusBadRequest, fatal.Status)
	}
}

func TestConfirmAction_ConfirmsRequest(t *testing.T) {
	var confirmed []domain.UserRequest
	h := newHarness(t, withHooks(Hooks{
		UserRequestConfirmed: func(_ context.Context, req domain.UserRequest) {
			confirmed = append(confirmed, req)
		},
	}))
	h.requests.requests[7] = &domain.UserRequest{
		ID:             7,
		Email:          "alice@example.test",
		Action:         "export_personal_data",
		ConfirmKeyHash: security.HashKey("confirm-me"),
		Status:         domain.UserRequestPending,
		CreatedAt:      h.now.Add(-time.Hour),
	}

	_, err := h.dispatcher.Dispatch(context.Background(),
		getRequest(values("action", "confirmaction", "request_id", "7", "confirm_key", "wrong"), nil))
	require.ErrorIs(t, err, ErrFatalRequest)
	assert.Empty(t, confirmed)

	resp := h.dispatch(getRequest(values("action", "confirmaction", "request_id", "7", "confirm_key", "confirm-me"), nil))
	require.NotNil(t, resp.View)
	assert.Equal(t, "confirmaction", resp.View.Name)
	assert.Equal(t, domain.UserRequestConfirmed, h.requests.requests[7].Status)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "export_personal_data", confirmed[0].Action)
	require.Len(t, h.events.confirmed, 1)
	assert.Equal(t, int64(7), h.events.confirmed[0].RequestID)

	h.dispatch(getRequest(values("action", "confirmaction", "request_id", "7", "confirm_key", "confirm-me"), nil))
	assert.Len(t, h.events.confirmed, 1, "repeat confirmation must not publish again")
}

func TestPostPassword_SetsHashedCookie(t *testing.T) {
	h := newHarness(t)
	req := NewRequest(RequestInput{
		Method:  http.MethodPost,
		Path:    "/login",
		Query:   values("action", "postpass"),
		Form:    values("post_password", "open sesame"),
		Referer: "http://example.test/protected-post/",
	})

	resp := h.dispatch(req)

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "http://example.test/protected-post/", resp.Location)
	c := resp.Cookie(h.cookies().PostPass)
	require.NotNil(t, c)
	assert.NotEqual(t, "open sesame", c.Value)
	ok, err := h.hasher.Verify("open sesame", c.Value)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int((240 * time.Hour).Seconds()), c.MaxAge)
}

func TestPostPassword_ForeignRefererIgnored(t *testing.T) {
	h := newHarness(t)
	req := NewRequest(RequestInput{
		Method:  http.MethodPost,
		Query:   values("action", "postpass"),
		Form:    values("post_password", "x"),
		Referer: "https://evil.example/",
	})

	resp := h.dispatch(req)

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "http://example.test/", resp.Location)
}

func TestRecoveryMode(t *testing.T) {
	h := newHarness(t)
	resp := h.dispatch(getRequest(values("action", "enter_recovery_mode", "rm_token", "t", "rm_key", "k"), nil))
	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has("recovery_mode_disabled"))

	h = newHarness(t, withHooks(Hooks{RecoveryMode: func(_ context.Context, token, key string) error {
		if token == "t" && key == "k" {
			return nil
		}
		return errors.New("bad link")
	}}))

	resp = h.dispatch(getRequest(values("action", "enter_recovery_mode", "rm_token", "t", "rm_key", "nope"), nil))
	require.NotNil(t, resp.View)
	assert.True(t, resp.View.Diagnostics.Has("recovery_mode_invalid"))

	resp = h.dispatch(getRequest(values("action", "enter_recovery_mode", "rm_token", "t", "rm_key", "k"), nil))
	require.True(t, resp.IsRedirect())
	assert.NotNil(t, resp.Cookie(h.cookies().RecoveryMode))
	assert.Contains(t, resp.Location, testLoginURL+"?redirect_to=")
}

func TestDispatch_ForceSSLAdminUpgradesPlainRequests(t *testing.T) {
	h := newHarness(t, withSettings(func(s *config.LoginSettings) { s.ForceSSLAdmin = true }))

	resp := h.dispatch(getRequest(values("action", "lostpassword"), nil))

	require.True(t, resp.IsRedirect())
	assert.Equal(t, "https://example.test/login?action=lostpassword", resp.Location)
}

type observerFunc func(action, outcome string, elapsed time.Duration)

func (f observerFunc) ObserveDispatch(action, outcome string, elapsed time.Duration) {
	f(action, outcome, elapsed)
}

func TestDispatch_ReportsOutcome(t *testing.T) {
	h := newHarness(t)
	var got []string
	h.dispatcher.observer = observerFunc(func(action, outcome string, _ time.Duration) {
		got = append(got, action+":"+outcome)
	})

	h.dispatch(getRequest(nil, nil))
	h.dispatch(getRequest(values("action", "rp", "key", "k", "login", "alice"), nil))
	_, _ = h.dispatcher.Dispatch(context.Background(), getRequest(values("action", "confirmaction"), nil))

	assert.Equal(t, []string{"login:render", "resetpass:redirect", "confirmaction:fatal"}, got)
}
