package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/infra/logger"
	"github.com/arklim/social-platform-login/internal/repository"
)

const (
	loginFailedUnknownUser       = "unknown_user"
	loginFailedIncorrectPassword = "incorrect_password"
)

// login authenticates a POSTed form or renders the login form.
func (d *Dispatcher) login(ctx context.Context, req *Request, resp *Response) error {
	interim := req.Param("interim-login") != ""
	reauth := req.Param("reauth") != ""
	requested := strings.TrimSpace(req.Param("redirect_to"))

	var diags domain.Diagnostics

	if req.IsPost() {
		user, err := d.authenticate(ctx, req)
		if err == nil {
			return d.completeLogin(ctx, req, resp, user, requested, interim)
		}
		var authErr *AuthenticationError
		if !errors.As(err, &authErr) {
			return err
		}
		diags = d.authenticationDiagnostics(req, err)
	} else if !reauth && !interim {
		// A visitor who is already signed in goes straight to the destination.
		if session, err := d.sessions.Current(ctx, req); err == nil {
			if user, err := d.users.FindByID(ctx, session.UserID); err == nil {
				resp.redirect(d.loginDestination(user, requested, session.SecureOnly))
				return nil
			}
		}
	}

	if reauth {
		resp.SetCookie(d.sessions.Clear(ctx, req)...)
	}

	diags = append(d.loginMessages(req, interim), diags...)

	resp.render(View{
		Name:        "login",
		Title:       "Log In",
		Diagnostics: diags,
		Fields: map[string]string{
			"user_login":    strings.TrimSpace(req.Form("log")),
			"redirect_to":   requested,
			"rememberme":    boolField(req.Form("rememberme") != ""),
			"interim-login": boolField(interim),
			"reauth":        boolField(reauth),
			"testcookie":    "1",
		},
	})
	return nil
}

// authenticate checks the test cookie first, then the credentials. Credential failures are
// *AuthenticationError values, joined when both fields are empty.
func (d *Dispatcher) authenticate(ctx context.Context, req *Request) (*domain.User, error) {
	if _, ok := req.Cookie(d.names.Test); !ok {
		return nil, &AuthenticationError{
			Code:    CodeTestCookie,
			Message: "Cookies are blocked or not supported by your browser. You must enable cookies to log in.",
		}
	}

	login := strings.TrimSpace(req.Form("log"))
	password := req.Form("pwd")

	var missing []error
	if login == "" {
		missing = append(missing, &AuthenticationError{Code: CodeEmptyUsername, Message: "The username field is empty."})
	}
	if password == "" {
		missing = append(missing, &AuthenticationError{Code: CodeEmptyPassword, Message: "The password field is empty."})
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	user, err := d.findUser(ctx, login)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		_, _ = d.hasher.Verify(password, d.dummyHash)
		d.log(ctx).Info("login failed", zap.String("login", logger.MaskIdentifier(login)), zap.String("reason", loginFailedUnknownUser))
		d.publishLoginFailed(ctx, req, login, 0, loginFailedUnknownUser)
		return nil, invalidCredentials()
	}

	ok, err := d.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		// Unusable hashes (e.g. accounts that never set a password) fail like a wrong password.
		d.log(ctx).Warn("verify password failed", zap.Int64("user_id", user.ID), zap.Error(err))
		ok = false
	}
	if !ok {
		d.log(ctx).Info("login failed", zap.Int64("user_id", user.ID), zap.String("reason", loginFailedIncorrectPassword))
		d.publishLoginFailed(ctx, req, login, user.ID, loginFailedIncorrectPassword)
		return nil, invalidCredentials()
	}

	d.upgradeHash(ctx, user, password)
	return user, nil
}

func (d *Dispatcher) publishLoginFailed(ctx context.Context, req *Request, login string, userID int64, reason string) {
	if d.events == nil {
		return
	}
	event := domain.LoginFailedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		MaskedLogin: logger.MaskIdentifier(login),
		Reason:      reason,
		FailedAt:    d.now().UTC(),
		IPAddress:   stringPtrOrNil(req.ClientIP()),
	}
	if err := d.events.PublishLoginFailed(ctx, event); err != nil {
		d.log(ctx).Warn("publish login failed event failed", zap.Error(err))
	}
}

// upgradeHash re-hashes a verified password made with outdated parameters. Failures only
// cost the upgrade, never the login.
func (d *Dispatcher) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !d.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	fresh, err := d.hasher.Hash(password)
	if err != nil {
		d.log(ctx).Warn("rehash password failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	if err := d.users.RehashPassword(ctx, user.ID, user.PasswordHash, fresh); err != nil {
		d.log(ctx).Warn("store rehashed password failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = fresh
}

func (d *Dispatcher) findUser(ctx context.Context, identifier string) (*domain.User, error) {
	user, err := d.users.FindByLogin(ctx, identifier)
	if err == nil || !errors.Is(err, repository.ErrNotFound) || !strings.Contains(identifier, "@") {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		return user, err
	}
	user, err = d.users.FindByEmail(ctx, identifier)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, err
}

func invalidCredentials() *AuthenticationError {
	return &AuthenticationError{
		Code:    CodeInvalidCredentials,
		Message: "Unknown username or incorrect password.",
	}
}

// authenticationDiagnostics turns a failed attempt into diagnostics. When the form was
// submitted without any fields the empty-field errors are dropped so the first paint of the
// form is clean.
func (d *Dispatcher) authenticationDiagnostics(req *Request, err error) domain.Diagnostics {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	var diags domain.Diagnostics
	for _, item := range errs {
		var authErr *AuthenticationError
		if errors.As(item, &authErr) {
			diags = diags.Add(domain.Blocking{Code: authErr.Code, Message: authErr.Message})
		}
	}

	if !req.HasForm() {
		diags = suppressFirstPaint(diags)
	}
	return diags
}

func suppressFirstPaint(diags domain.Diagnostics) domain.Diagnostics {
	codes := diags.Codes()
	if len(codes) == 2 && codes[0] == CodeEmptyUsername && codes[1] == CodeEmptyPassword {
		return nil
	}
	return diags
}

// loginMessages are the notices driven by query parameters left by other actions.
func (d *Dispatcher) loginMessages(req *Request, interim bool) domain.Diagnostics {
	var diags domain.Diagnostics
	if interim && !req.IsPost() {
		diags = diags.Add(domain.Informational{Code: "expired", Message: "Your session has expired. Please log in to continue where you left off."})
	}
	if req.Query("loggedout") == "true" {
		diags = diags.Add(domain.Informational{Code: "loggedout", Message: "You are now logged out."})
	}
	if req.Query("registration") == "disabled" {
		diags = diags.Add(domain.Blocking{Code: "registerdisabled", Message: "User registration is currently not allowed."})
	}
	switch req.Query("checkemail") {
	case "confirm":
		diags = diags.Add(domain.Informational{Code: "confirm", Message: "Check your email for the confirmation link, then visit the login page."})
	case "registered":
		diags = diags.Add(domain.Informational{Code: "registered", Message: "Registration complete. Please check your email, then visit the login page."})
	}
	if req.Query("password") == "changed" {
		diags = diags.Add(domain.Informational{Code: "password_changed", Message: "Your password has been reset."})
	}
	return diags
}

// completeLogin issues the session and decides where the user goes.
func (d *Dispatcher) completeLogin(ctx context.Context, req *Request, resp *Response, user *domain.User, requested string, interim bool) error {
	secure := req.Secure() || d.settings.ForceSSLAdmin || user.UsesSSL()
	remember := req.Form("rememberme") != ""

	session, cookies, err := d.sessions.Issue(ctx, user, remember, secure, d.clientMeta(req))
	if err != nil {
		return err
	}
	resp.SetCookie(cookies...)

	d.log(ctx).Info("login succeeded",
		zap.Int64("user_id", user.ID),
		zap.String("session_id", session.ID),
		zap.Bool("remember", remember),
		zap.String("ip", logger.MaskIP(req.ClientIP())),
	)

	if interim {
		resp.render(View{
			Name:        "interim_login_success",
			Title:       "Log In",
			Diagnostics: domain.Diagnostics{domain.Informational{Code: "interim_success", Message: "You have logged in successfully."}},
		})
		return nil
	}

	resp.redirect(d.loginDestination(user, requested, secure))
	return nil
}

// loginDestination resolves the post-login target. Users who cannot edit posts and were
// headed to the default admin page land on their profile instead.
func (d *Dispatcher) loginDestination(user *domain.User, requested string, secure bool) string {
	target := d.safeRedirect(requested, d.adminURL)
	if requested == "" || target == d.adminURL || target == d.settings.AdminPath {
		switch user.DefaultLanding() {
		case domain.LandingProfile:
			target = d.profileURL
		case domain.LandingHome:
			target = d.redirects.Absolute("/")
		}
	}

	if custom := d.hooks.loginRedirect(user, requested); custom != "" {
		target = d.safeRedirect(custom, target)
	}

	if (secure || user.UsesSSL()) && d.isAdminURL(target) {
		target = forceHTTPS(target)
	}
	return target
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return ""
}
