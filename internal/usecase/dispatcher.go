package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/infra/logger"
	"github.com/arklim/social-platform-login/internal/infra/security"
)

const tracerName = "github.com/arklim/social-platform-login/internal/usecase"

// Dispatch outcomes reported to the observer.
const (
	outcomeRedirect = "redirect"
	outcomeRender   = "render"
	outcomeFatal    = "fatal"
	outcomeError    = "error"
)

// DispatchObserver records one finished dispatch.
type DispatchObserver interface {
	ObserveDispatch(action, outcome string, elapsed time.Duration)
}

// Dependencies wires a Dispatcher.
type Dependencies struct {
	Settings  config.LoginSettings
	Users     port.CredentialStore
	Options   port.OptionStore
	Requests  port.UserRequestRepository
	Hasher    port.PasswordHasher
	Strength  port.PasswordStrengthChecker
	ResetKeys *ResetKeyService
	Sessions  *SessionIssuer
	Nonces    *security.NonceManager
	Notifier  port.Notifier
	Events    port.EventPublisher
	Hooks     Hooks
	Observer  DispatchObserver
	Tracer    trace.Tracer
	Logger    *zap.Logger
}

// Dispatcher runs exactly one login page action per request.
type Dispatcher struct {
	settings  config.LoginSettings
	users     port.CredentialStore
	options   port.OptionStore
	requests  port.UserRequestRepository
	hasher    port.PasswordHasher
	strength  port.PasswordStrengthChecker
	resetKeys *ResetKeyService
	sessions  *SessionIssuer
	nonces    *security.NonceManager
	notifier  port.Notifier
	events    port.EventPublisher
	hooks     Hooks
	observer  DispatchObserver
	tracer    trace.Tracer
	logger    *zap.Logger

	redirects  *RedirectPolicy
	names      CookieNames
	loginURL   string
	adminURL   string
	profileURL string
	now        func() time.Time

	dummyHash string
}

// NewDispatcher validates the dependencies and derives site URLs and cookie names.
func NewDispatcher(deps Dependencies) (*Dispatcher, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("credential store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	case deps.ResetKeys == nil:
		return nil, fmt.Errorf("reset key service is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("session issuer is required")
	case deps.Nonces == nil:
		return nil, fmt.Errorf("nonce manager is required")
	}

	settings := deps.Settings
	if settings.LoginPath == "" {
		settings.LoginPath = "/login"
	}
	if settings.AdminPath == "" {
		settings.AdminPath = "/admin/"
	}
	if settings.ProfilePath == "" {
		settings.ProfilePath = "/admin/profile"
	}

	redirects, err := NewRedirectPolicy(settings.SiteURL, settings.AllowedRedirectHosts)
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	// Unknown logins are still run through the hasher so they cost as much as wrong passwords.
	dummyHash, err := deps.Hasher.Hash("login-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Dispatcher{
		settings:   settings,
		users:      deps.Users,
		options:    deps.Options,
		requests:   deps.Requests,
		hasher:     deps.Hasher,
		strength:   deps.Strength,
		resetKeys:  deps.ResetKeys,
		sessions:   deps.Sessions,
		nonces:     deps.Nonces,
		notifier:   deps.Notifier,
		events:     deps.Events,
		hooks:      deps.Hooks,
		observer:   deps.Observer,
		tracer:     tracer,
		logger:     log,
		redirects:  redirects,
		names:      NewCookieNames(settings.SiteURL),
		loginURL:   redirects.Absolute(settings.LoginPath),
		adminURL:   redirects.Absolute(settings.AdminPath),
		profileURL: redirects.Absolute(settings.ProfilePath),
		now:        time.Now,
		dummyHash:  dummyHash,
	}, nil
}

// WithClock allows tests to override the clock used by the dispatcher.
func (d *Dispatcher) WithClock(clock func() time.Time) {
	if clock != nil {
		d.now = clock
	}
}

// CookieNames exposes the cookie names of the site.
func (d *Dispatcher) CookieNames() CookieNames {
	return d.names
}

// Dispatch resolves the action and runs its handler. Only a *FatalRequestError or an
// infrastructure failure is returned as an error; everything else is in the Response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	start := d.now()
	action := domain.ResolveAction(req.form, req.query)

	ctx, span := d.tracer.Start(ctx, "login.dispatch", trace.WithAttributes(
		attribute.String("login.action", action.String()),
		attribute.String("http.method", req.Method()),
	))
	defer span.End()

	resp := newResponse()
	d.prepare(req, resp)

	var err error
	if d.settings.ForceSSLAdmin && !req.Secure() {
		resp.redirect(forceHTTPS(d.currentURL(req, nil)))
	} else {
		err = d.route(ctx, action, req, resp)
	}

	outcome := outcomeRender
	switch {
	case errors.Is(err, ErrFatalRequest):
		outcome = outcomeFatal
		span.SetStatus(codes.Error, err.Error())
	case err != nil:
		outcome = outcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log(ctx).Error("login action failed", zap.String("action", action.String()), zap.Error(err))
	case resp.IsRedirect():
		outcome = outcomeRedirect
	}
	span.SetAttributes(attribute.String("login.outcome", outcome))

	if d.observer != nil {
		d.observer.ObserveDispatch(action.String(), outcome, d.now().Sub(start))
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// route is total over domain.Action; ParseAction already folded unknown names into login.
func (d *Dispatcher) route(ctx context.Context, action domain.Action, req *Request, resp *Response) error {
	switch action {
	case domain.ActionLogin:
		return d.login(ctx, req, resp)
	case domain.ActionLogout:
		return d.logout(ctx, req, resp)
	case domain.ActionLostPassword:
		return d.lostPassword(ctx, req, resp)
	case domain.ActionResetPassword:
		return d.resetPassword(ctx, req, resp)
	case domain.ActionRegister:
		return d.register(ctx, req, resp)
	case domain.ActionConfirmAdminEmail:
		return d.confirmAdminEmail(ctx, req, resp)
	case domain.ActionCheckEmail:
		return d.checkEmail(ctx, req, resp)
	case domain.ActionConfirmAction:
		return d.confirmAction(ctx, req, resp)
	case domain.ActionPostPassword:
		return d.postPassword(ctx, req, resp)
	case domain.ActionRecoveryMode:
		return d.enterRecoveryMode(ctx, req, resp)
	}
	return fmt.Errorf("unhandled action %d", action)
}

// prepare adds what every login page response carries: the test cookie, no-cache and
// framing headers, and the language cookie when the visitor switched languages.
func (d *Dispatcher) prepare(req *Request, resp *Response) {
	now := d.now()
	resp.SetCookie(&http.Cookie{
		Name:     d.names.Test,
		Value:    testCookieValue,
		Path:     "/",
		Secure:   req.Secure(),
		SameSite: http.SameSiteLaxMode,
	})

	resp.Headers.Set("Cache-Control", "no-cache, must-revalidate, max-age=0, no-store, private")
	resp.Headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if req.Param("interim-login") == "" {
		resp.Headers.Set("X-Frame-Options", "SAMEORIGIN")
	}

	if lang := strings.TrimSpace(req.Query("wp_lang")); lang != "" && slices.Contains(d.settings.Languages, lang) {
		c := newCookie(d.names.Language, lang, "/", req.Secure(), languageCookieTTL, now)
		c.HttpOnly = false
		resp.SetCookie(c)
	}
}

// loginURLWith renders the login URL with the query parameters.
func (d *Dispatcher) loginURLWith(params url.Values) string {
	if len(params) == 0 {
		return d.loginURL
	}
	return d.loginURL + "?" + params.Encode()
}

func (d *Dispatcher) loginURLQuery(pairs ...string) string {
	params := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		params.Set(pairs[i], pairs[i+1])
	}
	return d.loginURLWith(params)
}

// currentURL rebuilds the request URL on the site with the given query.
func (d *Dispatcher) currentURL(req *Request, query url.Values) string {
	path := req.Path()
	if path == "" {
		path = d.settings.LoginPath
	}
	if query == nil {
		query = req.QueryWithout()
	}
	target := d.redirects.Absolute(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

// safeRedirect sanitizes the requested target against the site and falls back otherwise.
func (d *Dispatcher) safeRedirect(requested, fallback string) string {
	return d.redirects.Sanitize(requested, fallback)
}

// isAdminURL reports whether target points into the admin area of the site.
func (d *Dispatcher) isAdminURL(target string) bool {
	if strings.HasPrefix(target, d.settings.AdminPath) {
		return true
	}
	return strings.HasPrefix(forceHTTPS(target), forceHTTPS(d.adminURL))
}

func (d *Dispatcher) log(ctx context.Context) *zap.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return d.logger.With(zap.String("request_id", id))
	}
	return d.logger
}

func (d *Dispatcher) clientMeta(req *Request) ClientMeta {
	return ClientMeta{IP: req.ClientIP(), UserAgent: req.UserAgent()}
}
