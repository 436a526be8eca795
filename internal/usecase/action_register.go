package usecase

import (
	"context"
	"errors"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/logger"
)

// register creates an account and mails a set-password link. No password is chosen here; the
// new user picks one through the reset flow.
func (d *Dispatcher) register(ctx context.Context, req *Request, resp *Response) error {
	enabled, err := d.registrationEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		resp.redirect(d.loginURLQuery("registration", "disabled"))
		return nil
	}

	login := strings.TrimSpace(req.Form("user_login"))
	email := strings.TrimSpace(req.Form("user_email"))

	var diags domain.Diagnostics
	if req.IsPost() {
		diags = d.registrationDiagnostics(login, email)
		if !diags.HasBlocking() {
			user, err := d.users.Create(ctx, port.NewUser{
				Login:        login,
				Email:        email,
				Status:       domain.UserStatusActive,
				Locale:       d.requestLocale(req),
				Capabilities: domain.DefaultCapabilities(),
				RegisteredAt: d.now().UTC(),
			})
			var verr *domain.ValidationError
			switch {
			case errors.As(err, &verr):
				diags = append(diags, verr.Diagnostics()...)
			case err != nil:
				return err
			default:
				d.welcome(ctx, req, user)
				target := d.loginURLQuery("checkemail", "registered")
				if requested := req.Param("redirect_to"); requested != "" {
					target = d.safeRedirect(requested, target)
				}
				resp.redirect(target)
				return nil
			}
		}
	}

	if len(diags) == 0 {
		diags = diags.Add(domain.Informational{Code: "register", Message: "Register For This Site"})
	}
	resp.render(View{
		Name:        "register",
		Title:       "Registration Form",
		Diagnostics: diags,
		Fields: map[string]string{
			"user_login":  login,
			"user_email":  email,
			"redirect_to": req.Param("redirect_to"),
		},
	})
	return nil
}

// registrationEnabled consults the site option first and falls back to configuration.
func (d *Dispatcher) registrationEnabled(ctx context.Context) (bool, error) {
	if d.settings.UsersCanRegister {
		return true, nil
	}
	if d.options == nil {
		return false, nil
	}
	value, ok, err := d.options.Get(ctx, port.SiteOptionUsersCanRegister)
	if err != nil {
		return false, err
	}
	return ok && truthy(value), nil
}

func (d *Dispatcher) registrationDiagnostics(login, email string) domain.Diagnostics {
	var diags domain.Diagnostics
	if verr := domain.ValidateNewAccount(login, email); verr != nil {
		diags = verr.Diagnostics()
	}
	return append(diags, d.hooks.registrationErrors(login, email)...)
}

// welcome issues the set-password key and announces the account. Both are best effort: the
// account exists either way and the user can request a new link.
func (d *Dispatcher) welcome(ctx context.Context, req *Request, user *domain.User) {
	log := d.log(ctx).With(zap.Int64("user_id", user.ID))
	log.Info("user registered", zap.String("email", logger.MaskEmail(user.Email)))

	if key, err := d.resetKeys.Issue(ctx, user); err != nil {
		log.Error("issue set-password key failed", zap.Error(err))
	} else if err := d.sendResetLink(ctx, user, key, true); err != nil {
		log.Error("send set-password link failed", zap.Error(err))
	}

	if d.events == nil {
		return
	}
	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Login:        user.Login,
		Email:        user.Email,
		RegisteredAt: user.RegisteredAt,
		Metadata: map[string]any{
			"request_id": logger.RequestIDFromContext(ctx),
			"locale":     user.Locale,
		},
	}
	if ip := req.ClientIP(); ip != "" {
		event.Metadata["ip"] = logger.MaskIP(ip)
	}
	if err := d.events.PublishUserRegistered(ctx, event); err != nil {
		log.Warn("publish user registered failed", zap.Error(err))
	}
}

// requestLocale picks the language cookie or switcher value when it is an offered language.
func (d *Dispatcher) requestLocale(req *Request) string {
	for _, candidate := range []string{req.Query("wp_lang"), cookieOrEmpty(req, d.names.Language)} {
		candidate = strings.TrimSpace(candidate)
		for _, lang := range d.settings.Languages {
			if candidate != "" && candidate == lang {
				return lang
			}
		}
	}
	return ""
}

func cookieOrEmpty(req *Request, name string) string {
	value, _ := req.Cookie(name)
	return value
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
