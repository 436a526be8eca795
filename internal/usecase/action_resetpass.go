package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

// Reset form diagnostics.
const (
	CodePasswordMismatch   = "password_reset_mismatch"
	CodePasswordEmpty      = "password_reset_empty"
	CodePasswordEmptySpace = "password_reset_empty_space"
	CodePasswordWeak       = "password_reset_weak"

	passwordChangeSource = "password_reset"
)

// resetPassword moves a mailed key into the reset cookie, then checks it and lets the user
// choose a new password.
func (d *Dispatcher) resetPassword(ctx context.Context, req *Request, resp *Response) error {
	cookiePath := d.settings.LoginPath

	// The query pair wins over an existing cookie. It is moved into the cookie and stripped from
	// the URL so the key does not linger in history or referers.
	if req.HasQuery("key") && req.HasQuery("login") {
		pending := domain.PendingReset{Login: req.Query("login"), Key: req.Query("key")}
		resp.SetCookie(newCookie(d.names.Reset, pending.CookieValue(), cookiePath, req.Secure(), 0, d.now()))
		resp.redirect(d.currentURL(req, req.QueryWithout("key", "login")))
		return nil
	}

	pending, user, err := d.pendingReset(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrExpiredKey) {
			d.rejectResetKey(resp, req, err)
			return nil
		}
		return err
	}

	pass1 := req.Form("pass1")
	diags := d.checkNewPassword(req, user, pass1)

	if req.IsPost() && !diags.HasBlocking() {
		hash, err := d.hasher.Hash(pass1)
		if err != nil {
			return err
		}
		user, err = d.resetKeys.Redeem(ctx, pending.Login, pending.Key, hash)
		if err != nil {
			if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrExpiredKey) {
				d.rejectResetKey(resp, req, err)
				return nil
			}
			return err
		}

		revoked, err := d.sessions.DestroyAll(ctx, user.ID)
		if err != nil {
			d.log(ctx).Warn("destroy sessions after reset failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		d.publishPasswordChanged(ctx, user, revoked)

		resp.SetCookie(expiredCookie(d.names.Reset, cookiePath, req.Secure()))
		resp.SetCookie(d.sessions.Clear(ctx, req)...)
		resp.render(View{
			Name:  "resetpass_done",
			Title: "Password Reset",
			Diagnostics: domain.Diagnostics{domain.Informational{
				Code:    "password_reset",
				Message: "Your password has been reset.",
			}},
			Fields: map[string]string{"login_url": d.loginURL},
		})
		return nil
	}

	if len(diags) == 0 {
		diags = diags.Add(domain.Informational{Code: "reset_password", Message: "Enter your new password below or generate one."})
	}
	resp.render(View{
		Name:        "resetpass",
		Title:       "Reset Password",
		Diagnostics: diags,
		Fields: map[string]string{
			"user_login": user.Login,
			"rp_key":     pending.Key,
		},
	})
	return nil
}

// pendingReset reads the reset cookie and validates it. On a submitted form the rp_key field
// must match the cookie too.
func (d *Dispatcher) pendingReset(ctx context.Context, req *Request) (domain.PendingReset, *domain.User, error) {
	value, ok := req.Cookie(d.names.Reset)
	if !ok {
		return domain.PendingReset{}, nil, ErrInvalidKey
	}
	pending, ok := domain.ParsePendingReset(value)
	if !ok {
		return domain.PendingReset{}, nil, ErrInvalidKey
	}

	user, err := d.resetKeys.Validate(ctx, pending.Login, pending.Key)
	if err != nil {
		return pending, nil, err
	}

	if req.HasFormField("pass1") && subtle.ConstantTimeCompare([]byte(pending.Key), []byte(req.Form("rp_key"))) != 1 {
		return pending, nil, ErrInvalidKey
	}
	return pending, user, nil
}

func (d *Dispatcher) rejectResetKey(resp *Response, req *Request, err error) {
	code := "invalidkey"
	if errors.Is(err, ErrExpiredKey) {
		code = "expiredkey"
	}
	resp.SetCookie(expiredCookie(d.names.Reset, d.settings.LoginPath, req.Secure()))
	resp.redirect(d.loginURLQuery("action", "lostpassword", "error", code))
}

// checkNewPassword validates pass1/pass2. A weak password passes only with pw_weak checked.
func (d *Dispatcher) checkNewPassword(req *Request, user *domain.User, pass1 string) domain.Diagnostics {
	var diags domain.Diagnostics
	if !req.IsPost() {
		return diags
	}

	if pass1 == "" {
		return diags.Add(domain.Blocking{Code: CodePasswordEmpty, Message: "Please enter a new password."})
	}
	if pass1 != req.Form("pass2") {
		diags = diags.Add(domain.Blocking{Code: CodePasswordMismatch, Message: "The passwords do not match."})
	}
	if strings.TrimSpace(pass1) != pass1 {
		diags = diags.Add(domain.Blocking{Code: CodePasswordEmptySpace, Message: "The password cannot have leading or trailing spaces."})
	}
	if d.strength != nil && req.Form("pw_weak") == "" {
		if err := d.strength.Check(pass1, domain.PasswordContext{Login: user.Login, Email: user.Email}); err != nil {
			diags = diags.Add(domain.Blocking{Code: CodePasswordWeak, Message: "The password is weak. Confirm the use of a weak password to continue."})
		}
	}
	return diags
}

func (d *Dispatcher) publishPasswordChanged(ctx context.Context, user *domain.User, revoked int) {
	if d.events == nil {
		return
	}
	event := domain.PasswordChangedEvent{
		EventID:         uuid.NewString(),
		UserID:          user.ID,
		ChangedAt:       d.now().UTC(),
		Source:          passwordChangeSource,
		SessionsRevoked: revoked,
	}
	if err := d.events.PublishPasswordChanged(ctx, event); err != nil {
		d.log(ctx).Warn("publish password changed failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

