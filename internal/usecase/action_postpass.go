package usecase

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/infra/security"
)

// postPassword stores the hash of a password for protected content in a cookie and sends the
// visitor back where they came from.
func (d *Dispatcher) postPassword(ctx context.Context, req *Request, resp *Response) error {
	back := d.safeRedirect(req.Referer(), d.redirects.Absolute("/"))

	if !req.HasFormField("post_password") {
		resp.redirect(back)
		return nil
	}

	hash, err := d.hasher.Hash(req.Form("post_password"))
	if err != nil {
		return err
	}

	// A zero TTL keeps the cookie for the browser session only.
	resp.SetCookie(newCookie(d.names.PostPass, hash, "/", req.Secure(), d.settings.PostPassTTL, d.now()))
	resp.redirect(back)
	return nil
}

// enterRecoveryMode validates a recovery link through the recovery hook. On success the
// recovery cookie is set and the visitor is sent to log in.
func (d *Dispatcher) enterRecoveryMode(ctx context.Context, req *Request, resp *Response) error {
	token := strings.TrimSpace(req.Param("rm_token"))
	key := strings.TrimSpace(req.Param("rm_key"))

	fail := func(code, message string) error {
		resp.render(View{
			Name:        "recovery_mode",
			Title:       "Recovery Mode",
			Status:      http.StatusForbidden,
			Diagnostics: domain.Diagnostics{domain.Blocking{Code: code, Message: message}},
		})
		return nil
	}

	if d.hooks.RecoveryMode == nil {
		return fail("recovery_mode_disabled", "Recovery mode is not available.")
	}
	if token == "" || key == "" {
		return fail("recovery_mode_missing", "The recovery mode link is incomplete.")
	}
	if err := d.hooks.RecoveryMode(ctx, token, key); err != nil {
		d.log(ctx).Warn("recovery mode link rejected", zap.Error(err))
		return fail("recovery_mode_invalid", "The recovery mode link is invalid or has expired.")
	}

	resp.SetCookie(newCookie(d.names.RecoveryMode, security.HashKey(token), "/", req.Secure(), 0, d.now()))

	params := url.Values{}
	params.Set("redirect_to", d.adminURL)
	resp.redirect(d.loginURLWith(params))
	return nil
}
