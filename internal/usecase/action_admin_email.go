package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/repository"
)

const (
	adminEmailNonceAction = "confirm_admin_email"
	adminEmailRemindNonce = "remind_me_later_nonce"

	defaultAdminEmailLifespan = 6 * 30 * 24 * time.Hour
	defaultAdminEmailRemindIn = 3 * 24 * time.Hour
)

// confirmAdminEmail asks an administrator to confirm the site admin email. Confirming pushes
// the next check out by the configured lifespan; "remind me later" by a few days. Visitors
// without a session or without manage_options are redirected away.
func (d *Dispatcher) confirmAdminEmail(ctx context.Context, req *Request, resp *Response) error {
	session, err := d.sessions.Current(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			return err
		}
		params := url.Values{}
		params.Set("redirect_to", d.currentURL(req, nil))
		resp.redirect(d.loginURLWith(params))
		return nil
	}

	user, err := d.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			resp.redirect(d.loginURL)
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.CanManageSite() {
		d.log(ctx).Info("admin email confirmation denied", zap.Int64("user_id", user.ID))
		resp.redirect(d.loginURL)
		return nil
	}
	if d.options == nil {
		return fmt.Errorf("option store not configured")
	}

	destination := d.safeRedirect(req.Param("redirect_to"), d.adminURL)

	if req.IsPost() {
		var (
			extend time.Duration
			nonce  string
		)
		switch {
		case req.Form("remind_me_later") != "":
			extend, nonce = d.adminEmailRemindIn(), adminEmailRemindNonce
		case req.Form("correct-admin-email") != "":
			extend, nonce = d.adminEmailLifespan(), adminEmailNonceAction
		}

		if extend > 0 {
			if !d.nonces.Verify(req.Form("_wpnonce"), nonce, session.UserID, session.ID) {
				resp.render(View{
					Name:   "confirm_admin_email",
					Title:  "Confirm your administration email",
					Status: http.StatusForbidden,
					Diagnostics: domain.Diagnostics{domain.Blocking{
						Code:    "nonce_failure",
						Message: "The link you followed has expired. Please try again.",
					}},
					Fields: d.adminEmailFields(ctx, session, destination),
				})
				return nil
			}

			next := d.now().UTC().Add(extend)
			if err := d.options.Set(ctx, port.SiteOptionAdminEmailLifespan, strconv.FormatInt(next.Unix(), 10)); err != nil {
				return fmt.Errorf("update admin email lifespan: %w", err)
			}
			d.log(ctx).Info("admin email confirmed", zap.Int64("user_id", user.ID), zap.Time("next_check", next))
			resp.redirect(destination)
			return nil
		}
	}

	resp.render(View{
		Name:  "confirm_admin_email",
		Title: "Confirm your administration email",
		Diagnostics: domain.Diagnostics{domain.Informational{
			Code:    "admin_email_check",
			Message: "Please verify that the administration email for this website is still correct.",
		}},
		Fields: d.adminEmailFields(ctx, session, destination),
	})
	return nil
}

func (d *Dispatcher) adminEmailFields(ctx context.Context, session *domain.SessionToken, destination string) map[string]string {
	email, _, err := d.options.Get(ctx, port.SiteOptionAdminEmail)
	if err != nil {
		d.log(ctx).Warn("load admin email failed", zap.Error(err))
	}
	return map[string]string{
		"admin_email":           email,
		"redirect_to":           destination,
		"_wpnonce":              d.nonces.Create(adminEmailNonceAction, session.UserID, session.ID),
		"remind_me_later_nonce": d.nonces.Create(adminEmailRemindNonce, session.UserID, session.ID),
	}
}

func (d *Dispatcher) adminEmailLifespan() time.Duration {
	if d.settings.AdminEmailLifespan > 0 {
		return d.settings.AdminEmailLifespan
	}
	return defaultAdminEmailLifespan
}

func (d *Dispatcher) adminEmailRemindIn() time.Duration {
	if d.settings.AdminEmailRemindIn > 0 {
		return d.settings.AdminEmailRemindIn
	}
	return defaultAdminEmailRemindIn
}

// AdminEmailNonces returns the confirm and remind nonces for the session.
func (d *Dispatcher) AdminEmailNonces(session domain.SessionToken) (confirm, remind string) {
	return d.nonces.Create(adminEmailNonceAction, session.UserID, session.ID),
		d.nonces.Create(adminEmailRemindNonce, session.UserID, session.ID)
}
