package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/logger"
	"github.com/arklim/social-platform-login/internal/repository"
)

// lostPassword issues a reset key on POST and renders the request form otherwise. The answer
// to a valid POST is the same whether or not the account exists.
func (d *Dispatcher) lostPassword(ctx context.Context, req *Request, resp *Response) error {
	var diags domain.Diagnostics

	if req.IsPost() {
		identifier := strings.TrimSpace(req.Form("user_login"))
		var err error
		diags, err = d.retrievePassword(ctx, req, identifier)
		if err != nil {
			return err
		}
		if !diags.HasBlocking() {
			target := d.loginURLQuery("checkemail", "confirm")
			if requested := req.Param("redirect_to"); requested != "" {
				target = d.safeRedirect(requested, target)
			}
			resp.redirect(target)
			return nil
		}
	}

	switch req.Query("error") {
	case "invalidkey":
		diags = diags.Add(domain.Blocking{Code: "invalidkey", Message: "Your password reset link appears to be invalid. Please request a new link below."})
	case "expiredkey":
		diags = diags.Add(domain.Blocking{Code: "expiredkey", Message: "Your password reset link has expired. Please request a new link below."})
	}
	if len(diags) == 0 {
		diags = diags.Add(domain.Informational{Code: "lostpassword", Message: "Please enter your username or email address. You will receive an email message with instructions on how to reset your password."})
	}

	resp.render(View{
		Name:        "lostpassword",
		Title:       "Lost Password",
		Diagnostics: diags,
		Fields: map[string]string{
			"user_login":  strings.TrimSpace(req.Form("user_login")),
			"redirect_to": req.Param("redirect_to"),
		},
	})
	return nil
}

func (d *Dispatcher) retrievePassword(ctx context.Context, req *Request, identifier string) (domain.Diagnostics, error) {
	var diags domain.Diagnostics
	if identifier == "" {
		diags = diags.Add(domain.Blocking{Code: CodeEmptyUsername, Message: "Please enter a username or email address."})
	}
	diags = append(diags, d.hooks.lostPasswordErrors(identifier)...)
	if diags.HasBlocking() {
		return diags, nil
	}

	user, err := d.findUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			d.log(ctx).Info("password reset requested for unknown account", zap.String("identifier", logger.MaskIdentifier(identifier)))
			return diags, nil
		}
		return nil, err
	}

	key, err := d.resetKeys.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	expiresAt := d.now().UTC().Add(d.resetKeys.TTL())
	if err := d.sendResetLink(ctx, user, key, false); err != nil {
		d.log(ctx).Error("send password reset failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return diags.Add(domain.Blocking{Code: "retrieve_password_email_failure", Message: "The email could not be sent. Your site may not be correctly configured to send emails."}), nil
	}

	d.publishResetRequested(ctx, req, user, expiresAt)
	return diags, nil
}

// resetURL is the link mailed to the user. Opening it moves the key into the reset cookie.
func (d *Dispatcher) resetURL(login, key string) string {
	params := url.Values{}
	params.Set("action", "rp")
	params.Set("key", key)
	params.Set("login", login)
	return d.loginURLWith(params)
}

func (d *Dispatcher) sendResetLink(ctx context.Context, user *domain.User, key string, newAccount bool) error {
	if d.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	return d.notifier.SendPasswordReset(ctx, port.ResetNotification{
		UserID:     user.ID,
		Login:      user.Login,
		Email:      user.Email,
		Key:        key,
		ResetURL:   d.resetURL(user.Login, key),
		ExpiresAt:  d.now().UTC().Add(d.resetKeys.TTL()),
		NewAccount: newAccount,
	})
}

func (d *Dispatcher) publishResetRequested(ctx context.Context, req *Request, user *domain.User, expiresAt time.Time) {
	if d.events == nil {
		return
	}
	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		UserID:            user.ID,
		RequestedAt:       d.now().UTC(),
		MaskedDestination: logger.MaskEmail(user.Email),
		IPAddress:         stringPtrOrNil(req.ClientIP()),
		ExpiresAt:         expiresAt,
		Metadata: map[string]any{
			"request_id": logger.RequestIDFromContext(ctx),
		},
	}
	if ua := req.UserAgent(); ua != "" {
		event.Metadata["user_agent"] = ua
	}
	if err := d.events.PublishPasswordResetRequested(ctx, event); err != nil {
		d.log(ctx).Warn("publish password reset requested failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}
