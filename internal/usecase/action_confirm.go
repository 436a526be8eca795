package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/infra/security"
	"github.com/arklim/social-platform-login/internal/repository"
)

// checkEmail is the neutral page shown after a reset link or registration mail went out.
func (d *Dispatcher) checkEmail(_ context.Context, req *Request, resp *Response) error {
	message := domain.Informational{Code: "confirm", Message: "Check your email for the confirmation link, then visit the login page."}
	if req.Query("checkemail") == "registered" {
		message = domain.Informational{Code: "registered", Message: "Registration complete. Please check your email, then visit the login page."}
	}
	resp.render(View{
		Name:        "checkemail",
		Title:       "Check your email",
		Diagnostics: domain.Diagnostics{message},
		Fields:      map[string]string{"login_url": d.loginURL},
	})
	return nil
}

// confirmAction confirms an account action request from an emailed link. A link without its
// id or key, or one whose key does not check out, ends the request.
func (d *Dispatcher) confirmAction(ctx context.Context, req *Request, resp *Response) error {
	rawID := strings.TrimSpace(req.Param("request_id"))
	key := strings.TrimSpace(req.Param("confirm_key"))
	if rawID == "" {
		return fatalRequest("Missing request ID.", "Missing request ID.")
	}
	if key == "" {
		return fatalRequest("Missing confirm key.", "Missing confirm key.")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fatalRequest("Invalid request ID.", "Invalid request ID.")
	}
	if d.requests == nil {
		return fmt.Errorf("user request repository not configured")
	}

	request, err := d.requests.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fatalRequest("Invalid request.", "The confirmation key is invalid for this personal data request.")
		}
		return fmt.Errorf("load user request: %w", err)
	}
	if !security.KeyMatchesHash(key, request.ConfirmKeyHash) {
		return fatalRequest("Invalid key.", "The confirmation key is invalid for this personal data request.")
	}

	now := d.now().UTC()
	if request.Status == domain.UserRequestPending && request.CreatedAt.Add(d.resetKeys.TTL()).Before(now) {
		return fatalRequest("Expired key.", "The confirmation key has expired for this personal data request.")
	}

	if request.Confirm(now) {
		if err := d.requests.MarkConfirmed(ctx, request.ID, now); err != nil {
			return fmt.Errorf("confirm user request: %w", err)
		}
		d.log(ctx).Info("user request confirmed", zap.Int64("request_id", request.ID), zap.String("request_action", request.Action))
		if d.hooks.UserRequestConfirmed != nil {
			d.hooks.UserRequestConfirmed(ctx, *request)
		}
		d.publishRequestConfirmed(ctx, request, now)
	}

	resp.render(View{
		Name:  "confirmaction",
		Title: "User action confirmed.",
		Diagnostics: domain.Diagnostics{domain.Informational{
			Code:    "request_confirmed",
			Message: "Thanks for confirming your request. The site administrator has been notified.",
		}},
		Fields: map[string]string{
			"request_id":     strconv.FormatInt(request.ID, 10),
			"request_action": request.Action,
		},
	})
	return nil
}

func (d *Dispatcher) publishRequestConfirmed(ctx context.Context, request *domain.UserRequest, at time.Time) {
	if d.events == nil {
		return
	}
	event := domain.UserRequestConfirmedEvent{
		EventID:     uuid.NewString(),
		RequestID:   request.ID,
		UserID:      request.UserID,
		Action:      request.Action,
		ConfirmedAt: at,
	}
	if err := d.events.PublishUserRequestConfirmed(ctx, event); err != nil {
		d.log(ctx).Warn("publish user request confirmed failed", zap.Int64("request_id", request.ID), zap.Error(err))
	}
}
