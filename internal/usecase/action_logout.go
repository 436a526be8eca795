package usecase

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

const logoutNonceAction = "log-out"

// logout ends the session after checking the nonce. Without a live session there is
// nothing to protect, so the cookies are cleared and the visitor is sent on.
func (d *Dispatcher) logout(ctx context.Context, req *Request, resp *Response) error {
	session, err := d.sessions.Current(ctx, req)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}

	if session != nil && !d.nonces.Verify(req.Param("_wpnonce"), logoutNonceAction, session.UserID, session.ID) {
		d.log(ctx).Warn("logout nonce rejected", zap.Int64("user_id", session.UserID))
		resp.render(View{
			Name:   "logout_confirm",
			Title:  "Something went wrong.",
			Status: http.StatusForbidden,
			Diagnostics: domain.Diagnostics{domain.Blocking{
				Code:    "nonce_failure",
				Message: "You are attempting to log out. Do you really want to log out?",
			}},
			Fields: map[string]string{
				"_wpnonce":    d.nonces.Create(logoutNonceAction, session.UserID, session.ID),
				"redirect_to": req.Param("redirect_to"),
			},
		})
		return nil
	}

	resp.SetCookie(d.sessions.Clear(ctx, req)...)

	target := d.loginURLQuery("loggedout", "true")
	if requested := req.Param("redirect_to"); requested != "" {
		target = d.safeRedirect(requested, target)
	}
	resp.redirect(target)
	return nil
}

// LogoutNonce returns the nonce a logout link for the session must carry.
func (d *Dispatcher) LogoutNonce(session domain.SessionToken) string {
	return d.nonces.Create(logoutNonceAction, session.UserID, session.ID)
}
