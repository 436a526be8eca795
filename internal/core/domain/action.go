package domain

import (
	"net/url"
	"strings"
)

// Action is a login page flow selected by the "action" request parameter.
type Action int

const (
	ActionLogin Action = iota
	ActionLogout
	ActionLostPassword
	ActionResetPassword
	ActionRegister
	ActionConfirmAdminEmail
	ActionCheckEmail
	ActionConfirmAction
	ActionPostPassword
	ActionRecoveryMode
)

var actionsByName = map[string]Action{
	"login":               ActionLogin,
	"logout":              ActionLogout,
	"lostpassword":        ActionLostPassword,
	"retrievepassword":    ActionLostPassword,
	"resetpass":           ActionResetPassword,
	"rp":                  ActionResetPassword,
	"register":            ActionRegister,
	"confirm_admin_email": ActionConfirmAdminEmail,
	"checkemail":          ActionCheckEmail,
	"confirmaction":       ActionConfirmAction,
	"postpass":            ActionPostPassword,
	"enter_recovery_mode": ActionRecoveryMode,
}

// ParseAction resolves a raw action name. Names outside the allow-list fall back to
// ActionLogin; this is not an error.
func ParseAction(raw string) Action {
	if action, ok := actionsByName[strings.TrimSpace(raw)]; ok {
		return action
	}
	return ActionLogin
}

// ResolveAction reads the action the way the login page reads every parameter: an "action"
// body field wins over the query string, even when empty. Dispatch, rate limits and the access
// log all resolve the action here.
func ResolveAction(form, query url.Values) Action {
	if v, ok := form["action"]; ok && len(v) > 0 {
		return ParseAction(v[0])
	}
	return ParseAction(query.Get("action"))
}

// String returns the canonical action name.
func (a Action) String() string {
	switch a {
	case ActionLogin:
		return "login"
	case ActionLogout:
		return "logout"
	case ActionLostPassword:
		return "lostpassword"
	case ActionResetPassword:
		return "resetpass"
	case ActionRegister:
		return "register"
	case ActionConfirmAdminEmail:
		return "confirm_admin_email"
	case ActionCheckEmail:
		return "checkemail"
	case ActionConfirmAction:
		return "confirmaction"
	case ActionPostPassword:
		return "postpass"
	case ActionRecoveryMode:
		return "enter_recovery_mode"
	}
	return "login"
}
