package domain

import "time"

// UserRegisteredEvent represents the payload for login.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       int64
	Login        string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// PasswordChangedEvent represents the payload for login.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          int64
	ChangedAt       time.Time
	Source          string
	SessionsRevoked int
	Metadata        map[string]any
}

// PasswordResetRequestedEvent represents the payload for login.user.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            int64
	RequestedAt       time.Time
	MaskedDestination string
	IPAddress         *string
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// SessionStartedEvent represents the payload for login.session.started messages.
type SessionStartedEvent struct {
	EventID   string
	SessionID string
	UserID    int64
	StartedAt time.Time
	ExpiresAt time.Time
	Remember  bool
	IPAddress *string
	UserAgent *string
}

// SessionEndedEvent represents the payload for login.session.ended messages.
type SessionEndedEvent struct {
	EventID   string
	SessionID string
	UserID    int64
	EndedAt   time.Time
	Reason    string
}

// LoginFailedEvent represents the payload for login.failed messages. UserID is zero when the
// submitted login matched no account.
type LoginFailedEvent struct {
	EventID     string
	UserID      int64
	MaskedLogin string
	Reason      string
	FailedAt    time.Time
	IPAddress   *string
}

// UserRequestConfirmedEvent represents the payload for login.user.request.confirmed messages.
type UserRequestConfirmedEvent struct {
	EventID     string
	RequestID   int64
	UserID      int64
	Action      string
	ConfirmedAt time.Time
}
