package port

import (
	"context"
	"time"
)

// ResetNotification carries what a mailer needs to deliver a reset link.
type ResetNotification struct {
	UserID    int64
	Login     string
	Email     string
	Key       string
	ResetURL  string
	ExpiresAt time.Time
	// NewAccount marks the set-password mail sent after registration.
	NewAccount bool
}

// Notifier delivers credentials to users. Delivery itself happens outside this service.
type Notifier interface {
	SendPasswordReset(ctx context.Context, payload ResetNotification) error
}
