package domain

import "time"

// UserRequestStatus enumerates the lifecycle of an account action request.
type UserRequestStatus string

const (
	UserRequestPending   UserRequestStatus = "pending"
	UserRequestConfirmed UserRequestStatus = "confirmed"
)

// UserRequest is an account action (data export, erasure, email change) awaiting confirmation
// from a link carrying the request id and a confirm key.
type UserRequest struct {
	ID             int64
	UserID         int64
	Email          string
	Action         string
	ConfirmKeyHash string
	Status         UserRequestStatus
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// Confirm marks the request confirmed. Returns true when the state changed.
func (r *UserRequest) Confirm(at time.Time) bool {
	if r.Status == UserRequestConfirmed {
		return false
	}
	timeCopy := at
	r.Status = UserRequestConfirmed
	r.ConfirmedAt = &timeCopy
	return true
}
