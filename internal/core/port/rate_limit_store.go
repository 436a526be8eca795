package port

import (
	"context"
	"time"
)

// AttemptWindow summarizes the attempts recorded for one identifier inside a window.
type AttemptWindow struct {
	Count int
	// Oldest is zero when Count is zero.
	Oldest time.Time
}

// RateLimitStore keeps sliding-window attempt logs for the login form throttles.
type RateLimitStore interface {
	// Window drops attempts older than the window and reports what remains.
	Window(ctx context.Context, identifier string, window time.Duration, reference time.Time) (AttemptWindow, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
}
