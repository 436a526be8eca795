package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://login.social-platform.example.com/errors/too-many-attempts"
	rateLimitProblemTitle = "Too Many Attempts"
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter throttles login form submissions against a shared attempt store.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type ruleResult struct {
	rule       RateLimitRule
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Status     int            `json:"status"`
	Detail     string         `json:"detail"`
	Instance   string         `json:"instance"`
	RetryAfter int            `json:"retry_after"`
	TraceID    string         `json:"trace_id,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// ActionSubmission scopes an identifier to form submissions of the given login actions. GET
// requests and other actions are not counted. The action is resolved like the dispatcher does,
// so a body field cannot hide a submission behind a different query action.
func ActionSubmission(inner IdentifierFunc, actions ...domain.Action) IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		if c.Request.Method != http.MethodPost {
			return "", false
		}
		action := RequestAction(c)
		for _, candidate := range actions {
			if candidate == action {
				return inner(c)
			}
		}
		return "", false
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Rules whose identifier does
// not apply are skipped; a store failure lets the request through.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	active := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		active = append(active, rule)
	}

	return func(c *gin.Context) {
		if len(active) == 0 || rl.store == nil {
			c.Next()
			return
		}

		now := rl.now()
		var tightest *ruleResult

		for _, rule := range active {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			res, err := rl.evaluate(c, rule, rule.Name+":"+identifier, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("request_id", logger.RequestIDFromContext(c.Request.Context())),
					zap.String("rule", rule.Name),
					zap.String("identifier", logger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			if !res.allowed {
				rl.applyHeaders(c, res)
				rl.respondRateLimited(c, res)
				return
			}
			if tightest == nil || res.remaining < tightest.remaining ||
				(res.remaining == tightest.remaining && res.reset.Before(tightest.reset)) {
				snapshot := res
				tightest = &snapshot
			}
		}

		if tightest != nil {
			rl.applyHeaders(c, *tightest)
		}

		c.Next()
	}
}

// evaluate reads the window and, when under the limit, records this attempt.
func (rl *RateLimiter) evaluate(c *gin.Context, rule RateLimitRule, key string, now time.Time) (ruleResult, error) {
	ctx := c.Request.Context()

	window, err := rl.store.Window(ctx, key, rule.Window, now)
	if err != nil {
		return ruleResult{}, err
	}

	result := ruleResult{rule: rule, allowed: true, reset: now.Add(rule.Window)}
	if window.Count > 0 && !window.Oldest.IsZero() {
		result.reset = window.Oldest.Add(rule.Window)
	}
	result.retryAfter = result.reset.Sub(now)
	if result.retryAfter < 0 {
		result.retryAfter = 0
	}

	if window.Count >= rule.Limit {
		result.allowed = false
		return result, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return ruleResult{}, err
	}
	result.remaining = rule.Limit - window.Count - 1
	return result, nil
}

func retrySeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}

func (rl *RateLimiter) applyHeaders(c *gin.Context, res ruleResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.rule.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.reset.Unix(), 10))

	if !res.allowed {
		headers.Set("Retry-After", strconv.Itoa(retrySeconds(res.retryAfter)))
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, res ruleResult) {
	retry := retrySeconds(res.retryAfter)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many attempts. Try again in %d seconds.", retry),
		Instance:   instance,
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
		Extensions: map[string]any{
			"rule":   res.rule.Name,
			"action": RequestAction(c).String(),
		},
	})
}
