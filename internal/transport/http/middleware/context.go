package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/social-platform-login/internal/core/domain"
)

const (
	// TraceIDHeader is the HTTP header name for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the context key for trace ID
	TraceIDKey = "trace_id"
	// LoginActionKey is the context key for the resolved login action
	LoginActionKey = "login_action"

	forwardedProtoHeader = "X-Forwarded-Proto"
	formErrorKey         = "login_form_error"
)

// RequestContext holds request-scoped information
type RequestContext struct {
	TraceID   string
	IP        string
	UserAgent string
	Secure    bool
}

// EnrichContext adds trace ID and request context to each request
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if trace ID already exists in header, otherwise generate one
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		// Set trace ID in context and response header
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		// Store request metadata
		reqCtx := &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Secure:    IsSecure(c),
		}
		c.Set("request_context", reqCtx)

		c.Next()
	}
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(TraceIDKey); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext retrieves the full request context
func GetRequestContext(c *gin.Context) *RequestContext {
	if ctx, exists := c.Get("request_context"); exists {
		if reqCtx, ok := ctx.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}

// IsSecure reports whether the request reached us over TLS, directly or through a proxy that
// terminated it.
func IsSecure(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader(forwardedProtoHeader), "https")
}

// ParseForm parses the request form once per request and remembers the outcome. net/http only
// reports a malformed body on the first ParseForm call.
func ParseForm(c *gin.Context) error {
	if v, ok := c.Get(formErrorKey); ok {
		err, _ := v.(error)
		return err
	}
	err := c.Request.ParseForm()
	c.Set(formErrorKey, err)
	return err
}

// RequestAction resolves the login action of the request from its body and query string. A
// malformed body leaves only the query.
func RequestAction(c *gin.Context) domain.Action {
	var form url.Values
	if err := ParseForm(c); err == nil {
		form = c.Request.PostForm
	}
	return domain.ResolveAction(form, c.Request.URL.Query())
}

// SetLoginAction records the login action served by this request.
func SetLoginAction(c *gin.Context, action string) {
	c.Set(LoginActionKey, action)
}

// GetLoginAction returns the recorded login action or "none".
func GetLoginAction(c *gin.Context) string {
	if action := c.GetString(LoginActionKey); action != "" {
		return action
	}
	return "none"
}
