package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	Title   string `json:"title,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// DiagnosticResponse is one message shown on a login page.
type DiagnosticResponse struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ViewResponse is the resolved login page state. A front end renders it into markup.
type ViewResponse struct {
	View        string               `json:"view"`
	Title       string               `json:"title"`
	Diagnostics []DiagnosticResponse `json:"diagnostics"`
	Fields      map[string]string    `json:"fields,omitempty"`
}

// NewViewResponse converts a dispatcher view.
func NewViewResponse(view *usecase.View) ViewResponse {
	out := ViewResponse{
		View:        view.Name,
		Title:       view.Title,
		Diagnostics: make([]DiagnosticResponse, 0, len(view.Diagnostics)),
		Fields:      view.Fields,
	}
	for _, d := range view.Diagnostics {
		kind := "informational"
		if _, ok := d.(domain.Blocking); ok {
			kind = "blocking"
		}
		out.Diagnostics = append(out.Diagnostics, DiagnosticResponse{
			Kind:    kind,
			Code:    d.DiagnosticCode(),
			Message: d.DiagnosticMessage(),
		})
	}
	return out
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
