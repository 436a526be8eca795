package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Title   string
	Message string
	// Describe, when set, derives the status, title and message from the matched error itself.
	Describe func(err error) (status int, title, message string)
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic
// response. Unmapped errors are attached to the gin context so the access log records them.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		status, title, message := cs.Status, cs.Title, cs.Message
		if cs.Describe != nil {
			status, title, message = cs.Describe(err)
		}
		body := NewErrorResponse(c, message)
		body.Title = title
		c.JSON(status, body)
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
