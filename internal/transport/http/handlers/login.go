package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/infra/logger"
	"github.com/arklim/social-platform-login/internal/transport/http/middleware"
	"github.com/arklim/social-platform-login/internal/usecase"
)

// Dispatcher runs a login page request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *usecase.Request) (*usecase.Response, error)
}

// LoginHandler serves the login page endpoint for every action.
type LoginHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewLoginHandler constructs a LoginHandler.
func NewLoginHandler(dispatcher Dispatcher, log *zap.Logger) *LoginHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginHandler{dispatcher: dispatcher, logger: log}
}

// RegisterRoutes mounts the handler on GET and POST of path.
func (h *LoginHandler) RegisterRoutes(r gin.IRoutes, path string, middlewares ...gin.HandlerFunc) {
	chain := append(append([]gin.HandlerFunc{}, middlewares...), h.Handle)
	r.GET(path, chain...)
	r.POST(path, chain...)
}

// Handle converts the request, dispatches it and writes the response.
func (h *LoginHandler) Handle(c *gin.Context) {
	formErr := middleware.ParseForm(c)
	middleware.SetLoginAction(c, middleware.RequestAction(c).String())

	if err := formErr; err != nil {
		h.logger.Warn("malformed login form", zap.String("request_id", logger.RequestIDFromContext(c.Request.Context())), zap.Error(err))
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "malformed form body"))
		return
	}

	cookies := make(map[string]string)
	for _, cookie := range c.Request.Cookies() {
		cookies[cookie.Name] = cookie.Value
	}

	req := usecase.NewRequest(usecase.RequestInput{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Query:     c.Request.URL.Query(),
		Form:      c.Request.PostForm,
		Cookies:   cookies,
		Secure:    middleware.IsSecure(c),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	header := c.Writer.Header()
	for name, values := range resp.Headers {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	for _, cookie := range resp.Cookies {
		http.SetCookie(c.Writer, cookie)
	}

	if resp.IsRedirect() {
		c.Redirect(resp.Status, resp.Location)
		return
	}
	if resp.View == nil {
		c.Status(resp.Status)
		return
	}
	c.JSON(resp.View.Status, NewViewResponse(resp.View))
}

func (h *LoginHandler) respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, []ErrorCase{
		{Err: usecase.ErrFatalRequest, Describe: describeFatalRequest},
		{Err: context.Canceled, Status: http.StatusRequestTimeout, Message: "request canceled"},
		{Err: context.DeadlineExceeded, Status: http.StatusGatewayTimeout, Message: "request timed out"},
	}, http.StatusInternalServerError, "internal server error")
}

func describeFatalRequest(err error) (int, string, string) {
	var fatal *usecase.FatalRequestError
	if !errors.As(err, &fatal) {
		return http.StatusBadRequest, "", "invalid request"
	}
	status := fatal.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	return status, fatal.Title, fatal.Message
}
