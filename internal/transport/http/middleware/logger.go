package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appLogger "github.com/arklim/social-platform-login/internal/infra/logger"
)

// Logger writes one access log line per request. The query string is never logged: login
// URLs carry reset keys and confirmation keys in it.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.String("request_id", appLogger.RequestIDFromContext(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("action", GetLoginAction(c)),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
			zap.Bool("secure", IsSecure(c)),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		log.Log(accessLevel(status, len(c.Errors) > 0), "request completed", fields...)
	}
}

// accessLevel keeps rejected logins and throttled clients visible without paging on them.
func accessLevel(status int, failed bool) zapcore.Level {
	switch {
	case failed || status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
