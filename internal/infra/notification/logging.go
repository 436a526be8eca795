package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/logger"
)

type noopNotifier struct{}

func (noopNotifier) SendPasswordReset(context.Context, port.ResetNotification) error {
	return nil
}

// LoggingNotifier writes reset notifications to the log and delivers nothing. It only serves
// development; other environments hand links to the mail worker over Kafka.
type LoggingNotifier struct {
	logger      *zap.Logger
	exposeLinks bool
}

// NewLoggingNotifier constructs a notifier backed by structured logging. With exposeLinks the
// reset URL is logged, which is only acceptable outside production.
func NewLoggingNotifier(log *zap.Logger, exposeLinks bool) port.Notifier {
	if log == nil {
		return noopNotifier{}
	}
	return &LoggingNotifier{logger: log, exposeLinks: exposeLinks}
}

// SendPasswordReset logs the reset notification.
func (n *LoggingNotifier) SendPasswordReset(_ context.Context, payload port.ResetNotification) error {
	message := "dispatch password reset"
	if payload.NewAccount {
		message = "dispatch new account password setup"
	}
	n.logger.Info(message, n.fields(payload)...)
	return nil
}

func (n *LoggingNotifier) fields(payload port.ResetNotification) []zap.Field {
	fields := []zap.Field{
		zap.Int64("user_id", payload.UserID),
		zap.String("login", payload.Login),
		zap.String("email", logger.MaskEmail(payload.Email)),
		zap.Time("expires_at", payload.ExpiresAt),
		zap.Bool("new_account", payload.NewAccount),
	}
	if n.exposeLinks && payload.ResetURL != "" {
		fields = append(fields, zap.String("reset_url", payload.ResetURL))
	}
	return fields
}
