package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-login/internal/core/domain"
	"github.com/arklim/social-platform-login/internal/core/port"
	"github.com/arklim/social-platform-login/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published by the login gateway.
const (
	EventUserRegistered         = "login.user.registered"
	EventPasswordResetRequested = "login.user.password.reset_requested"
	EventPasswordChanged        = "login.user.password.changed"
	EventSessionStarted         = "login.session.started"
	EventSessionEnded           = "login.session.ended"
	EventLoginFailed            = "login.failed"
	EventUserRequestConfirmed   = "login.user.request.confirmed"

	// Delivery intent for the mailer. Unlike the events above it carries the reset URL, so the
	// topic must be readable only by the mail worker.
	NotificationPasswordReset = "login.notification.password_reset"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func formatUserID(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, userID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    formatUserID(userID),
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(envelope.UserID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes login.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       int64          `json:"user_id"`
		Login        string         `json:"login"`
		Email        string         `json:"email"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		Login:        event.Login,
		Email:        event.Email,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishPasswordChanged publishes login.user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          int64          `json:"user_id"`
		ChangedAt       time.Time      `json:"changed_at"`
		Source          string         `json:"source"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedAt:       event.ChangedAt.UTC(),
		Source:          event.Source,
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.UserID, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes login.user.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		UserID            int64          `json:"user_id"`
		RequestedAt       time.Time      `json:"requested_at"`
		MaskedDestination string         `json:"masked_destination,omitempty"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		UserID:            event.UserID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		IPAddress:         event.IPAddress,
		ExpiresAt:         event.ExpiresAt.UTC(),
		Metadata:          event.Metadata,
	}

	timestamp := event.RequestedAt
	if timestamp.IsZero() {
		timestamp = event.ExpiresAt
	}

	return p.publish(ctx, event.EventID, EventPasswordResetRequested, event.UserID, timestamp, payload)
}

// SendPasswordReset implements port.Notifier by handing the reset link to the mail worker
// through the login.notification.password_reset topic.
func (p *EventPublisher) SendPasswordReset(ctx context.Context, n port.ResetNotification) error {
	payload := struct {
		UserID     int64     `json:"user_id"`
		Login      string    `json:"login"`
		Email      string    `json:"email"`
		ResetURL   string    `json:"reset_url"`
		ExpiresAt  time.Time `json:"expires_at"`
		NewAccount bool      `json:"new_account"`
	}{
		UserID:     n.UserID,
		Login:      n.Login,
		Email:      n.Email,
		ResetURL:   n.ResetURL,
		ExpiresAt:  n.ExpiresAt.UTC(),
		NewAccount: n.NewAccount,
	}

	return p.publish(ctx, "", NotificationPasswordReset, n.UserID, time.Time{}, payload)
}

// PublishSessionStarted publishes login.session.started events.
func (p *EventPublisher) PublishSessionStarted(ctx context.Context, event domain.SessionStartedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    int64     `json:"user_id"`
		StartedAt time.Time `json:"started_at"`
		ExpiresAt time.Time `json:"expires_at"`
		Remember  bool      `json:"remember"`
		IPAddress *string   `json:"ip_address,omitempty"`
		UserAgent *string   `json:"user_agent,omitempty"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		StartedAt: event.StartedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
		Remember:  event.Remember,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
	}

	return p.publish(ctx, event.EventID, EventSessionStarted, event.UserID, event.StartedAt, payload)
}

// PublishSessionEnded publishes login.session.ended events.
func (p *EventPublisher) PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    int64     `json:"user_id"`
		EndedAt   time.Time `json:"ended_at"`
		Reason    string    `json:"reason"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		EndedAt:   event.EndedAt.UTC(),
		Reason:    event.Reason,
	}

	return p.publish(ctx, event.EventID, EventSessionEnded, event.UserID, event.EndedAt, payload)
}

// PublishLoginFailed publishes login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		UserID      int64     `json:"user_id,omitempty"`
		MaskedLogin string    `json:"masked_login"`
		Reason      string    `json:"reason"`
		FailedAt    time.Time `json:"failed_at"`
		IPAddress   *string   `json:"ip_address,omitempty"`
	}{
		UserID:      event.UserID,
		MaskedLogin: event.MaskedLogin,
		Reason:      event.Reason,
		FailedAt:    event.FailedAt.UTC(),
		IPAddress:   event.IPAddress,
	}

	return p.publish(ctx, event.EventID, EventLoginFailed, event.UserID, event.FailedAt, payload)
}

// PublishUserRequestConfirmed publishes login.user.request.confirmed events.
func (p *EventPublisher) PublishUserRequestConfirmed(ctx context.Context, event domain.UserRequestConfirmedEvent) error {
	payload := struct {
		RequestID   int64     `json:"request_id"`
		UserID      int64     `json:"user_id,omitempty"`
		Action      string    `json:"action"`
		ConfirmedAt time.Time `json:"confirmed_at"`
	}{
		RequestID:   event.RequestID,
		UserID:      event.UserID,
		Action:      event.Action,
		ConfirmedAt: event.ConfirmedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserRequestConfirmed, event.UserID, event.ConfirmedAt, payload)
}

var (
	_ port.EventPublisher = (*EventPublisher)(nil)
	_ port.Notifier       = (*EventPublisher)(nil)
)
