package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects published by the auth service.
const (
	SubjectUserRegistered = "auth.user.registered"
	SubjectUserVerified   = "auth.user.verified"
)

// UserEvent describes a change to a member account.
type UserEvent struct {
	UserID     int64     `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	AuthType   string    `json:"authType"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// NATSPublisher publishes JSON-encoded events on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) Publish(_ context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// LoggerPublisher writes events to the structured logger. Used when NATS is not configured.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

func (p *LoggerPublisher) Publish(ctx context.Context, subject string, event any) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.InfoContext(ctx, "event", slog.String("subject", subject), slog.Any("payload", event))
	return nil
}
