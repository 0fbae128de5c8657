package sms

import (
	"context"
	"log/slog"
	"time"
)

// LogSender writes the outgoing message to the logger instead of a gateway.
// It exposes codes in plain text and is only wired in development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender builds a development sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error {
	s.logger.InfoContext(ctx, "otp sms (development)",
		slog.String("phone", phone),
		slog.String("body", OTPMessage(code, validFor)))
	return nil
}
