package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds the account credentials and sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Twilio sends codes through the Twilio messaging API.
type Twilio struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewTwilio builds a Twilio sender.
func NewTwilio(cfg TwilioConfig, logger *slog.Logger) (*Twilio, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("missing twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Twilio{client: client, from: cfg.From, logger: logger}, nil
}

// SendOTP sends the code to the +91 number for phone.
func (t *Twilio) SendOTP(_ context.Context, phone, code string, validFor time.Duration) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(E164(phone))
	params.SetBody(OTPMessage(code, validFor))

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Info("otp sms sent", slog.String("provider", "twilio"), slog.String("sid", sid))
	return nil
}

// E164 formats a national 10-digit number as +91XXXXXXXXXX.
func E164(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+91" + NormalizePhone(phone)
}
