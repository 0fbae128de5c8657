package sms

import (
	"fmt"
	"log/slog"

	"github.com/bonchi-health/bonchi_api/internal/config"
)

// New builds the Sender selected by cfg.Provider.
func New(cfg config.SMSConfig, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case config.SMSProviderFast2SMS:
		return NewFast2SMS(Fast2SMSConfig{
			Endpoint:   cfg.Fast2SMSEndpoint,
			APIKey:     cfg.Fast2SMSAPIKey,
			SenderID:   cfg.DLTSenderID,
			EntityID:   cfg.DLTEntityID,
			TemplateID: cfg.DLTTemplateID,
			Timeout:    cfg.Timeout,
			MaxRetries: 2,
		}, logger)
	case config.SMSProviderTwilio:
		return NewTwilio(TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFromNumber,
		}, logger)
	case config.SMSProviderLog:
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}
