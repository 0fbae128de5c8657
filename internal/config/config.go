package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "Bonchi"
	defaultAppEnv         = "development"
	defaultPort           = "3001"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultOTPTTL         = 10 * time.Minute
	defaultSMSTimeout     = 10 * time.Second
	defaultRateLimit      = 5
	defaultFast2SMSURL    = "https://www.fast2sms.com/dev/bulkV2"

	// SMS providers accepted by SMS_PROVIDER.
	SMSProviderFast2SMS = "fast2sms"
	SMSProviderTwilio   = "twilio"
	SMSProviderLog      = "log"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	AutoMigrate    bool
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	RateLimit      int

	JWTSecret string
	TokenTTL  time.Duration
	OTPTTL    time.Duration

	SMS SMSConfig
}

// SMSConfig selects and configures the outbound SMS provider.
type SMSConfig struct {
	Provider string
	Timeout  time.Duration

	Fast2SMSEndpoint string
	Fast2SMSAPIKey   string
	DLTSenderID      string
	DLTEntityID      string
	DLTTemplateID    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

// Load reads configuration values from the environment and populates a Config instance.
// Values from .env files are applied first and never override the real environment.
func Load() (Config, error) {
	// Missing files are fine; the process environment is authoritative.
	for _, file := range []string{".env", "packages/shared/.env"} {
		_ = godotenv.Load(file)
	}

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         strings.ToLower(getEnv("APP_ENV", getEnv("NODE_ENV", defaultAppEnv))),
		Port:           getEnv("PORT", getEnv("API_PORT", defaultPort)),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		NATSURL:        os.Getenv("NATS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		TokenTTL:       defaultTokenTTL,
		OTPTTL:         defaultOTPTTL,
		RateLimit:      defaultRateLimit,
		SMS: SMSConfig{
			Provider:         strings.ToLower(getEnv("SMS_PROVIDER", SMSProviderFast2SMS)),
			Timeout:          defaultSMSTimeout,
			Fast2SMSEndpoint: getEnv("FAST2SMS_ENDPOINT", defaultFast2SMSURL),
			Fast2SMSAPIKey:   os.Getenv("FAST2SMS_API_KEY"),
			DLTSenderID:      os.Getenv("FAST2SMS_DLT_SENDER_ID"),
			DLTEntityID:      os.Getenv("FAST2SMS_DLT_ENTITY_ID"),
			DLTTemplateID:    os.Getenv("FAST2SMS_DLT_TEMPLATE_ID"),
			TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = getDuration("OTP_TTL", cfg.OTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.SMS.Timeout, err = getDuration("SMS_TIMEOUT", cfg.SMS.Timeout); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimit = n
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_MIGRATE: %w", err)
		}
		cfg.AutoMigrate = b
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.DatabaseURL == "" && !c.IsDevelopment() {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	switch c.SMS.Provider {
	case SMSProviderFast2SMS:
		if c.SMS.Fast2SMSAPIKey == "" {
			return fmt.Errorf("FAST2SMS_API_KEY must be set for SMS_PROVIDER=%s", c.SMS.Provider)
		}
	case SMSProviderTwilio:
		if c.SMS.TwilioAccountSID == "" || c.SMS.TwilioAuthToken == "" || c.SMS.TwilioFromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER must be set for SMS_PROVIDER=%s", c.SMS.Provider)
		}
	case SMSProviderLog:
		// The log sender prints OTP codes and is for local use only.
		if !c.IsDevelopment() {
			return fmt.Errorf("SMS_PROVIDER=%s is only allowed in development", c.SMS.Provider)
		}
	default:
		return fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider)
	}
	return nil
}

// IsDevelopment reports whether the app runs in a local/dev environment.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration accepts either a Go duration ("15m", "168h") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
