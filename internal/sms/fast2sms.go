package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	routeQuick = "q"
	routeDLT   = "dlt"

	maxResponseBytes = 64 << 10
)

// ErrRejected is returned when Fast2SMS answers but refuses the message.
var ErrRejected = errors.New("fast2sms rejected message")

// Fast2SMSConfig holds the gateway credentials and optional DLT registration.
type Fast2SMSConfig struct {
	Endpoint   string
	APIKey     string
	SenderID   string
	EntityID   string
	TemplateID string
	Timeout    time.Duration
	// MaxRetries bounds retries of failed dials. Anything that may have reached
	// the gateway is never retried, so a code is not sent twice.
	MaxRetries uint64
}

// QuickMessage is a free-text message sent on the quick route.
type QuickMessage struct {
	Message string
	Numbers []string
}

// DLTMessage is a message rendered from a registered DLT template.
type DLTMessage struct {
	SenderID   string
	EntityID   string
	TemplateID string
	Variables  []string
	Numbers    []string
}

// Response is the gateway's answer to a send request.
type Response struct {
	Return    bool     `json:"return"`
	RequestID string   `json:"request_id"`
	Message   []string `json:"message"`
}

type quickPayload struct {
	Route   string `json:"route"`
	Message string `json:"message"`
	Flash   int    `json:"flash"`
	Numbers string `json:"numbers"`
}

type dltPayload struct {
	Route           string `json:"route"`
	SenderID        string `json:"sender_id"`
	Message         string `json:"message"`
	EntityID        string `json:"entity_id"`
	TemplateID      string `json:"template_id"`
	VariablesValues string `json:"variables_values"`
	Flash           int    `json:"flash"`
	Numbers         string `json:"numbers"`
}

// Fast2SMS talks to the Fast2SMS bulk API.
type Fast2SMS struct {
	cfg    Fast2SMSConfig
	client *http.Client
	logger *slog.Logger
}

// NewFast2SMS builds a gateway client. A zero timeout falls back to ten seconds.
func NewFast2SMS(cfg Fast2SMSConfig, logger *slog.Logger) (*Fast2SMS, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fast2sms api key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("fast2sms endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fast2SMS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// SendOTP sends the code on the DLT route when a template is configured, otherwise as quick text.
func (f *Fast2SMS) SendOTP(ctx context.Context, phone, code string, validFor time.Duration) error {
	var (
		resp Response
		err  error
	)
	if f.cfg.TemplateID != "" {
		resp, err = f.SendDLT(ctx, DLTMessage{
			SenderID:   f.cfg.SenderID,
			EntityID:   f.cfg.EntityID,
			TemplateID: f.cfg.TemplateID,
			Variables:  []string{code},
			Numbers:    []string{phone},
		})
	} else {
		resp, err = f.SendQuick(ctx, QuickMessage{
			Message: OTPMessage(code, validFor),
			Numbers: []string{phone},
		})
	}
	if err != nil {
		return err
	}
	f.logger.Info("otp sms sent", slog.String("provider", "fast2sms"), slog.String("request_id", resp.RequestID))
	return nil
}

// SendQuick sends free text on the quick route.
func (f *Fast2SMS) SendQuick(ctx context.Context, msg QuickMessage) (Response, error) {
	return f.send(ctx, quickPayload{
		Route:   routeQuick,
		Message: msg.Message,
		Numbers: strings.Join(msg.Numbers, ","),
	})
}

// SendDLT sends a registered template with its variables joined by "|".
func (f *Fast2SMS) SendDLT(ctx context.Context, msg DLTMessage) (Response, error) {
	return f.send(ctx, dltPayload{
		Route:           routeDLT,
		SenderID:        msg.SenderID,
		EntityID:        msg.EntityID,
		TemplateID:      msg.TemplateID,
		VariablesValues: strings.Join(msg.Variables, "|"),
		Numbers:         strings.Join(msg.Numbers, ","),
	})
}

func (f *Fast2SMS) send(ctx context.Context, payload any) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode fast2sms payload: %w", err)
	}

	var out Response
	backoff := retry.WithMaxRetries(f.cfg.MaxRetries, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err = f.post(ctx, body)
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return out, nil
}

func (f *Fast2SMS) post(ctx context.Context, body []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build fast2sms request: %w", err)
	}
	req.Header.Set("authorization", f.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		err = fmt.Errorf("fast2sms request: %w", err)
		if isDialError(err) {
			return Response{}, retry.RetryableError(err)
		}
		return Response{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read fast2sms response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Response{}, fmt.Errorf("fast2sms status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, fmt.Errorf("decode fast2sms response: %w", err)
	}
	if !out.Return {
		return out, fmt.Errorf("%w: %s", ErrRejected, strings.Join(out.Message, "; "))
	}
	return out, nil
}

// isDialError reports whether the connection to the gateway was never made.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
