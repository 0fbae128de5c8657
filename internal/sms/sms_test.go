package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/bonchi-health/bonchi_api/internal/config"
	"github.com/bonchi-health/bonchi_api/internal/logging"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"9876543210":      "9876543210",
		"+91 98765 43210": "9876543210",
		"91-9876543210":   "9876543210",
		"919876543210":    "9876543210",
		" 98765-43210 ":   "9876543210",
		"+1 555 123 4567": "15551234567",
		"9198765432":      "9198765432",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOTPMessage(t *testing.T) {
	got := OTPMessage("123456", 10*time.Minute)
	want := "Your Bonchi OTP is: 123456. Valid for 10 minutes. Do not share this code."
	if got != want {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestE164(t *testing.T) {
	if got := E164("9876543210"); got != "+919876543210" {
		t.Fatalf("unexpected %q", got)
	}
	if got := E164("+919876543210"); got != "+919876543210" {
		t.Fatalf("unexpected %q", got)
	}
}

func newGateway(t *testing.T, handler http.HandlerFunc, cfg Fast2SMSConfig) *Fast2SMS {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.Endpoint = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	gw, err := NewFast2SMS(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw
}

func TestFast2SMSQuickRoute(t *testing.T) {
	var got map[string]any
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"return":true,"request_id":"req-1","message":["SMS sent successfully."]}`))
	}, Fast2SMSConfig{})

	if err := gw.SendOTP(context.Background(), "9876543210", "654321", 10*time.Minute); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["route"] != "q" || got["numbers"] != "9876543210" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["message"] != "Your Bonchi OTP is: 654321. Valid for 10 minutes. Do not share this code." {
		t.Fatalf("unexpected message %v", got["message"])
	}
	if flash, _ := got["flash"].(float64); flash != 0 {
		t.Fatalf("expected flash 0, got %v", got["flash"])
	}
}

func TestFast2SMSDLTRoute(t *testing.T) {
	var got map[string]any
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"return":true,"request_id":"req-2","message":["ok"]}`))
	}, Fast2SMSConfig{SenderID: "BONCHI", EntityID: "ent-1", TemplateID: "tpl-1"})

	if err := gw.SendOTP(context.Background(), "9876543210", "111222", 10*time.Minute); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["route"] != "dlt" || got["sender_id"] != "BONCHI" || got["template_id"] != "tpl-1" ||
		got["entity_id"] != "ent-1" || got["variables_values"] != "111222" || got["message"] != "" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestFast2SMSRejected(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return":false,"message":["Invalid Numbers"]}`))
	}, Fast2SMSConfig{})

	_, err := gw.SendQuick(context.Background(), QuickMessage{Message: "hi", Numbers: []string{"1"}})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestFast2SMSClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"return":false,"message":["Invalid Authentication"]}`))
	}, Fast2SMSConfig{MaxRetries: 3})

	if err := gw.SendOTP(context.Background(), "9876543210", "123456", time.Minute); err == nil {
		t.Fatalf("expected error for 401")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestFast2SMSServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, Fast2SMSConfig{MaxRetries: 2})

	if err := gw.SendOTP(context.Background(), "9876543210", "123456", time.Minute); err == nil {
		t.Fatalf("expected error for 502")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestFast2SMSTimeoutNotRetried(t *testing.T) {
	var calls atomic.Int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"return":true}`))
	}, Fast2SMSConfig{Timeout: 20 * time.Millisecond, MaxRetries: 2})

	if err := gw.SendOTP(context.Background(), "9876543210", "123456", time.Minute); err == nil {
		t.Fatalf("expected timeout error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestFast2SMSRetriesFailedDial(t *testing.T) {
	var dials atomic.Int32
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return":true,"request_id":"req-1","message":["ok"]}`))
	}, Fast2SMSConfig{MaxRetries: 2})

	dialer := &net.Dialer{}
	gw.client.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if dials.Add(1) < 3 {
				return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
			}
			return dialer.DialContext(ctx, network, addr)
		},
	}

	if err := gw.SendOTP(context.Background(), "9876543210", "123456", time.Minute); err != nil {
		t.Fatalf("expected success after failed dials, got %v", err)
	}
	if dials.Load() != 3 {
		t.Fatalf("expected 3 dials, got %d", dials.Load())
	}
}

func TestNewSelectsProvider(t *testing.T) {
	logger := logging.Discard()

	s, err := New(config.SMSConfig{Provider: config.SMSProviderLog}, logger)
	if err != nil {
		t.Fatalf("log provider: %v", err)
	}
	if _, ok := s.(*LogSender); !ok {
		t.Fatalf("expected *LogSender, got %T", s)
	}
	if err := s.SendOTP(context.Background(), "9876543210", "123456", time.Minute); err != nil {
		t.Fatalf("log send: %v", err)
	}

	s, err = New(config.SMSConfig{Provider: config.SMSProviderFast2SMS, Fast2SMSAPIKey: "k", Fast2SMSEndpoint: "http://localhost"}, logger)
	if err != nil {
		t.Fatalf("fast2sms provider: %v", err)
	}
	if _, ok := s.(*Fast2SMS); !ok {
		t.Fatalf("expected *Fast2SMS, got %T", s)
	}

	s, err = New(config.SMSConfig{Provider: config.SMSProviderTwilio, TwilioAccountSID: "AC1", TwilioAuthToken: "t", TwilioFromNumber: "+15550000000"}, logger)
	if err != nil {
		t.Fatalf("twilio provider: %v", err)
	}
	if _, ok := s.(*Twilio); !ok {
		t.Fatalf("expected *Twilio, got %T", s)
	}

	if _, err := New(config.SMSConfig{Provider: "carrier-pigeon"}, logger); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := New(config.SMSConfig{Provider: config.SMSProviderFast2SMS}, logger); err == nil {
		t.Fatalf("expected missing api key error")
	}
}
