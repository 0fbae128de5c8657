package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/bonchi-health/bonchi_api/internal/config"
	"github.com/bonchi-health/bonchi_api/internal/logging"
	"github.com/bonchi-health/bonchi_api/internal/routes"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) SendOTP(_ context.Context, phone, code string, _ time.Duration) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[phone] = code
	return nil
}

func (i *inbox) code(phone string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[phone]
}

func newServer(t *testing.T) (*httptest.Server, *inbox) {
	t.Helper()
	logger := logging.Discard()
	sender := &inbox{codes: map[string]string{}}
	app := fiber.New(fiber.Config{ErrorHandler: routes.ErrorHandler(logger)})
	cfg := config.Config{
		AppEnv:    "test",
		JWTSecret: "client-secret",
		TokenTTL:  time.Hour,
		OTPTTL:    10 * time.Minute,
		RateLimit: 5,
	}
	if err := routes.Setup(app, routes.Deps{Cfg: cfg, SMS: sender, Logger: logger}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)
	return srv, sender
}

func TestEmailLoginStoresToken(t *testing.T) {
	srv, _ := newServer(t)
	ctx := context.Background()
	c := New(srv.URL, nil)

	_, err := c.RegisterEmail(ctx, "client@example.com", "s3cret-pass", Profile{
		FirstName: "Meera", District: "Kochi", State: "Kerala", Gender: "FEMALE",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.IsAuthenticated() {
		t.Fatalf("logout should clear the token")
	}
	if _, err := c.Me(ctx); err == nil {
		t.Fatalf("expected me to fail without a token")
	}

	if _, err := c.LoginEmail(ctx, "client@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if user.Email == nil || *user.Email != "client@example.com" || user.Name != "Meera" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestLoginFailureReturnsAPIError(t *testing.T) {
	srv, _ := newServer(t)
	c := New(srv.URL, nil)

	_, err := c.LoginEmail(context.Background(), "nobody@example.com", "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid email or password" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if c.IsAuthenticated() {
		t.Fatalf("failed login must not store a token")
	}
}

func TestOTPFlowUsesRememberedSession(t *testing.T) {
	srv, sender := newServer(t)
	ctx := context.Background()
	c := New(srv.URL, NewFileStore(filepath.Join(t.TempDir(), "session.json")))

	if _, err := c.VerifyOTP(ctx, "9876543210", "123456", nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	id, err := c.SendOTP(ctx, "9876543210")
	if err != nil {
		t.Fatalf("send otp: %v", err)
	}
	if c.SessionID() != id {
		t.Fatalf("session id not remembered")
	}

	env, err := c.VerifyOTP(ctx, "9876543210", sender.code("9876543210"), &Profile{
		FirstName: "Arjun", District: "Mysuru", State: "Karnataka", Gender: "MALE",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if env.Data.User.AuthType != "SMS_OTP" || !env.Data.User.IsVerified {
		t.Fatalf("unexpected user %+v", env.Data.User)
	}
	if c.SessionID() != 0 {
		t.Fatalf("session id should be cleared after verification")
	}
	if !c.IsAuthenticated() {
		t.Fatalf("token should be stored")
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	empty, err := store.Load()
	if err != nil || empty.Token != "" {
		t.Fatalf("missing file should load empty session, got %+v %v", empty, err)
	}
	if err := store.Save(Session{Token: "abc"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
	got, err := store.Load()
	if err != nil || got.Token != "abc" {
		t.Fatalf("load: %+v %v", got, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
}
