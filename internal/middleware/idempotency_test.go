package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bonchi-health/bonchi_api/internal/logging"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache, mr
}

func setupIdempotencyApp(t *testing.T, status int) (*fiber.App, *atomic.Int32) {
	t.Helper()
	cache, _ := newRedis(t)
	calls := &atomic.Int32{}
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	handler := func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(status).JSON(fiber.Map{"call": n})
	}
	app.Post("/resource", handler)
	app.Post("/other", handler)
	return app, calls
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	return postBody(t, app, path, key, "{}")
}

func postBody(t *testing.T, app *fiber.App, path, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(respBody)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, calls := setupIdempotencyApp(t, fiber.StatusCreated)

	post(t, app, "/resource", "")
	post(t, app, "/resource", "")
	if calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls.Load())
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupIdempotencyApp(t, fiber.StatusCreated)

	status, first := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status, second := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls := setupIdempotencyApp(t, fiber.StatusCreated)

	status, first := postBody(t, app, "/resource", "pay-1", `{"amount":1}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status, second := postBody(t, app, "/resource", "pay-1", `{"amount":2}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", fiber.StatusUnprocessableEntity, status)
	}
	if second == first {
		t.Fatalf("stored response must not be served for a different body")
	}
	status, _ = postBody(t, app, "/resource", "pay-1", `{"amount":1}`)
	if status != fiber.StatusCreated || calls.Load() != 1 {
		t.Fatalf("expected replay for matching body, got %d after %d calls", status, calls.Load())
	}
}

func TestIdempotencyKeysAreScopedPerRoute(t *testing.T) {
	app, calls := setupIdempotencyApp(t, fiber.StatusOK)

	post(t, app, "/resource", "shared")
	post(t, app, "/other", "shared")
	if calls.Load() != 2 {
		t.Fatalf("expected separate routes to run separately, ran %d", calls.Load())
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, calls := setupIdempotencyApp(t, fiber.StatusBadRequest)

	post(t, app, "/resource", "retry-me")
	post(t, app, "/resource", "retry-me")
	if calls.Load() != 2 {
		t.Fatalf("expected failed request to be retried, ran %d", calls.Load())
	}
}

func TestIdempotencyWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Use(Idempotency(nil, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	if status, _ := post(t, app, "/resource", "k"); status != fiber.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", status)
	}
}
