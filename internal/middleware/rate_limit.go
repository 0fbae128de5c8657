package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:"

// RateLimitConfig describes one fixed-window limiter.
type RateLimitConfig struct {
	// Name namespaces the Redis keys, e.g. "login".
	Name   string
	Max    int
	Window time.Duration
	// Key derives the bucket from the request. An empty key falls back to the client IP.
	Key     func(c *fiber.Ctx) string
	Message string
}

// RateLimit counts requests per key in Redis with INCR/EXPIRE. Without Redis,
// or when Redis errors, requests pass through.
func RateLimit(cache *redis.Client, cfg RateLimitConfig, logger *slog.Logger) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Message == "" {
		cfg.Message = "Too many requests, try again later"
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := ""
		if cfg.Key != nil {
			subject = strings.TrimSpace(cfg.Key(c))
		}
		if subject == "" {
			subject = c.IP()
		}
		key := rateLimitPrefix + cfg.Name + ":" + subject

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("rate limit unavailable", slog.String("limiter", cfg.Name), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, cfg.Window)
		}
		if cnt > int64(cfg.Max) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, formatSeconds(ttl))
			}
			return fiber.NewError(http.StatusTooManyRequests, cfg.Message)
		}
		return c.Next()
	}
}

// BodyField builds a Key func that reads a top-level string field from a JSON
// body and passes it through normalize.
func BodyField(field string, normalize func(string) string) func(*fiber.Ctx) string {
	return func(c *fiber.Ctx) string {
		var body map[string]any
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return ""
		}
		v, _ := body[field].(string)
		if normalize != nil {
			v = normalize(v)
		}
		return v
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
