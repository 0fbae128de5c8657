package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bonchi-health/bonchi_api/internal/auth"
	"github.com/bonchi-health/bonchi_api/internal/config"
	"github.com/bonchi-health/bonchi_api/internal/events"
	"github.com/bonchi-health/bonchi_api/internal/identity"
	"github.com/bonchi-health/bonchi_api/internal/middleware"
	"github.com/bonchi-health/bonchi_api/internal/otp"
	"github.com/bonchi-health/bonchi_api/internal/sms"
	"github.com/bonchi-health/bonchi_api/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	SMS    sms.Sender
	Events events.Publisher
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.DB == nil && !d.Cfg.IsDevelopment() {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.SMS == nil {
		return fmt.Errorf("sms sender is required")
	}
	if d.Events == nil {
		d.Events = events.NewLoggerPublisher(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete}, ","),
		AllowHeaders:  "Content-Type, Authorization, Idempotency-Key, X-Request-ID",
		ExposeHeaders: "X-Request-ID, Retry-After",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		users    identity.Repository
		sessions otp.Repository
	)
	if d.DB != nil {
		users = identity.NewPostgresRepository(d.DB)
		sessions = otp.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set; using in-memory repositories")
		users = identity.NewMemoryRepository()
		sessions = otp.NewMemoryRepository()
	}

	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	authSvc := auth.NewService(auth.Deps{
		Users:    users,
		Sessions: sessions,
		SMS:      d.SMS,
		Events:   d.Events,
		Tokens:   auth.NewTokenIssuer(d.Cfg.JWTSecret, d.Cfg.TokenTTL, nil),
		Logger:   d.Logger,
		OTPTTL:   d.Cfg.OTPTTL,
	})
	authHandler := auth.NewHandler(authSvc, validator)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, authHandler, AuthMiddleware{
		LoginLimit: middleware.RateLimit(d.Cache, middleware.RateLimitConfig{
			Name:    "login",
			Max:     d.Cfg.RateLimit,
			Window:  time.Minute,
			Key:     middleware.BodyField("email", strings.ToLower),
			Message: "Too many login attempts, try again later",
		}, d.Logger),
		OTPLimit: middleware.RateLimit(d.Cache, middleware.RateLimitConfig{
			Name:    "otp",
			Max:     d.Cfg.RateLimit,
			Window:  time.Minute,
			Key:     middleware.BodyField("phone", sms.NormalizePhone),
			Message: "Too many OTP requests, try again later",
		}, d.Logger),
		Idempotency: middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		Bearer:      middleware.BearerAuth(authSvc),
	})

	return nil
}
