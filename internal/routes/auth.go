package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bonchi-health/bonchi_api/internal/auth"
)

// AuthMiddleware holds the per-route middleware of the auth group.
type AuthMiddleware struct {
	LoginLimit  fiber.Handler
	OTPLimit    fiber.Handler
	Idempotency fiber.Handler
	Bearer      fiber.Handler
}

// RegisterAuthRoutes wires authentication endpoints under /auth.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, mw AuthMiddleware) {
	group := r.Group("/auth")
	group.Post("/register/email", mw.Idempotency, h.Register)
	group.Post("/login/email", mw.LoginLimit, h.Login)
	group.Post("/otp/send", mw.OTPLimit, h.SendOTP)
	group.Post("/otp/verify", h.VerifyOTP)
	group.Get("/me", mw.Bearer, h.Me)
	group.Post("/logout", h.Logout)
}
