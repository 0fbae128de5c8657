package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bonchi-health/bonchi_api/internal/auth"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (int64, bool)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token and
// stores the user id under auth.UserIDLocal.
func BearerAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return auth.ErrMissingToken
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if token == "" {
			return auth.ErrMissingToken
		}
		userID, ok := verifier.VerifyToken(token)
		if !ok {
			return auth.ErrInvalidToken
		}
		c.Locals(auth.UserIDLocal, userID)
		return c.Next()
	}
}
