package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bonchi-health/bonchi_api/internal/auth"
	"github.com/bonchi-health/bonchi_api/internal/middleware"
)

// ErrorHandler renders every error as the auth envelope. Unknown errors are
// logged and reported as a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var authErr *auth.Error
		if errors.As(err, &authErr) && authErr.Kind != auth.KindInternal {
			body := auth.Envelope{Success: false, Message: authErr.Message, Code: authErr.Code}
			if authErr.Detail != "" {
				body.Error = authErr.Detail
			}
			return c.Status(authErr.Kind.HTTPStatus()).JSON(body)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code < http.StatusInternalServerError {
			return c.Status(fiberErr.Code).JSON(auth.Envelope{Success: false, Message: fiberErr.Message})
		}

		logger.Error("unhandled error",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.Any("error", err))
		return c.Status(http.StatusInternalServerError).JSON(auth.Envelope{
			Success: false,
			Message: auth.ErrInternal.Message,
			Code:    auth.ErrInternal.Code,
		})
	}
}
