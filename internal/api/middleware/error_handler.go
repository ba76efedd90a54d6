package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// ErrorHandler renders every error as {"error":{"code","message"}}.
// Only the stable code and the public message reach the client; wrapped
// causes are logged for 5xx.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code := "HTTP_ERROR"
			if fiberErr.Code == fiber.StatusRequestEntityTooLarge {
				code = domain.ErrImageTooLarge.Code
			}
			return writeError(c, fiberErr.Code, code, fiberErr.Message)
		}

		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			logger.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Path()),
				slog.Any("request_id", c.Locals("requestid")),
			)
			return writeError(c, fiber.StatusInternalServerError, domain.ErrInternal.Code, domain.ErrInternal.Message)
		}

		if appErr.StatusCode >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("code", appErr.Code),
				slog.Any("error", err),
				slog.String("path", c.Path()),
				slog.Any("request_id", c.Locals("requestid")),
			)
		}
		return writeError(c, appErr.StatusCode, appErr.Code, appErr.Message)
	}
}

func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}
