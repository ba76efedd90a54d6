package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/auth"
	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

const (
	// LocalUserID is the key to retrieve the authenticated user id from context
	LocalUserID = "user_id"
	// LocalUsername is the key to retrieve the authenticated username from context
	LocalUsername = "username"
)

type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth validates the bearer JWT and stores the user in context. Browsers
// cannot set headers on websocket upgrades, so a token query parameter is
// accepted there as well.
func Auth(tokens TokenValidator, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return domain.ErrUnauthorized
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			logger.Debug("rejected token", "error", err, "path", c.Path())
			return domain.ErrUnauthorized
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)

		return c.Next()
	}
}

// GetUserID returns the authenticated user id set by Auth.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, ok := c.Locals(LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized
	}
	return userID, nil
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
