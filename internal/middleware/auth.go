package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/auth"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/pkg/response"
)

// Authenticate validates the bearer token and stores the caller identity
func Authenticate(a *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := a.Authenticate(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				return response.Unauthorized(c, "Missing authorization header")
			case errors.Is(err, auth.ErrMalformed):
				return response.Unauthorized(c, "Invalid authorization header format")
			case errors.Is(err, auth.ErrNotConfigured):
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, id.UserID, id.Email, id.Name)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, userID, email, name string) {
	c.Locals("userId", userID)
	c.Locals("email", email)
	c.Locals("name", name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}
