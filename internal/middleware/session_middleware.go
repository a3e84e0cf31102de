package middleware

import (
	"context"
	"strings"

	"cardapio/internal/models"
	"cardapio/internal/session"
	"cardapio/pkg/supabase"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const sessionKey = "session"

// SessionSource resolves an access token to a live session.
type SessionSource interface {
	CurrentSession(ctx context.Context, accessToken string) (*models.Session, error)
}

// SessionRequired is a Fiber middleware that admits only requests carrying
// the bearer token of a live session. The session entry is stored in the
// Fiber context and the token in the user context, so backend calls made
// while handling the request run as the signed-in user.
func SessionRequired(auth SessionSource, sessions *session.Manager, log *logrus.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}
		token := parts[1]

		s, err := auth.CurrentSession(c.UserContext(), token)
		if err != nil {
			log.WithError(err).Debug("session rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}
		var entry *session.Entry
		if s != nil {
			entry = sessions.Get(s)
		}
		if entry == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Session has ended",
			})
		}

		c.Locals(sessionKey, entry)
		c.SetUserContext(supabase.WithAccessToken(c.UserContext(), token))

		return c.Next()
	}
}

// Session returns the entry stored by SessionRequired, or nil on routes
// without it.
func Session(c *fiber.Ctx) *session.Entry {
	e, _ := c.Locals(sessionKey).(*session.Entry)
	return e
}
