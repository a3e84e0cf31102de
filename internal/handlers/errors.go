package handlers

import (
	"errors"

	"cardapio/internal/repositories"
	"cardapio/internal/services"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// parseBody decodes and validates the request body into dst. On failure
// the 400 response has already been written and handled is true.
func parseBody(c *fiber.Ctx, v *validator.Validate, dst interface{}) (handled bool, err error) {
	if err := c.BodyParser(dst); err != nil {
		return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := v.Struct(dst); err != nil {
		return true, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  validation.Messages(err),
		})
	}
	return false, nil
}

// writeError maps service errors to HTTP responses.
func writeError(c *fiber.Ctx, log *logrus.Entry, message string, err error) error {
	var (
		verr   *services.ValidationError
		aerr   *services.AuthError
		werr   *services.RemoteWriteError
		uerr   *services.UploadError
		decErr *services.DecodeError
	)

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  verr.Fields,
		})
	case errors.As(err, &aerr):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Authentication failed",
			"error":   err.Error(),
		})
	case errors.Is(err, services.ErrEmptyCart):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, services.ErrSubmissionInProgress), errors.Is(err, services.ErrEmailTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.Is(err, repositories.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	case errors.As(err, &werr):
		log.WithError(err).WithField("kind", werr.Kind).Error(message)
		body := fiber.Map{
			"message": message,
			"error":   err.Error(),
			"kind":    werr.Kind,
		}
		if werr.Kind == services.KindOrderItemsPersist {
			body["order_id"] = werr.OrderID
			body["orphaned"] = werr.Orphaned
		}
		return c.Status(fiber.StatusBadGateway).JSON(body)
	case errors.As(err, &uerr), errors.As(err, &decErr):
		log.WithError(err).Error(message)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	}

	log.WithError(err).Error(message)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
