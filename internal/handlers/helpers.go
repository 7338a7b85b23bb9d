package handlers

import (
	"errors"
	"strings"

	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
	"github.com/backoffice/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func getRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestID").(string); ok {
		return id
	}
	return ""
}

// twoFactorError writes the envelope for an error returned by the
// two-factor service. Verification failures share one message whatever
// the cause; anything unrecognised is reported as a generic failure.
func twoFactorError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, twofactor.ErrInvalidMethod),
		errors.Is(err, twofactor.ErrMethodNotAllowed),
		errors.Is(err, twofactor.ErrPhoneRequired),
		errors.Is(err, twofactor.ErrInvalidPhone),
		errors.Is(err, twofactor.ErrInvalidSettings):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, twofactor.ErrAlreadyEnabled):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, twofactor.ErrInvalidCode):
		return utils.Error(c, fiber.StatusUnauthorized, twofactor.ErrInvalidCode.Error())
	case errors.Is(err, twofactor.ErrInvalidSession):
		return utils.Error(c, fiber.StatusUnauthorized, twofactor.ErrInvalidSession.Error())
	case errors.Is(err, twofactor.ErrTooManyResends):
		return utils.Error(c, fiber.StatusTooManyRequests, twofactor.ErrTooManyResends.Error())
	case errors.Is(err, twofactor.ErrInvalidPassword):
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	case errors.Is(err, twofactor.ErrNotSetUp):
		return utils.Error(c, fiber.StatusNotFound, twofactor.ErrNotSetUp.Error())
	case errors.Is(err, twofactor.ErrDeviceNotFound):
		return utils.Error(c, fiber.StatusNotFound, twofactor.ErrDeviceNotFound.Error())
	}

	logger.Error(action, err, map[string]interface{}{
		"path":       c.Path(),
		"request_id": getRequestID(c),
	})
	return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
}
