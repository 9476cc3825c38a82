package handlers

import (
	"errors"

	"permission_service/internal/service"

	"github.com/gofiber/fiber/v3"
)

// respondServiceError maps the service sentinels onto HTTP statuses.
func respondServiceError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrResourceNotFound),
		errors.Is(err, service.ErrRuleNotFound),
		errors.Is(err, service.ErrSharingNotFound),
		errors.Is(err, service.ErrInvitationNotFound),
		errors.Is(err, service.ErrTemplateNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrBuiltInRule),
		errors.Is(err, service.ErrInvitationClosed),
		errors.Is(err, service.ErrInvitationExpired):
		status = fiber.StatusConflict
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
