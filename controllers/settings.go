package controllers

import (
	"errors"

	"ilmhub_go/middleware"
	"ilmhub_go/services"

	"github.com/gofiber/fiber/v2"
)

type SettingsController struct {
	service *services.SettingsService
}

func NewSettingsController() *SettingsController {
	return &SettingsController{service: services.NewSettingsService()}
}

// GetSettings returns the caller's academy tunables, creating defaults on
// first access.
func (sc *SettingsController) GetSettings(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	settings, err := sc.service.GetOrCreate(user.AcademyID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load settings"})
	}
	return c.JSON(fiber.Map{"settings": settings})
}

// UpdateSettings applies partial changes to the academy tunables.
func (sc *SettingsController) UpdateSettings(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	var req services.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	settings, err := sc.service.Update(user.AcademyID, req)
	if err != nil {
		if errors.Is(err, services.ErrSettingsValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update settings"})
	}

	middleware.LogActivity(c, "UPDATE", "academy_settings", settings.ID, fiber.Map{
		"academy_id": user.AcademyID,
	})
	return c.JSON(fiber.Map{"settings": settings})
}
