package controllers

import (
	"strconv"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"
	"ilmhub_go/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AttendanceController struct{}

type summaryOverrideRequest struct {
	Status string `json:"status" validate:"required,oneof=attended late left_early absent"`
	Reason string `json:"reason" validate:"required"`
}

// GetSessionEvents returns the raw attendance event log for one session.
func (ac *AttendanceController) GetSessionEvents(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	events, err := services.SessionEvents(database.DB, ref)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch events"})
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}

// GetSessionSummaries returns the derived per-participant summaries.
func (ac *AttendanceController) GetSessionSummaries(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var summaries []models.AttendanceSummary
	if err := database.DB.Where("session_kind = ? AND session_id = ?", ref.Kind, ref.ID).
		Order("user_id").Find(&summaries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch summaries"})
	}
	return c.JSON(fiber.Map{"summaries": summaries})
}

// RecomputeSummaries replays the event log into fresh summaries for every
// learner on the session. Manually overridden rows are left untouched.
func (ac *AttendanceController) RecomputeSummaries(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sess, err := services.FindSession(database.DB, ref)
	if err != nil {
		return respondCommandError(c, err)
	}
	settings := services.SettingsForSession(database.DB, sess.Core().AcademyID)

	summaries := make([]models.AttendanceSummary, 0)
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		for _, userID := range sess.LearnerIDs() {
			summary, err := services.RecomputeAndPersistSummary(tx, sess, userID, settings)
			if err != nil {
				return err
			}
			summaries = append(summaries, *summary)
		}
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to recompute summaries"})
	}

	middleware.LogActivity(c, "UPDATE", "attendance_summaries", ref.ID, fiber.Map{
		"kind":      ref.Kind,
		"operation": "recompute",
	})
	return c.JSON(fiber.Map{"summaries": summaries})
}

// OverrideSummary pins a participant's summary to an admin-chosen status.
func (ac *AttendanceController) OverrideSummary(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	var req summaryOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.AttendanceStatusAttended, models.AttendanceStatusLate, models.AttendanceStatusLeftEarly, models.AttendanceStatusAbsent:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid attendance status"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A reason is required for manual overrides"})
	}

	summary, err := services.OverrideSummary(database.DB, ref, uint(userID), req.Status, admin.ID, req.Reason)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "attendance_summaries", summary.ID, fiber.Map{
		"kind":    ref.Kind,
		"user_id": userID,
		"status":  req.Status,
	})
	return c.JSON(fiber.Map{"summary": summary})
}

// ClearSummaryOverride removes the manual pin and recomputes from the log.
func (ac *AttendanceController) ClearSummaryOverride(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	sess, err := services.FindSession(database.DB, ref)
	if err != nil {
		return respondCommandError(c, err)
	}
	settings := services.SettingsForSession(database.DB, sess.Core().AcademyID)

	summary, err := services.ClearSummaryOverride(database.DB, sess, uint(userID), settings)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "attendance_summaries", summary.ID, fiber.Map{
		"kind":      ref.Kind,
		"user_id":   userID,
		"operation": "clear_override",
	})
	return c.JSON(fiber.Map{"summary": summary})
}
