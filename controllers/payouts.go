package controllers

import (
	"errors"
	"strconv"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"
	"ilmhub_go/services"
	"ilmhub_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PayoutController struct{}

type rejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type disputeEarningRequest struct {
	Notes string `json:"notes" validate:"required"`
}

func respondPayoutError(c *fiber.Ctx, err error) error {
	var lockErr *services.PayoutLockViolationError
	if errors.As(err, &lockErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     lockErr.Error(),
			"payout_id": lockErr.PayoutID,
			"month":     lockErr.Month,
		})
	}
	if errors.Is(err, services.ErrPayoutRejected) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// GetEarnings lists earnings, filterable by teacher, month and payout state.
func (pc *PayoutController) GetEarnings(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	query := database.DB.Where("academy_id = ?", user.AcademyID)
	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
	}
	if month := c.Query("month"); month != "" {
		if _, err := utils.ParseMonth(month); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month must be YYYY-MM"})
		}
		query = query.Where("month = ?", month)
	}
	if c.Query("unassigned") == "true" {
		query = query.Where("payout_id IS NULL")
	}

	var earnings []models.TeacherEarning
	if err := query.Order("created_at DESC").Limit(500).Find(&earnings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch earnings"})
	}
	return c.JSON(fiber.Map{"earnings": earnings})
}

// DisputeEarning flags one earning so payout grouping skips it.
func (pc *PayoutController) DisputeEarning(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid earning ID"})
	}

	var req disputeEarningRequest
	if err := c.BodyParser(&req); err != nil || req.Notes == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Dispute notes are required"})
	}

	earning, err := services.FlagEarningDispute(database.DB, uint(id), req.Notes)
	if err != nil {
		return respondPayoutError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "teacher_earnings", earning.ID, fiber.Map{
		"operation": "dispute",
	})
	return c.JSON(fiber.Map{"earning": earning})
}

// GetPayouts lists monthly payouts.
func (pc *PayoutController) GetPayouts(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	query := database.DB.Preload("Teacher").Where("academy_id = ?", user.AcademyID)
	if month := c.Query("month"); month != "" {
		query = query.Where("month = ?", month)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
	}

	var payouts []models.TeacherPayout
	if err := query.Order("month DESC").Find(&payouts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch payouts"})
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

// GetPayout returns one payout with its constituent earnings.
func (pc *PayoutController) GetPayout(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout ID"})
	}

	var payout models.TeacherPayout
	if err := database.DB.Preload("Teacher").Preload("Earnings").First(&payout, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payout not found"})
	}
	return c.JSON(fiber.Map{"payout": payout})
}

// RunPayoutGrouping aggregates unassigned earnings for one month into payouts.
func (pc *PayoutController) RunPayoutGrouping(c *fiber.Ctx) error {
	month := c.Query("month")
	if _, err := utils.ParseMonth(month); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "month must be YYYY-MM"})
	}

	grouped, err := services.GroupMonthlyPayouts(database.DB, month)
	if err != nil {
		return respondPayoutError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "teacher_payouts", 0, fiber.Map{
		"operation": "group",
		"month":     month,
		"grouped":   grouped,
	})
	return c.JSON(fiber.Map{"month": month, "earnings_grouped": grouped})
}

// ApprovePayout locks a payout and all of its earnings. One-way.
func (pc *PayoutController) ApprovePayout(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout ID"})
	}

	payout, err := services.ApprovePayout(database.DB, uint(id), admin.ID)
	if err != nil {
		return respondPayoutError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "teacher_payouts", payout.ID, fiber.Map{
		"operation": "approve",
		"month":     payout.Month,
	})
	return c.JSON(fiber.Map{"payout": payout})
}

// RejectPayout sends a pending payout back; its earnings become groupable again.
func (pc *PayoutController) RejectPayout(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout ID"})
	}

	var req rejectPayoutRequest
	if err := c.BodyParser(&req); err != nil || req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A rejection reason is required"})
	}

	payout, err := services.RejectPayout(database.DB, uint(id), req.Reason)
	if err != nil {
		return respondPayoutError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "teacher_payouts", payout.ID, fiber.Map{
		"operation": "reject",
	})
	return c.JSON(fiber.Map{"payout": payout})
}

// ExportStatement renders the payout's Excel statement and uploads it to S3.
func (pc *PayoutController) ExportStatement(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payout ID"})
	}

	key, err := services.ExportPayoutStatement(database.DB, uint(id))
	if err != nil {
		return respondPayoutError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "teacher_payouts", uint(id), fiber.Map{
		"operation": "export_statement",
	})
	return c.JSON(fiber.Map{"statement_s3_key": key})
}
