package controllers

import (
	"strconv"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type TeacherController struct{}

// updateRatesRequest changes a teacher's live payment configuration. Existing
// earnings are unaffected; they carry their own rate snapshot.
type updateRatesRequest struct {
	PaymentType      *string          `json:"payment_type" validate:"omitempty,oneof=per_session per_student fixed hourly"`
	AmountPerSession *decimal.Decimal `json:"amount_per_session"`
	AmountPerStudent *decimal.Decimal `json:"amount_per_student"`
	FixedAmount      *decimal.Decimal `json:"fixed_amount"`
	HourlyRate       *decimal.Decimal `json:"hourly_rate"`
	Currency         *string          `json:"currency" validate:"omitempty,len=3"`
}

// GetTeachers lists the academy's teachers.
func (tc *TeacherController) GetTeachers(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	query := database.DB.Preload("User").Where("academy_id = ?", user.AcademyID)
	if c.Query("active") == "true" {
		query = query.Where("active = ?", true)
	}

	var teachers []models.Teacher
	if err := query.Order("last_name, first_name").Find(&teachers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch teachers"})
	}
	return c.JSON(fiber.Map{"teachers": teachers})
}

// GetTeacher returns one teacher profile with the live rate configuration.
func (tc *TeacherController) GetTeacher(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid teacher ID"})
	}

	var teacher models.Teacher
	if err := database.DB.Preload("User").First(&teacher, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher not found"})
	}
	return c.JSON(fiber.Map{"teacher": teacher})
}

// UpdateTeacherRates changes the live rates used for future earnings.
func (tc *TeacherController) UpdateTeacherRates(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid teacher ID"})
	}

	var teacher models.Teacher
	if err := database.DB.First(&teacher, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Teacher not found"})
	}

	var req updateRatesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	changes := map[string]interface{}{}
	if req.PaymentType != nil {
		switch *req.PaymentType {
		case "per_session", "per_student", "fixed", "hourly":
			changes["payment_type"] = *req.PaymentType
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment type"})
		}
	}
	applyRate := func(column string, v *decimal.Decimal) error {
		if v == nil {
			return nil
		}
		if v.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, column+" must not be negative")
		}
		changes[column] = *v
		return nil
	}
	for column, v := range map[string]*decimal.Decimal{
		"amount_per_session": req.AmountPerSession,
		"amount_per_student": req.AmountPerStudent,
		"fixed_amount":       req.FixedAmount,
		"hourly_rate":        req.HourlyRate,
	} {
		if err := applyRate(column, v); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.Currency != nil {
		changes["currency"] = *req.Currency
	}

	if len(changes) == 0 {
		return c.JSON(fiber.Map{"teacher": teacher})
	}

	if err := database.DB.Model(&teacher).Updates(changes).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update rates"})
	}

	middleware.LogActivity(c, "UPDATE", "teachers", teacher.ID, fiber.Map{
		"operation": "update_rates",
	})
	return c.JSON(fiber.Map{"teacher": teacher})
}
