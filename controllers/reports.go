package controllers

import (
	"errors"
	"strconv"
	"time"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"
	"ilmhub_go/services"
	"ilmhub_go/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type ReportController struct{}

// GetSessionReports returns the finalized reports for one session.
func (rc *ReportController) GetSessionReports(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var reports []models.SessionReport
	if err := database.DB.Preload("HomeworkSubmission").
		Where("session_kind = ? AND session_id = ?", ref.Kind, ref.ID).
		Order("student_user_id").Find(&reports).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch reports"})
	}
	return c.JSON(fiber.Map{"reports": reports})
}

// GetStudentReports returns one student's report history, newest first.
func (rc *ReportController) GetStudentReports(c *fiber.Ctx) error {
	studentUserID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := database.DB.Where("student_user_id = ?", uint(studentUserID))
	if status := c.Query("attendance_status"); status != "" {
		query = query.Where("attendance_status = ?", status)
	}

	var total int64
	query.Model(&models.SessionReport{}).Count(&total)

	var reports []models.SessionReport
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&reports).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch reports"})
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// OverrideReport applies an admin correction to a finalized report.
func (rc *ReportController) OverrideReport(c *fiber.Ctx) error {
	admin, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	studentUserID, err := strconv.ParseUint(c.Params("user_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	var override services.ReportOverride
	if err := c.BodyParser(&override); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	report, err := services.OverrideReport(database.DB, ref, uint(studentUserID), admin.ID, override)
	if err != nil {
		var validationErr validator.ValidationErrors
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Report not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to override report"})
	}

	middleware.LogActivity(c, "UPDATE", "session_reports", report.ID, fiber.Map{
		"kind":            ref.Kind,
		"student_user_id": studentUserID,
		"reason":          override.Reason,
	})
	return c.JSON(fiber.Map{"report": report})
}

// SubmitHomework uploads a homework file and links it to the session report.
func (rc *ReportController) SubmitHomework(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Homework file is required"})
	}

	storageService, err := storage.NewStorageService()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Storage unavailable"})
	}

	fileURL, err := storageService.UploadFile(file, "homework", user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload homework"})
	}

	submission := models.HomeworkSubmission{
		StudentUserID: user.ID,
		SessionKind:   ref.Kind,
		SessionID:     ref.ID,
		SubmittedAt:   time.Now(),
		FileURL:       fileURL,
		Notes:         c.FormValue("notes"),
	}
	if err := services.AttachHomework(database.DB, &submission); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record submission"})
	}

	middleware.LogActivity(c, "CREATE", "homework_submissions", submission.ID, fiber.Map{
		"kind":       ref.Kind,
		"session_id": ref.ID,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"submission": submission})
}
