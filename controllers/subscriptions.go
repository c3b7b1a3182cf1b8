package controllers

import (
	"strconv"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"

	"github.com/gofiber/fiber/v2"
)

type SubscriptionController struct{}

type createSubscriptionRequest struct {
	StudentID     uint   `json:"student_id" validate:"required"`
	PlanName      string `json:"plan_name"`
	TotalSessions int    `json:"total_sessions" validate:"required,min=1,max=500"`
}

// GetSubscriptions lists subscriptions, optionally filtered by student or status.
func (sc *SubscriptionController) GetSubscriptions(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	query := database.DB.Preload("Student").Where("academy_id = ?", user.AcademyID)
	if studentID := c.Query("student_id"); studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var subscriptions []models.Subscription
	if err := query.Order("created_at DESC").Find(&subscriptions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch subscriptions"})
	}
	return c.JSON(fiber.Map{"subscriptions": subscriptions})
}

// GetSubscription returns one subscription with its counters.
func (sc *SubscriptionController) GetSubscription(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subscription ID"})
	}

	var subscription models.Subscription
	if err := database.DB.Preload("Student").First(&subscription, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subscription not found"})
	}
	return c.JSON(fiber.Map{"subscription": subscription})
}

// CreateSubscription opens a new session package for a student.
func (sc *SubscriptionController) CreateSubscription(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.StudentID == 0 || req.TotalSessions < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id and a positive total_sessions are required"})
	}

	var student models.Student
	if err := database.DB.First(&student, req.StudentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Student not found"})
	}

	subscription := models.Subscription{
		StudentID:         req.StudentID,
		AcademyID:         user.AcademyID,
		PlanName:          req.PlanName,
		Status:            "active",
		TotalSessions:     req.TotalSessions,
		SessionsRemaining: req.TotalSessions,
	}
	if err := database.DB.Create(&subscription).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create subscription"})
	}

	middleware.LogActivity(c, "CREATE", "subscriptions", subscription.ID, fiber.Map{
		"student_id":     req.StudentID,
		"total_sessions": req.TotalSessions,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subscription": subscription})
}

// PauseSubscription suspends scheduling against a package.
func (sc *SubscriptionController) PauseSubscription(c *fiber.Ctx) error {
	return sc.setStatus(c, "paused", []string{"active"})
}

// ResumeSubscription reactivates a paused package.
func (sc *SubscriptionController) ResumeSubscription(c *fiber.Ctx) error {
	return sc.setStatus(c, "active", []string{"paused"})
}

func (sc *SubscriptionController) setStatus(c *fiber.Ctx, to string, from []string) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid subscription ID"})
	}

	result := database.DB.Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", uint(id), from).
		Update("status", to)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update subscription"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Subscription is not in a state that allows this change"})
	}

	var subscription models.Subscription
	if err := database.DB.First(&subscription, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subscription not found"})
	}

	middleware.LogActivity(c, "UPDATE", "subscriptions", subscription.ID, fiber.Map{"status": to})
	return c.JSON(fiber.Map{"subscription": subscription})
}
