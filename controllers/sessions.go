package controllers

import (
	"errors"
	"strconv"
	"time"

	"ilmhub_go/database"
	"ilmhub_go/middleware"
	"ilmhub_go/models"
	"ilmhub_go/services"
	"ilmhub_go/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SessionController struct{}

// CreateSessionRequest creates one session occurrence of any kind. Exactly
// one of student_id, circle_id, course_id must match the kind.
type CreateSessionRequest struct {
	Kind            string `json:"kind" validate:"required,oneof=individual circle course"`
	TeacherID       uint   `json:"teacher_id" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=15,max=480"`
	Notes           string `json:"notes"`
	StudentID       uint   `json:"student_id"`
	SubscriptionID  *uint  `json:"subscription_id"`
	CircleID        uint   `json:"circle_id"`
	CourseID        uint   `json:"course_id"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Intent      string    `json:"intent" validate:"required,oneof=teacher student system"`
}

type cancelRequest struct {
	CancellationType string `json:"cancellation_type" validate:"required,oneof=teacher student system"`
	Reason           string `json:"reason"`
}

// sessionRefFromParams parses the :kind/:id pair shared by all session routes.
func sessionRefFromParams(c *fiber.Ctx) (models.SessionRef, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return models.SessionRef{}, errors.New("invalid session id")
	}
	ref := models.SessionRef{Kind: c.Params("kind"), ID: uint(id)}
	if !ref.Valid() {
		return models.SessionRef{}, errors.New("unknown session kind")
	}
	return ref, nil
}

// respondCommandError maps the engine's typed errors onto HTTP statuses.
func respondCommandError(c *fiber.Ctx, err error) error {
	var transitionErr *services.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": transitionErr.Error(),
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	}
	var scheduleErr *services.InvalidScheduleError
	if errors.As(err, &scheduleErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": scheduleErr.Error(),
		})
	}
	var finalizedErr *services.ReportFinalizedError
	if errors.As(err, &finalizedErr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": finalizedErr.Error(),
		})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func respondCommandResult(c *fiber.Ctx, result *services.CommandResult) error {
	payload := fiber.Map{"session": utils.ToSessionDTO(result.Session)}
	if len(result.Warnings) > 0 {
		payload["warnings"] = result.Warnings
	}
	return c.JSON(payload)
}

// CreateSession creates an unscheduled session occurrence.
func (sc *SessionController) CreateSession(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User not found"})
	}

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	core := models.SessionCore{
		AcademyID:       user.AcademyID,
		TeacherID:       req.TeacherID,
		DurationMinutes: req.DurationMinutes,
		Status:          models.SessionStatusUnscheduled,
		Notes:           req.Notes,
	}
	if core.DurationMinutes == 0 {
		core.DurationMinutes = 60
	}

	var sess models.Session
	switch req.Kind {
	case models.SessionKindIndividual:
		if req.StudentID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "student_id is required for individual sessions"})
		}
		sess = &models.IndividualSession{SessionCore: core, StudentID: req.StudentID, SubscriptionID: req.SubscriptionID}
	case models.SessionKindCircle:
		if req.CircleID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "circle_id is required for circle sessions"})
		}
		sess = &models.CircleSession{SessionCore: core, CircleID: req.CircleID}
	case models.SessionKindCourse:
		if req.CourseID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "course_id is required for course sessions"})
		}
		sess = &models.CourseSession{SessionCore: core, CourseID: req.CourseID}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown session kind"})
	}

	if err := database.DB.Create(sess).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create session"})
	}

	middleware.LogActivity(c, "CREATE", "sessions", sess.GetID(), fiber.Map{
		"kind":       req.Kind,
		"teacher_id": req.TeacherID,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": utils.ToSessionDTO(sess)})
}

// GetSession returns one session with its participant roster.
func (sc *SessionController) GetSession(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sess, err := services.FindSession(database.DB, ref)
	if err != nil {
		return respondCommandError(c, err)
	}
	return c.JSON(fiber.Map{"session": utils.ToSessionDTO(sess)})
}

// GetSessions lists sessions of one kind with optional filters.
func (sc *SessionController) GetSessions(c *fiber.Ctx) error {
	kind := c.Params("kind")
	model := map[string]interface{}{
		models.SessionKindIndividual: &[]models.IndividualSession{},
		models.SessionKindCircle:     &[]models.CircleSession{},
		models.SessionKindCourse:     &[]models.CourseSession{},
	}[kind]
	if model == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown session kind"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := database.DB.Model(model)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if teacherID := c.Query("teacher_id"); teacherID != "" {
		query = query.Where("teacher_id = ?", teacherID)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query = query.Where("scheduled_at >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query = query.Where("scheduled_at < ?", t)
		}
	}

	var total int64
	query.Count(&total)

	if err := query.Order("scheduled_at DESC").Offset(offset).Limit(limit).Find(model).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch sessions"})
	}

	return c.JSON(fiber.Map{
		"sessions": model,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// ScheduleSession places an unscheduled session onto the calendar.
func (sc *SessionController) ScheduleSession(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at is required"})
	}

	result, err := services.ScheduleSession(database.DB, ref, req.ScheduledAt)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "sessions", ref.ID, fiber.Map{
		"kind":         ref.Kind,
		"operation":    "schedule",
		"scheduled_at": req.ScheduledAt,
	})
	return respondCommandResult(c, result)
}

// RescheduleSession moves a scheduled or ready session to a new time.
func (sc *SessionController) RescheduleSession(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req rescheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledAt.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at is required"})
	}
	if req.Intent == "" {
		req.Intent = models.CancellationByTeacher
	}

	result, err := services.RescheduleSession(database.DB, ref, req.ScheduledAt, req.Intent)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "sessions", ref.ID, fiber.Map{
		"kind":         ref.Kind,
		"operation":    "reschedule",
		"scheduled_at": req.ScheduledAt,
		"intent":       req.Intent,
	})
	return respondCommandResult(c, result)
}

// CancelSession cancels a session and runs the terminal pipeline.
func (sc *SessionController) CancelSession(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := services.CancelSession(database.DB, ref, req.CancellationType, req.Reason)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "sessions", ref.ID, fiber.Map{
		"kind":              ref.Kind,
		"operation":         "cancel",
		"cancellation_type": req.CancellationType,
	})
	return respondCommandResult(c, result)
}

// EndSession completes an ongoing session and runs the terminal pipeline.
func (sc *SessionController) EndSession(c *fiber.Ctx) error {
	ref, err := sessionRefFromParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := services.EndSession(database.DB, ref)
	if err != nil {
		return respondCommandError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "sessions", ref.ID, fiber.Map{
		"kind":      ref.Kind,
		"operation": "end",
	})
	return respondCommandResult(c, result)
}
