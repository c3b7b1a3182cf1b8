package utils

import (
	"strings"
	"time"

	"ilmhub_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
}

type NotificationDTO struct {
	ID        uint       `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	UserID    uint       `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	User      UserShort  `json:"user"`
}

// ToUserShort maps a user to the compact form, preferring the profile name
// over the login name. Caller should preload Student/Teacher when possible.
func ToUserShort(u models.User) UserShort {
	us := UserShort{ID: u.ID, Role: u.Role}

	switch {
	case u.Student != nil:
		us.FirstName = u.Student.FirstName
		us.LastName = u.Student.LastName
	case u.Teacher != nil:
		us.FirstName = u.Teacher.FirstName
		us.LastName = u.Teacher.LastName
	default:
		// Fallback: use username or email local-part if no profile exists
		name := u.Username
		if name == "" && u.Email != "" {
			parts := strings.Split(u.Email, "@")
			name = parts[0]
		}
		parts := strings.Fields(name)
		if len(parts) > 0 {
			us.FirstName = parts[0]
		}
		if len(parts) > 1 {
			us.LastName = strings.Join(parts[1:], " ")
		}
	}
	return us
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		User:      ToUserShort(n.User),
	}
}

type SessionDTO struct {
	Kind               string     `json:"kind"`
	ID                 uint       `json:"id"`
	AcademyID          uint       `json:"academy_id"`
	TeacherID          uint       `json:"teacher_id"`
	Status             string     `json:"status"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	DurationMinutes    int        `json:"duration_minutes"`
	MeetingRoomID      string     `json:"meeting_room_id,omitempty"`
	ActualStartAt      *time.Time `json:"actual_start_at,omitempty"`
	ActualEndAt        *time.Time `json:"actual_end_at,omitempty"`
	CancellationType   string     `json:"cancellation_type,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	RescheduledBy      string     `json:"rescheduled_by,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	LearnerUserIDs     []uint     `json:"learner_user_ids"`
}

// ToSessionDTO flattens any session kind into the shared API shape.
func ToSessionDTO(s models.Session) SessionDTO {
	core := s.Core()
	ref := s.Ref()
	return SessionDTO{
		Kind:               ref.Kind,
		ID:                 ref.ID,
		AcademyID:          core.AcademyID,
		TeacherID:          core.TeacherID,
		Status:             core.Status,
		ScheduledAt:        core.ScheduledAt,
		DurationMinutes:    core.DurationMinutes,
		MeetingRoomID:      core.MeetingRoomID,
		ActualStartAt:      core.ActualStartAt,
		ActualEndAt:        core.ActualEndAt,
		CancellationType:   core.CancellationType,
		CancellationReason: core.CancellationReason,
		RescheduledBy:      core.RescheduledBy,
		Notes:              core.Notes,
		LearnerUserIDs:     s.LearnerIDs(),
	}
}
