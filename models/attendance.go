package models

import "time"

// Attendance event types as delivered by the meeting provider.
const (
	AttendanceEventJoin      = "join"
	AttendanceEventLeave     = "leave"
	AttendanceEventReconnect = "reconnect"
	AttendanceEventAborted   = "aborted"
)

// Per-participant attendance classification.
const (
	AttendanceStatusAttended  = "attended"
	AttendanceStatusLate      = "late"
	AttendanceStatusLeftEarly = "left_early"
	AttendanceStatusAbsent    = "absent"
)

// MeetingAttendanceEvent is one row of the append-only attendance log.
// EventID comes from the provider and is the idempotency key: the unique
// index is the correctness mechanism, not an in-memory check. Rows are
// never updated except to stamp the matching leave event onto an open
// join/reconnect row.
type MeetingAttendanceEvent struct {
	BaseModel
	EventID        string    `json:"event_id" gorm:"size:100;not null;uniqueIndex"`
	EventType      string    `json:"event_type" gorm:"size:20;not null;type:enum('join','leave','reconnect','aborted')"` // join, leave, reconnect, aborted
	EventTimestamp time.Time `json:"event_timestamp" gorm:"not null;index"`
	SessionKind    string    `json:"session_kind" gorm:"size:20;not null;index:idx_event_session"`
	SessionID      uint      `json:"session_id" gorm:"not null;index:idx_event_session"`
	UserID         uint      `json:"user_id" gorm:"not null;index"`
	ParticipantSID string    `json:"participant_sid" gorm:"size:100;not null;index"`
	RawPayload     JSON      `json:"raw_payload" gorm:"type:json"`

	// Stamped once the matching leave arrives for the same participant_sid.
	LeftAt          *time.Time `json:"left_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	LeaveEventID    *string    `json:"leave_event_id" gorm:"size:100"`
}

// SessionRef returns the polymorphic session reference of the event.
func (e *MeetingAttendanceEvent) SessionRef() SessionRef {
	return SessionRef{Kind: e.SessionKind, ID: e.SessionID}
}

// IsOpenJoin reports whether this row is a join/reconnect still waiting for
// its leave.
func (e *MeetingAttendanceEvent) IsOpenJoin() bool {
	return (e.EventType == AttendanceEventJoin || e.EventType == AttendanceEventReconnect) && e.LeftAt == nil
}

// AttendanceSummary is the derived per-(session, participant) projection of
// the event log. It is recomputable at any time from the log alone; a manual
// override pins the row and the aggregator skips it until cleared.
type AttendanceSummary struct {
	BaseModel
	SessionKind          string     `json:"session_kind" gorm:"size:20;not null;uniqueIndex:idx_summary_session_user"`
	SessionID            uint       `json:"session_id" gorm:"not null;uniqueIndex:idx_summary_session_user"`
	UserID               uint       `json:"user_id" gorm:"not null;uniqueIndex:idx_summary_session_user"`
	Status               string     `json:"status" gorm:"size:20;not null;type:enum('attended','late','left_early','absent')"` // attended, late, left_early, absent
	FirstJoinAt          *time.Time `json:"first_join_at"`
	LastLeaveAt          *time.Time `json:"last_leave_at"`
	TotalMinutes         int        `json:"total_minutes"`
	AttendancePercentage float64    `json:"attendance_percentage"`
	LateMinutes          int        `json:"late_minutes"`
	ManualOverride       bool       `json:"manual_override" gorm:"default:false"`
	OverriddenBy         *uint      `json:"overridden_by"`
	OverrideReason       string     `json:"override_reason" gorm:"type:text"`
}

// SessionReport is the finalized per-student outcome of a terminal session.
// Exactly one row per (session, student); corrections go through the same
// override mechanism as AttendanceSummary, never a silent regeneration.
type SessionReport struct {
	BaseModel
	SessionKind          string  `json:"session_kind" gorm:"size:20;not null;uniqueIndex:idx_report_session_student"`
	SessionID            uint    `json:"session_id" gorm:"not null;uniqueIndex:idx_report_session_student"`
	StudentUserID        uint    `json:"student_user_id" gorm:"not null;uniqueIndex:idx_report_session_student"`
	AcademyID            uint    `json:"academy_id" gorm:"not null;index"`
	AttendanceStatus     string   `json:"attendance_status" gorm:"size:20;not null"`
	AttendancePercentage float64  `json:"attendance_percentage"`
	LateMinutes          int      `json:"late_minutes"`
	HomeworkScore        *float64 `json:"homework_score"`
	ParticipationScore   *float64 `json:"participation_score"`
	HomeworkSubmissionID *uint    `json:"homework_submission_id"`
	Finalized            bool     `json:"finalized" gorm:"default:false"`
	ManualOverride       bool     `json:"manual_override" gorm:"default:false"`
	OverriddenBy         *uint    `json:"overridden_by"`
	OverrideReason       string   `json:"override_reason" gorm:"type:text"`

	// Relationships
	HomeworkSubmission *HomeworkSubmission `json:"homework_submission,omitempty" gorm:"foreignKey:HomeworkSubmissionID"`
}

// HomeworkSubmission links a student's homework upload to a session report.
type HomeworkSubmission struct {
	BaseModel
	StudentUserID uint      `json:"student_user_id" gorm:"not null;index"`
	SessionKind   string    `json:"session_kind" gorm:"size:20;not null;index:idx_homework_session"`
	SessionID     uint      `json:"session_id" gorm:"not null;index:idx_homework_session"`
	SubmittedAt   time.Time `json:"submitted_at"`
	FileURL       string    `json:"file_url" gorm:"size:500"`
	Notes         string    `json:"notes" gorm:"type:text"`
}
