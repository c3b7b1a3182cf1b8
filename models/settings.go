package models

// AcademySettings holds the per-tenant engine tunables. A row is created on
// first access with the defaults below; the settings service is the only
// writer.
type AcademySettings struct {
	BaseModel
	AcademyID uint `json:"academy_id" gorm:"uniqueIndex;not null"`

	// Scheduling policy
	MinimumNoticeMinutes     int `json:"minimum_notice_minutes" gorm:"not null;default:60"`
	PreparationWindowMinutes int `json:"preparation_window_minutes" gorm:"not null;default:15"`

	// Attendance classification
	LateToleranceMinutes        int `json:"late_tolerance_minutes" gorm:"not null;default:15"`
	MinimumAttendancePercentage int `json:"minimum_attendance_percentage" gorm:"not null;default:50"`

	// Time-based transitions
	MissedGraceMinutes     int `json:"missed_grace_minutes" gorm:"not null;default:30"`
	CompletionGraceMinutes int `json:"completion_grace_minutes" gorm:"not null;default:30"`

	// Event log reconciliation
	UnmatchedEventGraceMinutes int `json:"unmatched_event_grace_minutes" gorm:"not null;default:10"`
	OrphanedJoinCloseHours     int `json:"orphaned_join_close_hours" gorm:"not null;default:2"`
}

// DefaultAcademySettings returns the defaults applied when an academy has no
// settings row yet.
func DefaultAcademySettings(academyID uint) AcademySettings {
	return AcademySettings{
		AcademyID:                   academyID,
		MinimumNoticeMinutes:        60,
		PreparationWindowMinutes:    15,
		LateToleranceMinutes:        15,
		MinimumAttendancePercentage: 50,
		MissedGraceMinutes:          30,
		CompletionGraceMinutes:      30,
		UnmatchedEventGraceMinutes:  10,
		OrphanedJoinCloseHours:      2,
	}
}
