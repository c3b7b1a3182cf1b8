package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Earning calculation methods. The method recorded on an earning matches
// the teacher's payment type at calculation time.
const (
	CalculationPerSession = "per_session"
	CalculationPerStudent = "per_student"
	CalculationFixed      = "fixed"
	CalculationHourly     = "hourly"
)

// Payout workflow states. There is no "paid" state in the engine; the
// actual fund transfer is an external, manual concern.
const (
	PayoutStatusPending  = "pending"
	PayoutStatusApproved = "approved"
	PayoutStatusRejected = "rejected"
)

// Subscription entitles a student to a number of sessions. The counters are
// reconciled exactly once per terminal session transition.
// Invariants: SessionsCompleted + SessionsMissed <= TotalSessions and
// SessionsRemaining >= 0 always hold after reconciliation.
type Subscription struct {
	BaseModel
	StudentID uint   `json:"student_id" gorm:"not null;index"`
	AcademyID uint   `json:"academy_id" gorm:"not null;index"`
	PlanName  string `json:"plan_name" gorm:"size:255"`
	Status    string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','paused','expired','exhausted')"` // active, paused, expired, exhausted

	TotalSessions     int `json:"total_sessions" gorm:"not null"`
	SessionsScheduled int `json:"sessions_scheduled" gorm:"not null;default:0"`
	SessionsCompleted int `json:"sessions_completed" gorm:"not null;default:0"`
	SessionsMissed    int `json:"sessions_missed" gorm:"not null;default:0"`
	SessionsRemaining int `json:"sessions_remaining" gorm:"not null;default:0"`

	// Relationships
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// TeacherEarning is one immutable monetary record per completed session.
// The unique (session_kind, session_id) index guarantees at-most-once
// earning generation; the rate snapshot keeps history auditable after the
// teacher's live rates change.
type TeacherEarning struct {
	BaseModel
	SessionKind       string          `json:"session_kind" gorm:"size:20;not null;uniqueIndex:idx_earning_session"`
	SessionID         uint            `json:"session_id" gorm:"not null;uniqueIndex:idx_earning_session"`
	TeacherID         uint            `json:"teacher_id" gorm:"not null;index"`
	AcademyID         uint            `json:"academy_id" gorm:"not null;index"`
	CalculationMethod string          `json:"calculation_method" gorm:"size:50;not null;type:enum('per_session','per_student','fixed','hourly')"`
	RateSnapshot      JSON            `json:"rate_snapshot" gorm:"type:json"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency          string          `json:"currency" gorm:"size:10;not null;default:'USD'"`
	Month             string          `json:"month" gorm:"size:7;not null;index"` // YYYY-MM of the session
	PayoutID          *uint           `json:"payout_id" gorm:"index"`
	Locked            bool            `json:"locked" gorm:"default:false"`
	Disputed          bool            `json:"disputed" gorm:"default:false"`
	DisputeNotes      string          `json:"dispute_notes" gorm:"type:text"`

	// Relationships
	Teacher Teacher        `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Payout  *TeacherPayout `json:"payout,omitempty" gorm:"foreignKey:PayoutID"`
}

// TeacherPayout aggregates one teacher's earnings for one month in one
// academy. The unique (teacher, academy, month) index enforces exactly one
// aggregation; approval is a one-way transition that locks every
// constituent earning.
type TeacherPayout struct {
	BaseModel
	TeacherID       uint            `json:"teacher_id" gorm:"not null;uniqueIndex:idx_payout_teacher_month"`
	AcademyID       uint            `json:"academy_id" gorm:"not null;uniqueIndex:idx_payout_teacher_month"`
	Month           string          `json:"month" gorm:"size:7;not null;uniqueIndex:idx_payout_teacher_month"` // YYYY-MM
	Status          string          `json:"status" gorm:"size:20;not null;default:'pending';type:enum('pending','approved','rejected')"` // pending, approved, rejected
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null;default:0"`
	Currency        string          `json:"currency" gorm:"size:10;not null;default:'USD'"`
	SessionCount    int             `json:"session_count" gorm:"not null;default:0"`
	ApprovedBy      *uint           `json:"approved_by"`
	ApprovedAt      *time.Time      `json:"approved_at"`
	RejectionReason string          `json:"rejection_reason" gorm:"type:text"`
	StatementS3Key  string          `json:"statement_s3_key" gorm:"size:500"`

	// Relationships
	Teacher  Teacher          `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Earnings []TeacherEarning `json:"earnings,omitempty" gorm:"foreignKey:PayoutID"`
}
