package models

import (
	"fmt"
	"time"
)

// Session status vocabulary shared by all three session kinds.
const (
	SessionStatusUnscheduled = "unscheduled"
	SessionStatusScheduled   = "scheduled"
	SessionStatusReady       = "ready"
	SessionStatusOngoing     = "ongoing"
	SessionStatusCompleted   = "completed"
	SessionStatusCancelled   = "cancelled"
	SessionStatusAbsent      = "absent"
	SessionStatusMissed      = "missed"
	SessionStatusRescheduled = "rescheduled"
)

// Cancellation/reschedule intent. The tag, not the status alone, decides
// whether the subscription reconciler charges the learner.
const (
	CancellationByTeacher = "teacher"
	CancellationByStudent = "student"
	CancellationBySystem  = "system"
)

// Session kinds used in polymorphic references.
const (
	SessionKindIndividual = "individual"
	SessionKindCircle     = "circle"
	SessionKindCourse     = "course"
)

// SessionRef is a discriminated reference to a session row of any kind.
type SessionRef struct {
	Kind string `json:"kind"`
	ID   uint   `json:"id"`
}

func (r SessionRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Valid reports whether the kind is one of the known session kinds.
func (r SessionRef) Valid() bool {
	switch r.Kind {
	case SessionKindIndividual, SessionKindCircle, SessionKindCourse:
		return r.ID != 0
	}
	return false
}

// SessionCore holds the fields every session kind shares. Status is mutated
// only through the state machine's check-and-set update.
type SessionCore struct {
	AcademyID          uint       `json:"academy_id" gorm:"not null;index"`
	TeacherID          uint       `json:"teacher_id" gorm:"not null;index"`
	ScheduledAt        time.Time  `json:"scheduled_at" gorm:"index"`
	DurationMinutes    int        `json:"duration_minutes" gorm:"not null;default:60"`
	Status             string     `json:"status" gorm:"size:50;not null;default:'unscheduled';index;type:enum('unscheduled','scheduled','ready','ongoing','completed','cancelled','absent','missed','rescheduled')"`
	MeetingRoomID      string     `json:"meeting_room_id" gorm:"size:100;index"`
	ActualStartAt      *time.Time `json:"actual_start_at"`
	ActualEndAt        *time.Time `json:"actual_end_at"`
	CancellationType   string     `json:"cancellation_type" gorm:"size:20"` // teacher, student, system
	CancellationReason string     `json:"cancellation_reason" gorm:"type:text"`
	RescheduledBy      string     `json:"rescheduled_by" gorm:"size:20"` // teacher, student, system
	Notes              string     `json:"notes" gorm:"type:text"`
}

// ScheduledEndAt returns the scheduled window end.
func (c *SessionCore) ScheduledEndAt() time.Time {
	return c.ScheduledAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// IsTerminal reports whether the current status admits no further automatic
// transition.
func (c *SessionCore) IsTerminal() bool {
	switch c.Status {
	case SessionStatusCompleted, SessionStatusCancelled, SessionStatusAbsent, SessionStatusMissed:
		return true
	}
	return false
}

// Session is the capability interface the engine operates against. All three
// kinds implement it; the engine never switches on the concrete type outside
// the store lookup.
type Session interface {
	Ref() SessionRef
	Core() *SessionCore
	GetID() uint
	// LearnerIDs returns the user IDs of the enrolled learners. For an
	// individual session this is exactly one ID.
	LearnerIDs() []uint
}

// IndividualSession is a one-to-one teaching session backed by a subscription.
type IndividualSession struct {
	BaseModel
	SessionCore
	StudentID      uint  `json:"student_id" gorm:"not null;index"`
	SubscriptionID *uint `json:"subscription_id" gorm:"index"`

	// Relationships
	Student      Student       `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Teacher      Teacher       `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Subscription *Subscription `json:"subscription,omitempty" gorm:"foreignKey:SubscriptionID"`
}

func (s *IndividualSession) Ref() SessionRef    { return SessionRef{Kind: SessionKindIndividual, ID: s.ID} }
func (s *IndividualSession) Core() *SessionCore { return &s.SessionCore }
func (s *IndividualSession) GetID() uint        { return s.ID }

func (s *IndividualSession) LearnerIDs() []uint {
	if s.Student.UserID != 0 {
		return []uint{s.Student.UserID}
	}
	return nil
}

// Circle is a small recurring study group.
type Circle struct {
	BaseModel
	AcademyID uint   `json:"academy_id" gorm:"not null;index"`
	TeacherID uint   `json:"teacher_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"size:255;not null"`
	Level     string `json:"level" gorm:"size:50"`
	Capacity  int    `json:"capacity" gorm:"default:8"`
	Status    string `json:"status" gorm:"size:50;default:'active';type:enum('active','inactive','full','archived')"` // active, inactive, full, archived

	// Relationships
	Members []CircleMember `json:"members,omitempty" gorm:"foreignKey:CircleID"`
}

type CircleMember struct {
	BaseModel
	CircleID       uint  `json:"circle_id" gorm:"not null;uniqueIndex:idx_circle_student"`
	StudentID      uint  `json:"student_id" gorm:"not null;uniqueIndex:idx_circle_student"`
	SubscriptionID *uint `json:"subscription_id" gorm:"index"`

	// Relationships
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// CircleSession is one occurrence of a group circle.
type CircleSession struct {
	BaseModel
	SessionCore
	CircleID uint `json:"circle_id" gorm:"not null;index"`

	// Relationships
	Circle  Circle  `json:"circle,omitempty" gorm:"foreignKey:CircleID"`
	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

func (s *CircleSession) Ref() SessionRef    { return SessionRef{Kind: SessionKindCircle, ID: s.ID} }
func (s *CircleSession) Core() *SessionCore { return &s.SessionCore }
func (s *CircleSession) GetID() uint        { return s.ID }

func (s *CircleSession) LearnerIDs() []uint {
	ids := make([]uint, 0, len(s.Circle.Members))
	for _, m := range s.Circle.Members {
		if m.Student.UserID != 0 {
			ids = append(ids, m.Student.UserID)
		}
	}
	return ids
}

// InteractiveCourse is a cohort-based live course.
type InteractiveCourse struct {
	BaseModel
	AcademyID uint   `json:"academy_id" gorm:"not null;index"`
	TeacherID uint   `json:"teacher_id" gorm:"not null;index"`
	Name      string `json:"name" gorm:"size:255;not null"`
	Track     string `json:"track" gorm:"size:100"`
	Status    string `json:"status" gorm:"size:50;default:'active';type:enum('active','inactive','archived')"` // active, inactive, archived

	// Relationships
	Enrollments []CourseEnrollment `json:"enrollments,omitempty" gorm:"foreignKey:CourseID"`
}

type CourseEnrollment struct {
	BaseModel
	CourseID  uint   `json:"course_id" gorm:"not null;uniqueIndex:idx_course_student"`
	StudentID uint   `json:"student_id" gorm:"not null;uniqueIndex:idx_course_student"`
	Status    string `json:"status" gorm:"size:50;default:'enrolled';type:enum('enrolled','completed','dropped')"` // enrolled, completed, dropped

	// Relationships
	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// CourseSession is one live occurrence of an interactive course.
type CourseSession struct {
	BaseModel
	SessionCore
	CourseID uint `json:"course_id" gorm:"not null;index"`

	// Relationships
	Course  InteractiveCourse `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Teacher Teacher           `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

func (s *CourseSession) Ref() SessionRef    { return SessionRef{Kind: SessionKindCourse, ID: s.ID} }
func (s *CourseSession) Core() *SessionCore { return &s.SessionCore }
func (s *CourseSession) GetID() uint        { return s.ID }

func (s *CourseSession) LearnerIDs() []uint {
	ids := make([]uint, 0, len(s.Course.Enrollments))
	for _, e := range s.Course.Enrollments {
		if e.Status == "dropped" {
			continue
		}
		if e.Student.UserID != 0 {
			ids = append(ids, e.Student.UserID)
		}
	}
	return ids
}
