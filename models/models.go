package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// ToJSON marshals v into the JSON column type.
func ToJSON(v interface{}) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

// Academy is the tenant. Every session, subscription, earning and payout
// belongs to exactly one academy.
type Academy struct {
	BaseModel
	Name     string `json:"name" gorm:"size:255;not null"`
	Slug     string `json:"slug" gorm:"size:100;not null;uniqueIndex"`
	Timezone string `json:"timezone" gorm:"size:64;not null;default:'Africa/Cairo'"`
	Active   bool   `json:"active" gorm:"default:true"`

	// Relationships
	Users    []User    `json:"users,omitempty" gorm:"foreignKey:AcademyID"`
	Teachers []Teacher `json:"teachers,omitempty" gorm:"foreignKey:AcademyID"`
}

// User model
type User struct {
	BaseModel
	AcademyID uint   `json:"academy_id" gorm:"not null;index"`
	Username  string `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password  string `json:"-" gorm:"size:255;not null"`
	Email     string `json:"email" gorm:"size:255;uniqueIndex"`
	Phone     string `json:"phone" gorm:"size:20"`
	Role      string `json:"role" gorm:"size:50;not null;default:'student';type:enum('owner','admin','teacher','student')"` // owner, admin, teacher, student
	Status    string `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`    // active, inactive, suspended
	Avatar    string `json:"avatar" gorm:"size:500"`

	// Relationships
	Academy Academy  `json:"academy,omitempty" gorm:"foreignKey:AcademyID"`
	Student *Student `json:"student,omitempty" gorm:"foreignKey:UserID"`
	Teacher *Teacher `json:"teacher,omitempty" gorm:"foreignKey:UserID"`
}

// Teacher model carries the live payment configuration. Earnings never read
// these columns after calculation time; the values are snapshotted into each
// TeacherEarning row when a session completes.
type Teacher struct {
	BaseModel
	UserID      uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	AcademyID   uint   `json:"academy_id" gorm:"not null;index"`
	FirstName   string `json:"first_name" gorm:"size:100"`
	LastName    string `json:"last_name" gorm:"size:100"`
	Nickname    string `json:"nickname" gorm:"size:100"`
	Nationality string `json:"nationality" gorm:"size:100"`
	Bio         string `json:"bio" gorm:"type:text"`
	Active      bool   `json:"active" gorm:"default:true"`

	PaymentType      string          `json:"payment_type" gorm:"size:50;not null;default:'per_session';type:enum('per_session','per_student','fixed','hourly')"` // per_session, per_student, fixed, hourly
	AmountPerSession decimal.Decimal `json:"amount_per_session" gorm:"type:decimal(10,2);default:0"`
	AmountPerStudent decimal.Decimal `json:"amount_per_student" gorm:"type:decimal(10,2);default:0"`
	FixedAmount      decimal.Decimal `json:"fixed_amount" gorm:"type:decimal(10,2);default:0"`
	HourlyRate       decimal.Decimal `json:"hourly_rate" gorm:"type:decimal(10,2);default:0"`
	Currency         string          `json:"currency" gorm:"size:10;not null;default:'USD'"`

	// Relationships
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Academy Academy `json:"academy,omitempty" gorm:"foreignKey:AcademyID"`
}

// Student model
type Student struct {
	BaseModel
	UserID      uint       `json:"user_id" gorm:"uniqueIndex;not null"`
	AcademyID   uint       `json:"academy_id" gorm:"not null;index"`
	FirstName   string     `json:"first_name" gorm:"size:100"`
	LastName    string     `json:"last_name" gorm:"size:100"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender" gorm:"size:20"`
	GradeLevel  string     `json:"grade_level" gorm:"size:50"`
	ParentName  string     `json:"parent_name" gorm:"size:200"`
	ParentPhone string     `json:"parent_phone" gorm:"size:20"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID  uint       `json:"user_id" gorm:"not null"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Type    string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Read    bool       `json:"read" gorm:"default:false"`
	ReadAt  *time.Time `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// EventArchive tracks attendance-event and activity-log batches archived to S3
type EventArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
