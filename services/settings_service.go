package services

import (
	"errors"
	"fmt"
	"strings"

	"ilmhub_go/database"
	"ilmhub_go/models"

	"gorm.io/gorm"
)

// ErrSettingsValidation indicates a user-facing validation error while updating settings
var ErrSettingsValidation = errors.New("settings validation error")

// SettingsService manages the per-academy engine tunables.
type SettingsService struct{}

// NewSettingsService creates a new service instance
func NewSettingsService() *SettingsService {
	return &SettingsService{}
}

// GetOrCreate fetches an academy's settings, creating the default record if
// necessary.
func (s *SettingsService) GetOrCreate(academyID uint) (*models.AcademySettings, error) {
	settings := &models.AcademySettings{}
	if err := database.DB.Where("academy_id = ?", academyID).First(settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			defaults := models.DefaultAcademySettings(academyID)
			if createErr := database.DB.Create(&defaults).Error; createErr != nil {
				// A concurrent first access may have created the row already.
				if isDuplicateKeyErr(createErr) {
					if ferr := database.DB.Where("academy_id = ?", academyID).First(settings).Error; ferr == nil {
						return settings, nil
					}
				}
				return nil, createErr
			}
			return &defaults, nil
		}

		// Detect MySQL "table doesn't exist" (1146), e.g. when automatic
		// migrations were skipped, and create the table then the defaults.
		if strings.Contains(err.Error(), "1146") || strings.Contains(strings.ToLower(err.Error()), "doesn't exist") {
			if migrateErr := database.DB.AutoMigrate(&models.AcademySettings{}); migrateErr != nil {
				return nil, migrateErr
			}
			defaults := models.DefaultAcademySettings(academyID)
			if createErr := database.DB.Create(&defaults).Error; createErr != nil {
				return nil, createErr
			}
			return &defaults, nil
		}
		return nil, err
	}
	return settings, nil
}

// SettingsUpdate carries the tunable fields an owner or admin may change.
// Pointers distinguish "leave unchanged" from explicit zero values.
type SettingsUpdate struct {
	MinimumNoticeMinutes        *int `json:"minimum_notice_minutes" validate:"omitempty,min=0,max=10080"`
	PreparationWindowMinutes    *int `json:"preparation_window_minutes" validate:"omitempty,min=0,max=240"`
	LateToleranceMinutes        *int `json:"late_tolerance_minutes" validate:"omitempty,min=0,max=120"`
	MinimumAttendancePercentage *int `json:"minimum_attendance_percentage" validate:"omitempty,min=0,max=100"`
	MissedGraceMinutes          *int `json:"missed_grace_minutes" validate:"omitempty,min=5,max=240"`
	CompletionGraceMinutes      *int `json:"completion_grace_minutes" validate:"omitempty,min=5,max=240"`
	UnmatchedEventGraceMinutes  *int `json:"unmatched_event_grace_minutes" validate:"omitempty,min=1,max=120"`
	OrphanedJoinCloseHours      *int `json:"orphaned_join_close_hours" validate:"omitempty,min=1,max=48"`
}

// Update applies the provided fields to the academy's settings row.
func (s *SettingsService) Update(academyID uint, update SettingsUpdate) (*models.AcademySettings, error) {
	if err := validate.Struct(update); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSettingsValidation, err.Error())
	}

	settings, err := s.GetOrCreate(academyID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	apply := func(column string, v *int) {
		if v != nil {
			changes[column] = *v
		}
	}
	apply("minimum_notice_minutes", update.MinimumNoticeMinutes)
	apply("preparation_window_minutes", update.PreparationWindowMinutes)
	apply("late_tolerance_minutes", update.LateToleranceMinutes)
	apply("minimum_attendance_percentage", update.MinimumAttendancePercentage)
	apply("missed_grace_minutes", update.MissedGraceMinutes)
	apply("completion_grace_minutes", update.CompletionGraceMinutes)
	apply("unmatched_event_grace_minutes", update.UnmatchedEventGraceMinutes)
	apply("orphaned_join_close_hours", update.OrphanedJoinCloseHours)

	if len(changes) == 0 {
		return settings, nil
	}
	if err := database.DB.Model(settings).Updates(changes).Error; err != nil {
		return nil, err
	}
	if err := database.DB.Where("academy_id = ?", academyID).First(settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// SettingsForSession resolves the tunables governing a session, falling back
// to the defaults when the academy row cannot be loaded.
func SettingsForSession(tx *gorm.DB, academyID uint) models.AcademySettings {
	var settings models.AcademySettings
	if err := tx.Where("academy_id = ?", academyID).First(&settings).Error; err != nil {
		return models.DefaultAcademySettings(academyID)
	}
	return settings
}
