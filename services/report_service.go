package services

import (
	"errors"

	"ilmhub_go/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GenerateSessionReports produces one finalized report per enrolled learner
// once a session is terminal. The unique (session, student) index makes a
// re-triggered generation a no-op; an existing finalized report is never
// regenerated.
func GenerateSessionReports(tx *gorm.DB, sess models.Session, settings models.AcademySettings) error {
	ref := sess.Ref()
	core := sess.Core()

	for _, userID := range sess.LearnerIDs() {
		summary, err := RecomputeAndPersistSummary(tx, sess, userID, settings)
		if err != nil {
			return err
		}

		report := models.SessionReport{
			SessionKind:          ref.Kind,
			SessionID:            ref.ID,
			StudentUserID:        userID,
			AcademyID:            core.AcademyID,
			AttendanceStatus:     summary.Status,
			AttendancePercentage: summary.AttendancePercentage,
			LateMinutes:          summary.LateMinutes,
			Finalized:            true,
		}
		if submission := findHomeworkSubmission(tx, ref, userID); submission != nil {
			report.HomeworkSubmissionID = &submission.ID
		}

		if err := tx.Create(&report).Error; err != nil {
			if isDuplicateKeyErr(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func findHomeworkSubmission(tx *gorm.DB, ref models.SessionRef, userID uint) *models.HomeworkSubmission {
	var submission models.HomeworkSubmission
	err := tx.Where("session_kind = ? AND session_id = ? AND student_user_id = ?", ref.Kind, ref.ID, userID).
		Order("submitted_at desc").First(&submission).Error
	if err != nil {
		return nil
	}
	return &submission
}

// ReportOverride carries an admin correction to a finalized report. Nil
// fields are left unchanged.
type ReportOverride struct {
	AttendanceStatus   *string  `json:"attendance_status" validate:"omitempty,oneof=attended late left_early absent"`
	HomeworkScore      *float64 `json:"homework_score" validate:"omitempty,min=0,max=100"`
	ParticipationScore *float64 `json:"participation_score" validate:"omitempty,min=0,max=100"`
	Reason             string   `json:"reason" validate:"required"`
}

// OverrideReport applies an explicit admin correction to a finalized report.
// This is the only mutation path once a report exists; silent regeneration is
// forbidden.
func OverrideReport(db *gorm.DB, ref models.SessionRef, studentUserID, adminID uint, override ReportOverride) (*models.SessionReport, error) {
	if err := validate.Struct(override); err != nil {
		return nil, err
	}

	var report models.SessionReport
	err := db.Where("session_kind = ? AND session_id = ? AND student_user_id = ?", ref.Kind, ref.ID, studentUserID).
		First(&report).Error
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{
		"manual_override": true,
		"overridden_by":   adminID,
		"override_reason": override.Reason,
	}
	if override.AttendanceStatus != nil {
		changes["attendance_status"] = *override.AttendanceStatus
	}
	if override.HomeworkScore != nil {
		changes["homework_score"] = *override.HomeworkScore
	}
	if override.ParticipationScore != nil {
		changes["participation_score"] = *override.ParticipationScore
	}

	if err := db.Model(&report).Updates(changes).Error; err != nil {
		return nil, err
	}
	if err := db.First(&report, report.ID).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// AttachHomework links a homework submission to an existing report, or logs
// when the report has not been generated yet (the linkage happens at
// generation time in that case).
func AttachHomework(db *gorm.DB, submission *models.HomeworkSubmission) error {
	if err := db.Create(submission).Error; err != nil {
		return err
	}

	var report models.SessionReport
	err := db.Where("session_kind = ? AND session_id = ? AND student_user_id = ?",
		submission.SessionKind, submission.SessionID, submission.StudentUserID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithFields(log.Fields{
				"session": submission.SessionKind,
				"student": submission.StudentUserID,
			}).Debug("Homework submitted before report generation; will link at generation time")
			return nil
		}
		return err
	}
	return db.Model(&report).Update("homework_submission_id", submission.ID).Error
}
