package services

import (
	"errors"
	"fmt"
	"time"

	"ilmhub_go/models"
	notifsvc "ilmhub_go/services/notifications"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CommandResult is the outcome of a session command. Warnings carry non-fatal
// conditions (an exhausted subscription) the caller should surface without
// failing the command.
type CommandResult struct {
	Session  models.Session
	Warnings []string
}

// ValidateScheduleTime checks a scheduling timestamp against the academy's
// minimum-notice policy.
func ValidateScheduleTime(ref models.SessionRef, at, now time.Time, settings models.AcademySettings) error {
	if !at.After(now) {
		return &InvalidScheduleError{Ref: ref, Reason: "scheduled time is in the past"}
	}
	notice := time.Duration(settings.MinimumNoticeMinutes) * time.Minute
	if at.Before(now.Add(notice)) {
		return &InvalidScheduleError{Ref: ref, Reason: fmt.Sprintf("scheduled time violates the %d-minute minimum notice", settings.MinimumNoticeMinutes)}
	}
	return nil
}

// ScheduleSession moves an unscheduled session onto the calendar.
func ScheduleSession(db *gorm.DB, ref models.SessionRef, at time.Time) (*CommandResult, error) {
	var result CommandResult
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := FindSession(tx, ref)
		if err != nil {
			return err
		}
		settings := SettingsForSession(tx, sess.Core().AcademyID)
		if err := ValidateScheduleTime(ref, at, time.Now(), settings); err != nil {
			return err
		}
		if err := TransitionSession(tx, sess, models.SessionStatusScheduled, map[string]interface{}{
			"scheduled_at": at,
		}); err != nil {
			return err
		}
		if indiv, ok := sess.(*models.IndividualSession); ok && indiv.SubscriptionID != nil {
			if err := MarkSessionScheduled(tx, *indiv.SubscriptionID); err != nil {
				return err
			}
		}
		result.Session = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RescheduleSession moves a session to a new time, preserving who asked for
// the change. The record passes through rescheduled and returns to scheduled
// in one transaction.
func RescheduleSession(db *gorm.DB, ref models.SessionRef, newAt time.Time, intent string) (*CommandResult, error) {
	var result CommandResult
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := FindSession(tx, ref)
		if err != nil {
			return err
		}
		settings := SettingsForSession(tx, sess.Core().AcademyID)
		if err := ValidateScheduleTime(ref, newAt, time.Now(), settings); err != nil {
			return err
		}
		if err := TransitionSession(tx, sess, models.SessionStatusRescheduled, map[string]interface{}{
			"rescheduled_by": intent,
		}); err != nil {
			return err
		}
		// Room and live markers belong to the old occurrence.
		if err := TransitionSession(tx, sess, models.SessionStatusScheduled, map[string]interface{}{
			"scheduled_at":    newAt,
			"meeting_room_id": "",
			"actual_start_at": nil,
			"actual_end_at":   nil,
		}); err != nil {
			return err
		}
		result.Session = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	notifyReschedule(db, result.Session, intent)
	return &result, nil
}

// CancelSession terminates a session with an intent tag that decides whether
// the learner's entitlement is consumed. Cancelling an already-cancelled
// session is rejected by the state machine, not treated as an error by the
// provider retry path.
func CancelSession(db *gorm.DB, ref models.SessionRef, cancellationType, reason string) (*CommandResult, error) {
	switch cancellationType {
	case models.CancellationByTeacher, models.CancellationByStudent, models.CancellationBySystem:
	default:
		return nil, fmt.Errorf("unknown cancellation type %q", cancellationType)
	}

	var result CommandResult
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := FindSession(tx, ref)
		if err != nil {
			return err
		}
		if err := TransitionSession(tx, sess, models.SessionStatusCancelled, map[string]interface{}{
			"cancellation_type":   cancellationType,
			"cancellation_reason": reason,
		}); err != nil {
			return err
		}
		warnings, err := finalizeTerminal(tx, sess)
		if err != nil {
			return err
		}
		result = CommandResult{Session: sess, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	notifyTerminalOutcome(db, result.Session)
	return &result, nil
}

// EndSession completes an ongoing session and runs the terminal pipeline:
// reports, subscription reconciliation and the earning, all in one
// transaction with the status write.
func EndSession(db *gorm.DB, ref models.SessionRef) (*CommandResult, error) {
	var result CommandResult
	err := db.Transaction(func(tx *gorm.DB) error {
		sess, err := FindSession(tx, ref)
		if err != nil {
			return err
		}
		now := time.Now()
		if err := TransitionSession(tx, sess, models.SessionStatusCompleted, map[string]interface{}{
			"actual_end_at": now,
		}); err != nil {
			return err
		}
		warnings, err := finalizeTerminal(tx, sess)
		if err != nil {
			return err
		}
		result = CommandResult{Session: sess, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	notifyTerminalOutcome(db, result.Session)
	return &result, nil
}

// MarkSessionRoomReady stamps a meeting room onto a scheduled session inside
// the preparation window. Called from the periodic sweep.
func MarkSessionRoomReady(tx *gorm.DB, sess models.Session) error {
	room := fmt.Sprintf("%s-%d-%s", sess.Ref().Kind, sess.GetID(), uuid.NewString()[:8])
	return TransitionSession(tx, sess, models.SessionStatusReady, map[string]interface{}{
		"meeting_room_id": room,
	})
}

// ResolveMissedSession moves a session nobody joined to its no-show outcome:
// absent when the teacher showed up but the sole learner never did, missed
// otherwise. Group sessions never fail whole; their per-student absence
// lands in the attendance summaries.
func ResolveMissedSession(tx *gorm.DB, sess models.Session, teacherJoined bool) (*CommandResult, error) {
	target := models.SessionStatusMissed
	if teacherJoined && sess.Ref().Kind == models.SessionKindIndividual {
		target = models.SessionStatusAbsent
	}
	if err := TransitionSession(tx, sess, target, nil); err != nil {
		return nil, err
	}
	warnings, err := finalizeTerminal(tx, sess)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Session: sess, Warnings: warnings}, nil
}

// finalizeTerminal runs the derivations that must commit atomically with a
// terminal status write: per-student reports, subscription counters and the
// teacher earning. Exhaustion clamps are collected as warnings.
func finalizeTerminal(tx *gorm.DB, sess models.Session) ([]string, error) {
	core := sess.Core()
	settings := SettingsForSession(tx, core.AcademyID)

	var warnings []string

	switch core.Status {
	case models.SessionStatusCompleted, models.SessionStatusMissed, models.SessionStatusAbsent:
		if err := GenerateSessionReports(tx, sess, settings); err != nil {
			return nil, err
		}
	}

	for _, subID := range sessionSubscriptionIDs(sess) {
		err := ReconcileSubscription(tx, subID, core.Status, core.CancellationType)
		var exhausted *SubscriptionExhaustedWarning
		if errors.As(err, &exhausted) {
			log.WithFields(log.Fields{
				"session":      sess.Ref().String(),
				"subscription": exhausted.SubscriptionID,
			}).Warn("Subscription exhausted during reconciliation")
			warnings = append(warnings, exhausted.Error())
		} else if err != nil {
			return nil, err
		}
	}

	if core.Status == models.SessionStatusCompleted {
		if _, err := CalculateEarning(tx, sess); err != nil {
			return nil, err
		}
	}
	return warnings, nil
}

// sessionSubscriptionIDs resolves which subscriptions a terminal outcome
// charges. Course enrollments are prepaid packages with no per-session
// counters.
func sessionSubscriptionIDs(sess models.Session) []uint {
	switch s := sess.(type) {
	case *models.IndividualSession:
		if s.SubscriptionID != nil {
			return []uint{*s.SubscriptionID}
		}
	case *models.CircleSession:
		var ids []uint
		for _, m := range s.Circle.Members {
			if m.SubscriptionID != nil {
				ids = append(ids, *m.SubscriptionID)
			}
		}
		return ids
	}
	return nil
}

// notifyReschedule tells the participants about the new time. Best-effort.
func notifyReschedule(db *gorm.DB, sess models.Session, intent string) {
	core := sess.Core()

	userIDs := append([]uint{}, sess.LearnerIDs()...)
	var teacher models.Teacher
	if err := db.First(&teacher, core.TeacherID).Error; err == nil {
		userIDs = append(userIDs, teacher.UserID)
	}
	if len(userIDs) == 0 {
		return
	}

	message := fmt.Sprintf("Session %s was rescheduled by %s to %s.",
		sess.Ref().String(), intent, core.ScheduledAt.Format("2006-01-02 15:04"))
	if err := notifsvc.NewService().EnqueueOrCreate(userIDs, notifsvc.Queued("Session rescheduled", message, "info")); err != nil {
		log.WithError(err).Warn("Failed to enqueue reschedule notification")
	}
}

// notifyTerminalOutcome tells the participants what happened. Best-effort,
// outside the transaction: a notification failure never rolls back an
// outcome.
func notifyTerminalOutcome(db *gorm.DB, sess models.Session) {
	core := sess.Core()

	userIDs := append([]uint{}, sess.LearnerIDs()...)
	var teacher models.Teacher
	if err := db.First(&teacher, core.TeacherID).Error; err == nil {
		userIDs = append(userIDs, teacher.UserID)
	}
	if len(userIDs) == 0 {
		return
	}

	title := "Session " + core.Status
	message := fmt.Sprintf("Session %s scheduled for %s is now %s.",
		sess.Ref().String(), core.ScheduledAt.Format("2006-01-02 15:04"), core.Status)

	typ := "info"
	if core.Status == models.SessionStatusMissed || core.Status == models.SessionStatusAbsent {
		typ = "warning"
	}
	if err := notifsvc.NewService().EnqueueOrCreate(userIDs, notifsvc.Queued(title, message, typ)); err != nil {
		log.WithError(err).Warn("Failed to enqueue session outcome notification")
	}
}
