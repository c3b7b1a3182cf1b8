package services

import (
	"context"
	"errors"
	"time"

	"ilmhub_go/config"
	"ilmhub_go/database"
	"ilmhub_go/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IncomingEvent is one meeting-provider webhook event after envelope
// verification and payload parsing.
type IncomingEvent struct {
	EventID        string
	EventType      string
	EventTimestamp time.Time
	SessionKind    string
	SessionID      uint
	UserID         uint
	ParticipantSID string
	RawPayload     []byte
}

// IngestResult reports what one ingestion call did. Replay is the defined
// success path for duplicate deliveries: the stored event is returned
// unchanged and nothing is mutated.
type IngestResult struct {
	Event  *models.MeetingAttendanceEvent
	Replay bool
}

// IngestEvent stores one attendance event idempotently and advances the
// session state machine where the event warrants it. The unique index on
// event_id is the authority; Redis only short-circuits known replays so the
// common retry storm never reaches MySQL.
func IngestEvent(db *gorm.DB, ev IncomingEvent) (*IngestResult, error) {
	ref := models.SessionRef{Kind: ev.SessionKind, ID: ev.SessionID}
	if !ref.Valid() || ev.EventID == "" {
		return nil, errors.New("attendance event missing session reference or event id")
	}

	if seen := redisSeenEvent(ev.EventID); seen {
		if stored := loadStoredEvent(db, ev.EventID); stored != nil {
			return &IngestResult{Event: stored, Replay: true}, nil
		}
		// Redis remembered an event the database never durably stored
		// (crash between SETNX and commit). Fall through and persist.
	}

	var result IngestResult
	err := db.Transaction(func(tx *gorm.DB) error {
		event := models.MeetingAttendanceEvent{
			EventID:        ev.EventID,
			EventType:      ev.EventType,
			EventTimestamp: ev.EventTimestamp,
			SessionKind:    ev.SessionKind,
			SessionID:      ev.SessionID,
			UserID:         ev.UserID,
			ParticipantSID: ev.ParticipantSID,
			RawPayload:     models.JSON(ev.RawPayload),
		}

		if err := tx.Create(&event).Error; err != nil {
			if isDuplicateKeyErr(err) {
				if stored := loadStoredEvent(tx, ev.EventID); stored != nil {
					result = IngestResult{Event: stored, Replay: true}
					return nil
				}
			}
			return err
		}

		switch ev.EventType {
		case models.AttendanceEventLeave, models.AttendanceEventAborted:
			if err := stampMatchingJoin(tx, &event); err != nil {
				return err
			}
		case models.AttendanceEventJoin, models.AttendanceEventReconnect:
			if err := evaluateJoinTransition(tx, ref, ev); err != nil {
				return err
			}
		}

		result = IngestResult{Event: &event}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// redisSeenEvent marks the event id in Redis and reports whether it was
// already present. Redis being down just disables the fast path.
func redisSeenEvent(eventID string) bool {
	if !config.AppConfig.UseRedisIdempotency {
		return false
	}
	rdb := database.GetRedisClient()
	if rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	set, err := rdb.SetNX(ctx, "attendance:event:"+eventID, 1, 24*time.Hour).Result()
	if err != nil {
		return false
	}
	return !set
}

func loadStoredEvent(tx *gorm.DB, eventID string) *models.MeetingAttendanceEvent {
	var stored models.MeetingAttendanceEvent
	if err := tx.Where("event_id = ?", eventID).First(&stored).Error; err != nil {
		return nil
	}
	return &stored
}

// stampMatchingJoin attaches a leave to the most recent open join sharing
// its participant_sid. This is the only update the log ever takes; an
// unmatched leave is kept and re-paired by the reconciliation sweep.
func stampMatchingJoin(tx *gorm.DB, leave *models.MeetingAttendanceEvent) error {
	var join models.MeetingAttendanceEvent
	err := tx.Where("session_kind = ? AND session_id = ? AND participant_sid = ? AND event_type IN ? AND left_at IS NULL AND event_timestamp <= ?",
		leave.SessionKind, leave.SessionID, leave.ParticipantSID,
		[]string{models.AttendanceEventJoin, models.AttendanceEventReconnect},
		leave.EventTimestamp).
		Order("event_timestamp desc").First(&join).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithFields(log.Fields{
				"event_id":        leave.EventID,
				"participant_sid": leave.ParticipantSID,
			}).Warn("Unmatched leave event stored; awaiting reconciliation sweep")
			return nil
		}
		return err
	}

	duration := int(leave.EventTimestamp.Sub(join.EventTimestamp) / time.Minute)
	return tx.Model(&join).Updates(map[string]interface{}{
		"left_at":          leave.EventTimestamp,
		"duration_minutes": duration,
		"leave_event_id":   leave.EventID,
	}).Error
}

// evaluateJoinTransition moves a waiting session to ongoing when the
// teaching party connects. Losing the race to a concurrent transition is
// fine; the check-and-set simply finds a different status and does nothing.
func evaluateJoinTransition(tx *gorm.DB, ref models.SessionRef, ev IncomingEvent) error {
	sess, err := FindSession(tx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithField("session", ref.String()).Warn("Attendance event references unknown session")
			return nil
		}
		return err
	}
	core := sess.Core()
	if core.Status != models.SessionStatusReady && core.Status != models.SessionStatusScheduled {
		return nil
	}

	var teacher models.Teacher
	if err := tx.First(&teacher, core.TeacherID).Error; err != nil {
		return err
	}
	if teacher.UserID != ev.UserID {
		return nil
	}

	err = TransitionSession(tx, sess, models.SessionStatusOngoing, map[string]interface{}{
		"actual_start_at": ev.EventTimestamp,
	})
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return nil
	}
	return err
}

// ReconcileUnmatchedEvents re-pairs leave events whose join arrived after
// them, and closes joins that never received a leave once the session window
// plus grace has long passed. Runs from the periodic sweep.
func ReconcileUnmatchedEvents(db *gorm.DB, graceMinutes, orphanCloseHours int) (int, error) {
	horizon, cutoff := reconcileScanWindow(time.Now(), graceMinutes, orphanCloseHours)

	var leaves []models.MeetingAttendanceEvent
	if err := db.Where("event_type IN ? AND event_timestamp >= ? AND event_timestamp < ?",
		[]string{models.AttendanceEventLeave, models.AttendanceEventAborted}, horizon, cutoff).
		Find(&leaves).Error; err != nil {
		return 0, err
	}
	if len(leaves) == 0 {
		return closeOrphanedJoins(db, orphanCloseHours)
	}

	candidateIDs := make([]string, len(leaves))
	for i := range leaves {
		candidateIDs[i] = leaves[i].EventID
	}
	var pairedIDs []string
	if err := db.Model(&models.MeetingAttendanceEvent{}).
		Where("leave_event_id IN ?", candidateIDs).
		Pluck("leave_event_id", &pairedIDs).Error; err != nil {
		return 0, err
	}
	paired := make(map[string]bool, len(pairedIDs))
	for _, id := range pairedIDs {
		paired[id] = true
	}

	fixed := 0
	for i := range leaves {
		leave := &leaves[i]
		if paired[leave.EventID] {
			continue
		}
		if err := stampMatchingJoin(db, leave); err != nil {
			log.WithError(err).WithField("event_id", leave.EventID).Error("Failed to re-pair leave event")
			continue
		}
		fixed++
	}

	closed, err := closeOrphanedJoins(db, orphanCloseHours)
	return fixed + closed, err
}

// reconcileScanWindow returns the [oldest, newest) event_timestamp range a
// reconciliation pass considers. The newest bound leaves recent events alone
// until the matching grace passes; the oldest bound keeps the pass from
// re-scanning history every sweep. Anything older than the orphan horizon
// has had every sweep since its session to pair up, and its counterpart join
// was force-closed at that same horizon.
func reconcileScanWindow(now time.Time, graceMinutes, orphanCloseHours int) (oldest, newest time.Time) {
	return now.Add(-time.Duration(orphanCloseHours) * time.Hour),
		now.Add(-time.Duration(graceMinutes) * time.Minute)
}

// closeOrphanedJoins stamps joins still open long after their session ended,
// so a crashed client cannot leave a participant connected forever.
func closeOrphanedJoins(db *gorm.DB, orphanCloseHours int) (int, error) {
	horizon := time.Now().Add(-time.Duration(orphanCloseHours) * time.Hour)

	var orphans []models.MeetingAttendanceEvent
	if err := db.Where("event_type IN ? AND left_at IS NULL AND event_timestamp < ?",
		[]string{models.AttendanceEventJoin, models.AttendanceEventReconnect}, horizon).
		Find(&orphans).Error; err != nil {
		return 0, err
	}

	closed := 0
	for i := range orphans {
		join := &orphans[i]
		sess, err := FindSession(db, join.SessionRef())
		if err != nil {
			continue
		}
		closeAt := sess.Core().ScheduledEndAt()
		if closeAt.Before(join.EventTimestamp) {
			closeAt = join.EventTimestamp
		}
		duration := int(closeAt.Sub(join.EventTimestamp) / time.Minute)
		if err := db.Model(join).Updates(map[string]interface{}{
			"left_at":          closeAt,
			"duration_minutes": duration,
		}).Error; err != nil {
			log.WithError(err).WithField("event_id", join.EventID).Error("Failed to close orphaned join")
			continue
		}
		closed++
	}
	if closed > 0 {
		log.WithField("count", closed).Info("Closed orphaned join events")
	}
	return closed, nil
}

// SessionEvents returns the full ordered event log for a session.
func SessionEvents(db *gorm.DB, ref models.SessionRef) ([]models.MeetingAttendanceEvent, error) {
	var events []models.MeetingAttendanceEvent
	err := db.Where("session_kind = ? AND session_id = ?", ref.Kind, ref.ID).
		Order("event_timestamp asc").Find(&events).Error
	return events, err
}
