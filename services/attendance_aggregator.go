package services

import (
	"errors"
	"sort"
	"time"

	"ilmhub_go/models"

	"gorm.io/gorm"
)

// SummaryResult is the outcome of replaying the attendance event log for one
// (session, participant) pair.
type SummaryResult struct {
	Status               string
	FirstJoinAt          *time.Time
	LastLeaveAt          *time.Time
	TotalMinutes         int
	AttendancePercentage float64
	LateMinutes          int
}

// connectionCycle is one matched join..leave interval for a participant_sid.
type connectionCycle struct {
	start time.Time
	end   time.Time
}

// ComputeSummary derives the attendance summary for one participant purely
// from the event log. It never reads or writes AttendanceSummary rows; the
// log is authoritative and replaying it from empty state must reproduce the
// incrementally maintained summary.
//
// Matching is semantic, not arrival-order based: events are paired per
// participant_sid by their provider timestamps, so a leave ingested before
// its join still lands in the right cycle. Joins still open at asOf are
// closed at the scheduled end plus the completion grace (or at asOf if that
// is earlier), mirroring the orphan-close sweep.
func ComputeSummary(core *models.SessionCore, userID uint, events []models.MeetingAttendanceEvent, settings models.AcademySettings, asOf time.Time) SummaryResult {
	cycles := pairConnectionCycles(userID, events, core, settings, asOf)

	if len(cycles) == 0 {
		return SummaryResult{Status: models.AttendanceStatusAbsent}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i].start.Before(cycles[j].start) })

	firstJoin := cycles[0].start
	lastLeave := cycles[0].end
	total := time.Duration(0)
	for _, c := range cycles {
		if c.end.After(lastLeave) {
			lastLeave = c.end
		}
		total += c.end.Sub(c.start)
	}

	totalMinutes := int(total / time.Minute)
	duration := core.DurationMinutes
	if duration <= 0 {
		duration = 1
	}
	pct := float64(totalMinutes) / float64(duration) * 100
	if pct > 100 {
		pct = 100
	}

	lateMinutes := 0
	if firstJoin.After(core.ScheduledAt) {
		lateMinutes = int(firstJoin.Sub(core.ScheduledAt) / time.Minute)
	}

	result := SummaryResult{
		FirstJoinAt:          &firstJoin,
		LastLeaveAt:          &lastLeave,
		TotalMinutes:         totalMinutes,
		AttendancePercentage: pct,
		LateMinutes:          lateMinutes,
	}

	tolerance := settings.LateToleranceMinutes
	minPct := float64(settings.MinimumAttendancePercentage)

	switch {
	case totalMinutes == 0 || pct < minPct:
		result.Status = models.AttendanceStatusAbsent
	case lateMinutes > tolerance:
		result.Status = models.AttendanceStatusLate
	case lastLeave.Before(core.ScheduledEndAt().Add(-time.Duration(tolerance) * time.Minute)):
		result.Status = models.AttendanceStatusLeftEarly
	default:
		result.Status = models.AttendanceStatusAttended
	}

	return result
}

// pairConnectionCycles matches join/reconnect events to their leave/aborted
// counterparts per participant_sid, by provider timestamp.
func pairConnectionCycles(userID uint, events []models.MeetingAttendanceEvent, core *models.SessionCore, settings models.AcademySettings, asOf time.Time) []connectionCycle {
	bySID := make(map[string][]models.MeetingAttendanceEvent)
	for _, ev := range events {
		if ev.UserID != userID {
			continue
		}
		bySID[ev.ParticipantSID] = append(bySID[ev.ParticipantSID], ev)
	}

	// The latest moment an open join may be considered still connected.
	closeAt := core.ScheduledEndAt().Add(time.Duration(settings.CompletionGraceMinutes) * time.Minute)
	if asOf.Before(closeAt) {
		closeAt = asOf
	}

	var cycles []connectionCycle
	for _, evs := range bySID {
		sort.Slice(evs, func(i, j int) bool { return evs[i].EventTimestamp.Before(evs[j].EventTimestamp) })

		var open *time.Time
		for _, ev := range evs {
			switch ev.EventType {
			case models.AttendanceEventJoin, models.AttendanceEventReconnect:
				if open == nil {
					t := ev.EventTimestamp
					open = &t
				}
			case models.AttendanceEventLeave, models.AttendanceEventAborted:
				if open != nil && ev.EventTimestamp.After(*open) {
					cycles = append(cycles, connectionCycle{start: *open, end: ev.EventTimestamp})
					open = nil
				}
				// A leave with no open join stays unmatched here; the
				// reconciliation sweep re-pairs it once the join lands.
			}
		}
		if open != nil && closeAt.After(*open) {
			cycles = append(cycles, connectionCycle{start: *open, end: closeAt})
		}
	}

	return cycles
}

// RecomputeAndPersistSummary replays the log for one participant and writes
// the derived AttendanceSummary row. A manual override pins the row: it is
// returned untouched until the override is explicitly cleared.
func RecomputeAndPersistSummary(tx *gorm.DB, sess models.Session, userID uint, settings models.AcademySettings) (*models.AttendanceSummary, error) {
	ref := sess.Ref()

	var summary models.AttendanceSummary
	err := tx.Where("session_kind = ? AND session_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).First(&summary).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && summary.ManualOverride {
		return &summary, nil
	}

	var events []models.MeetingAttendanceEvent
	if err := tx.Where("session_kind = ? AND session_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Order("event_timestamp asc").Find(&events).Error; err != nil {
		return nil, err
	}

	result := ComputeSummary(sess.Core(), userID, events, settings, time.Now())

	summary.SessionKind = ref.Kind
	summary.SessionID = ref.ID
	summary.UserID = userID
	summary.Status = result.Status
	summary.FirstJoinAt = result.FirstJoinAt
	summary.LastLeaveAt = result.LastLeaveAt
	summary.TotalMinutes = result.TotalMinutes
	summary.AttendancePercentage = result.AttendancePercentage
	summary.LateMinutes = result.LateMinutes

	if err := tx.Save(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// OverrideSummary applies an admin correction. The override flag makes the
// aggregator skip this pair on every future recomputation.
func OverrideSummary(tx *gorm.DB, ref models.SessionRef, userID uint, status string, adminID uint, reason string) (*models.AttendanceSummary, error) {
	// Once the report exists the summary feeding it is frozen; corrections
	// go through the report override, which records who changed what.
	var finalized int64
	tx.Model(&models.SessionReport{}).
		Where("session_kind = ? AND session_id = ? AND student_user_id = ? AND finalized = ?", ref.Kind, ref.ID, userID, true).
		Count(&finalized)
	if finalized > 0 {
		return nil, &ReportFinalizedError{Ref: ref, StudentUserID: userID}
	}

	var summary models.AttendanceSummary
	err := tx.Where("session_kind = ? AND session_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).First(&summary).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		summary = models.AttendanceSummary{SessionKind: ref.Kind, SessionID: ref.ID, UserID: userID}
	}

	summary.Status = status
	summary.ManualOverride = true
	summary.OverriddenBy = &adminID
	summary.OverrideReason = reason

	if err := tx.Save(&summary).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

// ClearSummaryOverride removes the pin and immediately recomputes from the log.
func ClearSummaryOverride(tx *gorm.DB, sess models.Session, userID uint, settings models.AcademySettings) (*models.AttendanceSummary, error) {
	ref := sess.Ref()
	if err := tx.Model(&models.AttendanceSummary{}).
		Where("session_kind = ? AND session_id = ? AND user_id = ?", ref.Kind, ref.ID, userID).
		Updates(map[string]interface{}{"manual_override": false, "overridden_by": nil, "override_reason": ""}).Error; err != nil {
		return nil, err
	}
	return RecomputeAndPersistSummary(tx, sess, userID, settings)
}
