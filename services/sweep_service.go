package services

import (
	"sync"
	"time"

	"ilmhub_go/config"
	"ilmhub_go/database"
	"ilmhub_go/models"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SweepScheduler runs the time-based transitions the webhook feed cannot
// drive: room preparation, no-show detection, overdue completion, event-log
// reconciliation and the monthly payout grouping. Every sweep re-checks the
// current status through the state machine's check-and-set, so racing a
// concurrent webhook transition is harmless.
type SweepScheduler struct {
	db   *gorm.DB
	cron *cron.Cron
}

func NewSweepScheduler() *SweepScheduler {
	return &SweepScheduler{
		db:   database.GetDB(),
		cron: cron.New(),
	}
}

// Start registers the sweep jobs and runs the cron loop in the background.
func (s *SweepScheduler) Start() error {
	if _, err := s.cron.AddFunc(config.AppConfig.SweepCronSpec, s.RunSweeps); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(config.AppConfig.PayoutCronSpec, s.RunMonthlyPayouts); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(config.AppConfig.ArchiveFlushCronSpec, s.RunArchiveFlush); err != nil {
		return err
	}
	s.cron.Start()
	log.Info("Sweep scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

var sweepHeartbeat struct {
	mu sync.Mutex
	at time.Time
}

// LastSweepRun reports when a sweep pass last completed. ok is false until
// the first pass finishes.
func LastSweepRun() (at time.Time, ok bool) {
	sweepHeartbeat.mu.Lock()
	defer sweepHeartbeat.mu.Unlock()
	return sweepHeartbeat.at, !sweepHeartbeat.at.IsZero()
}

func markSweepRun(t time.Time) {
	sweepHeartbeat.mu.Lock()
	sweepHeartbeat.at = t
	sweepHeartbeat.mu.Unlock()
}

// RunSweeps executes one pass of every per-minute sweep.
func (s *SweepScheduler) RunSweeps() {
	s.PrepareRooms()
	s.ResolveNoShows()
	s.CompleteOverdueSessions()
	s.ReconcileEventLog()
	markSweepRun(time.Now())
}

// PrepareRooms moves scheduled sessions into ready once the preparation
// window opens, assigning the meeting room the provider will post events
// against.
func (s *SweepScheduler) PrepareRooms() {
	now := time.Now()
	s.forEachSession([]string{models.SessionStatusScheduled}, func(sess models.Session) {
		core := sess.Core()
		settings := SettingsForSession(s.db, core.AcademyID)
		window := time.Duration(settings.PreparationWindowMinutes) * time.Minute
		if core.ScheduledAt.After(now.Add(window)) {
			return
		}
		if err := MarkSessionRoomReady(s.db, sess); err != nil {
			logSweepTransition("prepare room", sess, err)
		}
	})
}

// ResolveNoShows terminates sessions whose start passed the missed grace
// without ever going ongoing, including teacher no-shows a learner waited
// out.
func (s *SweepScheduler) ResolveNoShows() {
	now := time.Now()
	s.forEachSession([]string{models.SessionStatusScheduled, models.SessionStatusReady}, func(sess models.Session) {
		core := sess.Core()
		settings := SettingsForSession(s.db, core.AcademyID)
		grace := time.Duration(settings.MissedGraceMinutes) * time.Minute
		if core.ScheduledAt.IsZero() || now.Before(core.ScheduledAt.Add(grace)) {
			return
		}

		teacherJoined, anyLearnerJoined, err := s.joinPresence(sess)
		if err != nil {
			logSweepTransition("check no-show", sess, err)
			return
		}
		endGrace := time.Duration(settings.CompletionGraceMinutes) * time.Minute
		pastEndWindow := now.After(core.ScheduledEndAt().Add(endGrace))

		switch noShowOutcome(sess.Ref().Kind, teacherJoined, anyLearnerJoined, pastEndWindow) {
		case "":
			return
		case models.SessionStatusCancelled:
			// A learner showed up but the teacher never did. The booking is
			// voided at the teacher's expense: system cancellation does not
			// consume a subscription session.
			if _, err := CancelSession(s.db, sess.Ref(), models.CancellationBySystem, "teacher never joined"); err != nil {
				logSweepTransition("void teacher no-show", sess, err)
			}
			return
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			fresh, err := FindSession(tx, sess.Ref())
			if err != nil {
				return err
			}
			_, err = ResolveMissedSession(tx, fresh, teacherJoined)
			return err
		})
		if err != nil {
			logSweepTransition("resolve no-show", sess, err)
		} else {
			notifyTerminalOutcome(s.db, sess)
		}
	})
}

// noShowOutcome decides what becomes of a session that never went ongoing
// once the missed grace has passed. An empty result means keep waiting: a
// learner is connected and the teacher still has until the end of the
// session window to show up.
func noShowOutcome(kind string, teacherJoined, anyLearnerJoined, pastEndWindow bool) string {
	switch {
	case !anyLearnerJoined && teacherJoined && kind == models.SessionKindIndividual:
		return models.SessionStatusAbsent
	case !anyLearnerJoined:
		return models.SessionStatusMissed
	case !teacherJoined && pastEndWindow:
		return models.SessionStatusCancelled
	default:
		return ""
	}
}

// CompleteOverdueSessions closes ongoing sessions once the scheduled end
// plus grace has elapsed. Individual sessions with no learner join resolve
// as absences rather than completions.
func (s *SweepScheduler) CompleteOverdueSessions() {
	now := time.Now()
	s.forEachSession([]string{models.SessionStatusOngoing}, func(sess models.Session) {
		core := sess.Core()
		settings := SettingsForSession(s.db, core.AcademyID)
		grace := time.Duration(settings.CompletionGraceMinutes) * time.Minute
		if now.Before(core.ScheduledEndAt().Add(grace)) {
			return
		}

		_, anyLearnerJoined, err := s.joinPresence(sess)
		if err != nil {
			logSweepTransition("check overdue", sess, err)
			return
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			fresh, err := FindSession(tx, sess.Ref())
			if err != nil {
				return err
			}
			if overdueOutcome(fresh.Ref().Kind, anyLearnerJoined) == models.SessionStatusAbsent {
				_, err = ResolveMissedSession(tx, fresh, true)
				return err
			}
			if err := TransitionSession(tx, fresh, models.SessionStatusCompleted, map[string]interface{}{
				"actual_end_at": fresh.Core().ScheduledEndAt(),
			}); err != nil {
				return err
			}
			_, err = finalizeTerminal(tx, fresh)
			return err
		})
		if err != nil {
			logSweepTransition("complete overdue", sess, err)
		} else {
			notifyTerminalOutcome(s.db, sess)
		}
	})
}

// overdueOutcome decides how an ongoing session past its end window closes.
// An individual session whose student never connected was held open by the
// teacher's join alone; it closes as the student's absence, not as a
// completion that would bill the subscription and earn the teacher.
func overdueOutcome(kind string, anyLearnerJoined bool) string {
	if kind == models.SessionKindIndividual && !anyLearnerJoined {
		return models.SessionStatusAbsent
	}
	return models.SessionStatusCompleted
}

// ReconcileEventLog re-pairs out-of-order leaves and closes orphaned joins,
// per academy policy.
func (s *SweepScheduler) ReconcileEventLog() {
	var allSettings []models.AcademySettings
	if err := s.db.Find(&allSettings).Error; err != nil {
		log.WithError(err).Error("Failed to load academy settings for event reconciliation")
		return
	}
	if len(allSettings) == 0 {
		allSettings = []models.AcademySettings{models.DefaultAcademySettings(0)}
	}
	// The grace and orphan windows are scalar policies; use the tightest
	// configured values for the global pass.
	grace := allSettings[0].UnmatchedEventGraceMinutes
	orphan := allSettings[0].OrphanedJoinCloseHours
	for _, st := range allSettings[1:] {
		if st.UnmatchedEventGraceMinutes < grace {
			grace = st.UnmatchedEventGraceMinutes
		}
		if st.OrphanedJoinCloseHours < orphan {
			orphan = st.OrphanedJoinCloseHours
		}
	}

	if n, err := ReconcileUnmatchedEvents(s.db, grace, orphan); err != nil {
		log.WithError(err).Error("Event log reconciliation failed")
	} else if n > 0 {
		log.WithField("events", n).Info("Reconciled attendance events")
	}
}

// RunMonthlyPayouts groups the previous month's earnings into pending
// payouts.
func (s *SweepScheduler) RunMonthlyPayouts() {
	month := MonthKey(time.Now().AddDate(0, -1, 0))
	n, err := GroupMonthlyPayouts(s.db, month)
	if err != nil {
		log.WithError(err).WithField("month", month).Error("Monthly payout grouping failed")
		return
	}
	log.WithFields(log.Fields{"month": month, "payouts": n}).Info("Monthly payouts grouped")
}

// RunArchiveFlush moves old stamped attendance events and activity logs into
// cold storage.
func (s *SweepScheduler) RunArchiveFlush() {
	if err := NewArchiveService().FlushOnce(); err != nil {
		log.WithError(err).Error("Archive flush failed")
	}
}

// forEachSession loads the sessions of every kind currently in one of the
// given statuses and applies fn.
func (s *SweepScheduler) forEachSession(statuses []string, fn func(models.Session)) {
	var individuals []models.IndividualSession
	if err := s.db.Preload("Student").Where("status IN ?", statuses).Find(&individuals).Error; err == nil {
		for i := range individuals {
			fn(&individuals[i])
		}
	}
	var circles []models.CircleSession
	if err := s.db.Preload("Circle.Members.Student").Where("status IN ?", statuses).Find(&circles).Error; err == nil {
		for i := range circles {
			fn(&circles[i])
		}
	}
	var courses []models.CourseSession
	if err := s.db.Preload("Course.Enrollments.Student").Where("status IN ?", statuses).Find(&courses).Error; err == nil {
		for i := range courses {
			fn(&courses[i])
		}
	}
}

// joinPresence reports whether the teacher and any learner have join events
// for the session.
func (s *SweepScheduler) joinPresence(sess models.Session) (teacherJoined, anyLearnerJoined bool, err error) {
	ref := sess.Ref()
	core := sess.Core()

	var teacher models.Teacher
	if err := s.db.First(&teacher, core.TeacherID).Error; err != nil {
		return false, false, err
	}

	var joinedUserIDs []uint
	if err := s.db.Model(&models.MeetingAttendanceEvent{}).
		Where("session_kind = ? AND session_id = ? AND event_type IN ?",
			ref.Kind, ref.ID, []string{models.AttendanceEventJoin, models.AttendanceEventReconnect}).
		Distinct().Pluck("user_id", &joinedUserIDs).Error; err != nil {
		return false, false, err
	}

	learners := make(map[uint]bool, len(sess.LearnerIDs()))
	for _, id := range sess.LearnerIDs() {
		learners[id] = true
	}
	for _, id := range joinedUserIDs {
		if id == teacher.UserID {
			teacherJoined = true
		}
		if learners[id] {
			anyLearnerJoined = true
		}
	}
	return teacherJoined, anyLearnerJoined, nil
}

func logSweepTransition(op string, sess models.Session, err error) {
	if _, ok := err.(*InvalidTransitionError); ok {
		// Lost the race to a webhook-driven transition; nothing to do.
		return
	}
	log.WithError(err).WithField("session", sess.Ref().String()).Errorf("Sweep failed to %s", op)
}
