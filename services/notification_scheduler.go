package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"ilmhub_go/database"
	"ilmhub_go/models"
	notifsvc "ilmhub_go/services/notifications"

	log "github.com/sirupsen/logrus"
)

// ReminderScheduler sends upcoming-session reminders to teachers and
// learners ahead of the scheduled start.
type ReminderScheduler struct {
	db *gorm.DB
}

func NewReminderScheduler() *ReminderScheduler {
	return &ReminderScheduler{db: database.DB}
}

// Start runs the reminder loop every 15 minutes until the stop channel
// closes.
func (rs *ReminderScheduler) Start(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		log.Info("Reminder scheduler started")
		for {
			select {
			case <-stop:
				log.Info("Reminder scheduler stopping")
				return
			case <-ticker.C:
				rs.CheckUpcomingSessions()
			}
		}
	}()
}

// CheckUpcomingSessions finds sessions starting in roughly 30 or 60 minutes
// and notifies their participants once per window.
func (rs *ReminderScheduler) CheckUpcomingSessions() {
	now := time.Now()

	reminderWindows := []struct {
		minutes int
		label   string
	}{
		{30, "30 minutes"},
		{60, "1 hour"},
	}

	for _, window := range reminderWindows {
		targetTime := now.Add(time.Duration(window.minutes) * time.Minute)
		startRange := targetTime.Add(-5 * time.Minute)
		endRange := targetTime.Add(5 * time.Minute)

		rs.forEachUpcoming(startRange, endRange, func(sess models.Session) {
			if rs.reminderAlreadySent(sess, window.minutes) {
				return
			}
			rs.sendUpcomingReminder(sess, window.label, window.minutes)
		})
	}
}

func (rs *ReminderScheduler) forEachUpcoming(from, to time.Time, fn func(models.Session)) {
	statuses := []string{models.SessionStatusScheduled, models.SessionStatusReady}

	var individuals []models.IndividualSession
	if err := rs.db.Preload("Student").Where("scheduled_at BETWEEN ? AND ? AND status IN ?", from, to, statuses).
		Find(&individuals).Error; err == nil {
		for i := range individuals {
			fn(&individuals[i])
		}
	}
	var circles []models.CircleSession
	if err := rs.db.Preload("Circle.Members.Student").Where("scheduled_at BETWEEN ? AND ? AND status IN ?", from, to, statuses).
		Find(&circles).Error; err == nil {
		for i := range circles {
			fn(&circles[i])
		}
	}
	var courses []models.CourseSession
	if err := rs.db.Preload("Course.Enrollments.Student").Where("scheduled_at BETWEEN ? AND ? AND status IN ?", from, to, statuses).
		Find(&courses).Error; err == nil {
		for i := range courses {
			fn(&courses[i])
		}
	}
}

// reminderAlreadySent checks whether this window's reminder for the session
// already exists, keyed by the title carrying the window size.
func (rs *ReminderScheduler) reminderAlreadySent(sess models.Session, minutes int) bool {
	core := sess.Core()
	title := reminderTitle(minutes)

	var count int64
	rs.db.Model(&models.Notification{}).
		Where("title = ? AND message LIKE ? AND created_at > ?",
			title, "%"+sess.Ref().String()+"%", core.ScheduledAt.Add(-2*time.Hour)).
		Count(&count)
	return count > 0
}

func reminderTitle(minutes int) string {
	return fmt.Sprintf("Session starting in %d minutes", minutes)
}

func (rs *ReminderScheduler) sendUpcomingReminder(sess models.Session, label string, minutes int) {
	core := sess.Core()

	userIDs := append([]uint{}, sess.LearnerIDs()...)
	var teacher models.Teacher
	if err := rs.db.First(&teacher, core.TeacherID).Error; err == nil {
		userIDs = append(userIDs, teacher.UserID)
	}
	if len(userIDs) == 0 {
		return
	}

	message := fmt.Sprintf("Your session %s starts in %s, at %s.",
		sess.Ref().String(), label, core.ScheduledAt.Format("15:04"))

	if err := notifsvc.NewService().EnqueueOrCreate(userIDs, notifsvc.Queued(reminderTitle(minutes), message, "info")); err != nil {
		log.WithError(err).WithField("session", sess.Ref().String()).Warn("Failed to send session reminder")
	}
}
