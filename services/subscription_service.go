package services

import (
	"errors"

	"ilmhub_go/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterDelta is the counter adjustment a terminal session outcome produces.
type CounterDelta struct {
	Completed int
	Missed    int
	Scheduled int
}

// IsZero reports whether the delta changes nothing.
func (d CounterDelta) IsZero() bool {
	return d.Completed == 0 && d.Missed == 0 && d.Scheduled == 0
}

// ReconcileOutcome maps a terminal session outcome to a counter delta.
// Student-caused losses consume the entitlement; teacher- or system-caused
// cancellations do not.
func ReconcileOutcome(status, cancellationType string) CounterDelta {
	switch status {
	case models.SessionStatusCompleted:
		return CounterDelta{Completed: 1}
	case models.SessionStatusMissed, models.SessionStatusAbsent:
		return CounterDelta{Missed: 1}
	case models.SessionStatusCancelled:
		if cancellationType == models.CancellationByStudent {
			return CounterDelta{Missed: 1}
		}
		return CounterDelta{}
	default:
		return CounterDelta{}
	}
}

// ApplyCounterDelta applies a delta to a counter snapshot. Remaining is
// clamped at zero; the returned flag reports whether clamping occurred, in
// which case the caller raises SubscriptionExhaustedWarning instead of
// failing the transition.
func ApplyCounterDelta(sub *models.Subscription, delta CounterDelta) bool {
	sub.SessionsCompleted += delta.Completed
	sub.SessionsMissed += delta.Missed
	sub.SessionsScheduled += delta.Scheduled
	if sub.SessionsScheduled < 0 {
		sub.SessionsScheduled = 0
	}

	remaining := sub.TotalSessions - sub.SessionsCompleted - sub.SessionsMissed
	clamped := remaining < 0
	if clamped {
		remaining = 0
		// Keep completed + missed <= total so both invariants hold.
		overshoot := sub.SessionsCompleted + sub.SessionsMissed - sub.TotalSessions
		if delta.Missed > 0 {
			sub.SessionsMissed -= overshoot
		} else if delta.Completed > 0 {
			sub.SessionsCompleted -= overshoot
		}
	}
	sub.SessionsRemaining = remaining

	if sub.SessionsRemaining == 0 && sub.Status == "active" {
		sub.Status = "exhausted"
	}
	return clamped
}

// ReconcileSubscription adjusts a subscription's counters for one terminal
// session outcome, inside the caller's transaction and under a row lock.
// A clamp is surfaced as a SubscriptionExhaustedWarning; the caller logs it
// and lets the session transition stand.
func ReconcileSubscription(tx *gorm.DB, subscriptionID uint, status, cancellationType string) error {
	delta := ReconcileOutcome(status, cancellationType)
	if delta.IsZero() {
		return nil
	}

	var sub models.Subscription
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithField("subscription_id", subscriptionID).Warn("Reconciliation skipped: subscription not found")
			return nil
		}
		return err
	}

	clamped := ApplyCounterDelta(&sub, delta)

	if err := tx.Model(&sub).Updates(map[string]interface{}{
		"sessions_completed": sub.SessionsCompleted,
		"sessions_missed":    sub.SessionsMissed,
		"sessions_scheduled": sub.SessionsScheduled,
		"sessions_remaining": sub.SessionsRemaining,
		"status":             sub.Status,
	}).Error; err != nil {
		return err
	}

	if clamped {
		return &SubscriptionExhaustedWarning{SubscriptionID: subscriptionID, Outcome: status}
	}
	return nil
}

// MarkSessionScheduled bumps the scheduled counter when an individual
// session is booked against a subscription.
func MarkSessionScheduled(tx *gorm.DB, subscriptionID uint) error {
	return tx.Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Update("sessions_scheduled", gorm.Expr("sessions_scheduled + 1")).Error
}
