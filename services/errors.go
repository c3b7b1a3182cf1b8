package services

import (
	"errors"
	"fmt"

	"ilmhub_go/models"
)

// ErrPayoutRejected is returned on an attempt to approve a rejected payout.
// Rejection released its earnings back to the unassigned pool, so the payout
// must be regrouped before it can be approved.
var ErrPayoutRejected = errors.New("payout was rejected and its earnings released; regroup first")

// InvalidTransitionError is returned when a requested status change is not in
// the transition table, or when the check-and-set lost a race and the session
// is no longer in the expected status. Nothing is mutated in either case.
type InvalidTransitionError struct {
	Ref  models.SessionRef
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s: %s -> %s", e.Ref, e.From, e.To)
}

// InvalidScheduleError is returned when a scheduling command supplies a
// timestamp in the past or inside the academy's minimum-notice window.
type InvalidScheduleError struct {
	Ref    models.SessionRef
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule for %s: %s", e.Ref, e.Reason)
}

// PayoutLockViolationError is returned on any attempt to add or mutate an
// earning inside an approved payout. It is fatal and never auto-recovered;
// corrections require an explicit compensating adjustment.
type PayoutLockViolationError struct {
	PayoutID uint
	Month    string
}

func (e *PayoutLockViolationError) Error() string {
	return fmt.Sprintf("payout %d for month %s is approved and locked", e.PayoutID, e.Month)
}

// SubscriptionExhaustedWarning is raised when reconciliation would push the
// remaining counter below zero. The counter is clamped at zero and the
// session outcome stands; callers surface the warning, they do not fail.
type SubscriptionExhaustedWarning struct {
	SubscriptionID uint
	Outcome        string
}

func (e *SubscriptionExhaustedWarning) Error() string {
	return fmt.Sprintf("subscription %d exhausted while recording outcome %q", e.SubscriptionID, e.Outcome)
}

// ReportFinalizedError is returned when a mutation would bypass the report
// override path for a (session, student) pair whose report is finalized.
type ReportFinalizedError struct {
	Ref           models.SessionRef
	StudentUserID uint
}

func (e *ReportFinalizedError) Error() string {
	return fmt.Sprintf("report for %s student %d is finalized", e.Ref, e.StudentUserID)
}
