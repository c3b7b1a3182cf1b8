package services

import (
	"errors"

	"ilmhub_go/models"

	"gorm.io/gorm"
)

// sessionTransitions is the forward transition table. A status change is
// valid only if it appears here; terminal states have no outgoing edges.
//
//	unscheduled -> scheduled -> ready -> ongoing -> completed
//	        \          \___________\______ missed / absent
//	         \__ any non-terminal ________ cancelled / rescheduled
//	rescheduled -> scheduled (re-entrant, new timestamp)
var sessionTransitions = map[string][]string{
	models.SessionStatusUnscheduled: {
		models.SessionStatusScheduled,
		models.SessionStatusCancelled,
		models.SessionStatusRescheduled,
	},
	models.SessionStatusScheduled: {
		models.SessionStatusReady,
		// A join webhook can land before the preparation sweep ran, so the
		// ongoing edge exists from scheduled as well as ready.
		models.SessionStatusOngoing,
		models.SessionStatusMissed,
		models.SessionStatusAbsent,
		models.SessionStatusCancelled,
		models.SessionStatusRescheduled,
	},
	models.SessionStatusReady: {
		models.SessionStatusOngoing,
		models.SessionStatusMissed,
		models.SessionStatusAbsent,
		models.SessionStatusCancelled,
		models.SessionStatusRescheduled,
	},
	models.SessionStatusOngoing: {
		models.SessionStatusCompleted,
		models.SessionStatusAbsent,
		models.SessionStatusCancelled,
		models.SessionStatusRescheduled,
	},
	models.SessionStatusRescheduled: {
		models.SessionStatusScheduled,
		models.SessionStatusCancelled,
	},
	// Terminal states
	models.SessionStatusCompleted: {},
	models.SessionStatusCancelled: {},
	models.SessionStatusAbsent:    {},
	models.SessionStatusMissed:    {},
}

// CanTransition reports whether from -> to is a valid forward edge.
func CanTransition(from, to string) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status admits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case models.SessionStatusCompleted, models.SessionStatusCancelled,
		models.SessionStatusAbsent, models.SessionStatusMissed:
		return true
	}
	return false
}

// TransitionSession performs the atomic check-and-set status change. The
// UPDATE is guarded by the expected current status, so a concurrent webhook
// and admin command cannot both win: the loser sees zero affected rows and
// gets InvalidTransitionError without mutating anything.
//
// extra carries additional columns written together with the status (actual
// start/end times, cancellation fields). On success the in-memory session
// core is updated to match.
func TransitionSession(tx *gorm.DB, sess models.Session, to string, extra map[string]interface{}) error {
	core := sess.Core()
	from := core.Status

	if !CanTransition(from, to) {
		return &InvalidTransitionError{Ref: sess.Ref(), From: from, To: to}
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(sess).Where("id = ? AND status = ?", sess.GetID(), from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race: someone else moved the session first.
		return &InvalidTransitionError{Ref: sess.Ref(), From: from, To: to}
	}

	core.Status = to
	return nil
}

// FindSession resolves a polymorphic session reference to its concrete row,
// preloading the participants the engine needs.
func FindSession(db *gorm.DB, ref models.SessionRef) (models.Session, error) {
	switch ref.Kind {
	case models.SessionKindIndividual:
		var s models.IndividualSession
		if err := db.Preload("Student").Preload("Teacher").First(&s, ref.ID).Error; err != nil {
			return nil, err
		}
		return &s, nil
	case models.SessionKindCircle:
		var s models.CircleSession
		if err := db.Preload("Circle.Members.Student").Preload("Teacher").First(&s, ref.ID).Error; err != nil {
			return nil, err
		}
		return &s, nil
	case models.SessionKindCourse:
		var s models.CourseSession
		if err := db.Preload("Course.Enrollments.Student").Preload("Teacher").First(&s, ref.ID).Error; err != nil {
			return nil, err
		}
		return &s, nil
	}
	return nil, errors.New("unknown session kind: " + ref.Kind)
}

// sessionModelFor returns an empty concrete model for bulk queries by kind.
func sessionModelFor(kind string) interface{} {
	switch kind {
	case models.SessionKindIndividual:
		return &models.IndividualSession{}
	case models.SessionKindCircle:
		return &models.CircleSession{}
	case models.SessionKindCourse:
		return &models.CourseSession{}
	}
	return nil
}
