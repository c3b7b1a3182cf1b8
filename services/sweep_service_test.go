package services

import (
	"testing"
	"time"

	"ilmhub_go/models"
)

func TestSweepHeartbeat(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	markSweepRun(at)
	got, ok := LastSweepRun()
	if !ok {
		t.Fatal("LastSweepRun() ok = false after a pass was recorded")
	}
	if !got.Equal(at) {
		t.Errorf("LastSweepRun() = %v, want %v", got, at)
	}
}

func TestNoShowOutcome(t *testing.T) {
	tests := []struct {
		name             string
		kind             string
		teacherJoined    bool
		anyLearnerJoined bool
		pastEndWindow    bool
		want             string
	}{
		{"nobody joined", models.SessionKindIndividual, false, false, false, models.SessionStatusMissed},
		{"teacher alone individual", models.SessionKindIndividual, true, false, false, models.SessionStatusAbsent},
		{"teacher alone circle", models.SessionKindCircle, true, false, false, models.SessionStatusMissed},
		{"teacher alone course", models.SessionKindCourse, true, false, false, models.SessionStatusMissed},
		{"student waiting inside window", models.SessionKindIndividual, false, true, false, ""},
		{"student waited out the window", models.SessionKindIndividual, false, true, true, models.SessionStatusCancelled},
		{"circle learner waited out the window", models.SessionKindCircle, false, true, true, models.SessionStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := noShowOutcome(tt.kind, tt.teacherJoined, tt.anyLearnerJoined, tt.pastEndWindow)
			if got != tt.want {
				t.Errorf("noShowOutcome(%q, %v, %v, %v) = %q, want %q",
					tt.kind, tt.teacherJoined, tt.anyLearnerJoined, tt.pastEndWindow, got, tt.want)
			}
		})
	}
}

// A teacher join alone takes an individual session ongoing, so the overdue
// sweep is the last chance to catch a student who never connected. That
// session must close as an absence, never as a billable completion.
func TestOverdueOutcome(t *testing.T) {
	tests := []struct {
		name             string
		kind             string
		anyLearnerJoined bool
		want             string
	}{
		{"individual with student present", models.SessionKindIndividual, true, models.SessionStatusCompleted},
		{"individual student never joined", models.SessionKindIndividual, false, models.SessionStatusAbsent},
		{"circle with no learner joins", models.SessionKindCircle, false, models.SessionStatusCompleted},
		{"course with no learner joins", models.SessionKindCourse, false, models.SessionStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overdueOutcome(tt.kind, tt.anyLearnerJoined); got != tt.want {
				t.Errorf("overdueOutcome(%q, %v) = %q, want %q", tt.kind, tt.anyLearnerJoined, got, tt.want)
			}
		})
	}
}

// The voided booking must not charge the learner who showed up.
func TestSystemCancellationLeavesCountersUntouched(t *testing.T) {
	delta := ReconcileOutcome(models.SessionStatusCancelled, models.CancellationBySystem)
	if delta.Completed != 0 || delta.Missed != 0 {
		t.Errorf("system cancellation delta = %+v, want zero", delta)
	}
	if d := ReconcileOutcome(models.SessionStatusAbsent, ""); d.Missed != 1 || d.Completed != 0 {
		t.Errorf("absent delta = %+v, want missed+1", d)
	}
}
