package services

import (
	"testing"

	"ilmhub_go/models"
)

func TestReconcileOutcome(t *testing.T) {
	tests := []struct {
		name             string
		status           string
		cancellationType string
		want             CounterDelta
	}{
		{"completed consumes one session", models.SessionStatusCompleted, "", CounterDelta{Completed: 1}},
		{"missed consumes one session", models.SessionStatusMissed, "", CounterDelta{Missed: 1}},
		{"absent consumes one session", models.SessionStatusAbsent, "", CounterDelta{Missed: 1}},
		{"student cancellation consumes", models.SessionStatusCancelled, models.CancellationByStudent, CounterDelta{Missed: 1}},
		{"teacher cancellation does not", models.SessionStatusCancelled, models.CancellationByTeacher, CounterDelta{}},
		{"system cancellation does not", models.SessionStatusCancelled, models.CancellationBySystem, CounterDelta{}},
		{"rescheduled is not terminal consumption", models.SessionStatusRescheduled, "", CounterDelta{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReconcileOutcome(tt.status, tt.cancellationType)
			if got != tt.want {
				t.Fatalf("ReconcileOutcome(%q, %q) = %+v, want %+v", tt.status, tt.cancellationType, got, tt.want)
			}
		})
	}
}

func TestApplyCounterDelta(t *testing.T) {
	tests := []struct {
		name          string
		sub           models.Subscription
		delta         CounterDelta
		wantCompleted int
		wantMissed    int
		wantRemaining int
		wantClamped   bool
	}{
		{
			name:          "completion decrements remaining",
			sub:           models.Subscription{TotalSessions: 8, SessionsCompleted: 2, SessionsMissed: 1},
			delta:         CounterDelta{Completed: 1},
			wantCompleted: 3,
			wantMissed:    1,
			wantRemaining: 4,
		},
		{
			name:          "miss decrements remaining",
			sub:           models.Subscription{TotalSessions: 8, SessionsCompleted: 2, SessionsMissed: 1},
			delta:         CounterDelta{Missed: 1},
			wantCompleted: 2,
			wantMissed:    2,
			wantRemaining: 4,
		},
		{
			name:          "completion with nothing remaining clamps at zero",
			sub:           models.Subscription{TotalSessions: 8, SessionsCompleted: 7, SessionsMissed: 1},
			delta:         CounterDelta{Completed: 1},
			wantCompleted: 7,
			wantMissed:    1,
			wantRemaining: 0,
			wantClamped:   true,
		},
		{
			name:          "miss with nothing remaining clamps at zero",
			sub:           models.Subscription{TotalSessions: 4, SessionsCompleted: 4, SessionsMissed: 0},
			delta:         CounterDelta{Missed: 1},
			wantCompleted: 4,
			wantMissed:    0,
			wantRemaining: 0,
			wantClamped:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub
			clamped := ApplyCounterDelta(&sub, tt.delta)
			if clamped != tt.wantClamped {
				t.Fatalf("clamped = %v, want %v", clamped, tt.wantClamped)
			}
			if sub.SessionsCompleted != tt.wantCompleted {
				t.Fatalf("completed = %d, want %d", sub.SessionsCompleted, tt.wantCompleted)
			}
			if sub.SessionsMissed != tt.wantMissed {
				t.Fatalf("missed = %d, want %d", sub.SessionsMissed, tt.wantMissed)
			}
			if sub.SessionsRemaining != tt.wantRemaining {
				t.Fatalf("remaining = %d, want %d", sub.SessionsRemaining, tt.wantRemaining)
			}
			if sub.SessionsCompleted+sub.SessionsMissed > sub.TotalSessions {
				t.Fatalf("completed + missed = %d exceeds total %d", sub.SessionsCompleted+sub.SessionsMissed, sub.TotalSessions)
			}
			if sub.SessionsRemaining < 0 {
				t.Fatalf("remaining went negative: %d", sub.SessionsRemaining)
			}
		})
	}
}

func TestApplyCounterDeltaExhaustsStatus(t *testing.T) {
	sub := models.Subscription{TotalSessions: 2, SessionsCompleted: 1, Status: "active"}
	if clamped := ApplyCounterDelta(&sub, CounterDelta{Completed: 1}); clamped {
		t.Fatalf("exact exhaustion should not clamp")
	}
	if sub.Status != "exhausted" {
		t.Fatalf("status = %q, want exhausted", sub.Status)
	}
	if sub.SessionsRemaining != 0 {
		t.Fatalf("remaining = %d, want 0", sub.SessionsRemaining)
	}
}
