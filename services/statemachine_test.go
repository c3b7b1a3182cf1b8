package services

import (
	"errors"
	"testing"
	"time"

	"ilmhub_go/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{models.SessionStatusUnscheduled, models.SessionStatusScheduled, true},
		{models.SessionStatusUnscheduled, models.SessionStatusOngoing, false},
		{models.SessionStatusScheduled, models.SessionStatusReady, true},
		{models.SessionStatusScheduled, models.SessionStatusOngoing, true},
		{models.SessionStatusScheduled, models.SessionStatusMissed, true},
		{models.SessionStatusScheduled, models.SessionStatusCompleted, false},
		{models.SessionStatusReady, models.SessionStatusOngoing, true},
		{models.SessionStatusReady, models.SessionStatusAbsent, true},
		{models.SessionStatusOngoing, models.SessionStatusCompleted, true},
		{models.SessionStatusOngoing, models.SessionStatusMissed, false},
		{models.SessionStatusOngoing, models.SessionStatusReady, false},
		{models.SessionStatusRescheduled, models.SessionStatusScheduled, true},
		{models.SessionStatusRescheduled, models.SessionStatusOngoing, false},
		{models.SessionStatusCompleted, models.SessionStatusCancelled, false},
		{models.SessionStatusCancelled, models.SessionStatusScheduled, false},
		{models.SessionStatusAbsent, models.SessionStatusScheduled, false},
		{models.SessionStatusMissed, models.SessionStatusRescheduled, false},
		{"bogus", models.SessionStatusScheduled, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNonTerminalStatesCanCancel(t *testing.T) {
	for _, status := range []string{
		models.SessionStatusUnscheduled,
		models.SessionStatusScheduled,
		models.SessionStatusReady,
		models.SessionStatusOngoing,
		models.SessionStatusRescheduled,
	} {
		if !CanTransition(status, models.SessionStatusCancelled) {
			t.Errorf("expected %q to allow cancellation", status)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminal := []string{
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
		models.SessionStatusAbsent,
		models.SessionStatusMissed,
	}
	all := []string{
		models.SessionStatusUnscheduled,
		models.SessionStatusScheduled,
		models.SessionStatusReady,
		models.SessionStatusOngoing,
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
		models.SessionStatusAbsent,
		models.SessionStatusMissed,
		models.SessionStatusRescheduled,
	}

	for _, from := range terminal {
		if !IsTerminalStatus(from) {
			t.Errorf("IsTerminalStatus(%q) = false", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal status %q allows transition to %q", from, to)
			}
		}
	}
	for _, status := range []string{
		models.SessionStatusUnscheduled,
		models.SessionStatusScheduled,
		models.SessionStatusReady,
		models.SessionStatusOngoing,
		models.SessionStatusRescheduled,
	} {
		if IsTerminalStatus(status) {
			t.Errorf("IsTerminalStatus(%q) = true", status)
		}
	}
}

func TestValidateScheduleTime(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	ref := models.SessionRef{Kind: models.SessionKindIndividual, ID: 1}
	settings := models.DefaultAcademySettings(1) // 60 minute notice

	tests := []struct {
		name    string
		at      time.Time
		wantErr bool
	}{
		{"past", now.Add(-time.Hour), true},
		{"now", now, true},
		{"inside notice window", now.Add(30 * time.Minute), true},
		{"just under notice", now.Add(59 * time.Minute), true},
		{"exactly at notice", now.Add(60 * time.Minute), false},
		{"past notice", now.Add(61 * time.Minute), false},
		{"next day", now.Add(24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScheduleTime(ref, tt.at, now, settings)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateScheduleTime(%v) error = %v, wantErr %v", tt.at, err, tt.wantErr)
			}
			if err != nil {
				var scheduleErr *InvalidScheduleError
				if !errors.As(err, &scheduleErr) {
					t.Fatalf("expected *InvalidScheduleError, got %T", err)
				}
			}
		})
	}
}
