package services

import (
	"testing"
	"time"
)

func TestCheckSweeper(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		uptime      time.Duration
		lastRun     time.Time
		ran         bool
		wantStatus  string
		wantOverall string
	}{
		{"starting up, no pass yet", 30 * time.Second, time.Time{}, false, dependencyStatusUp, overallStatusOK},
		{"never ran past startup window", 10 * time.Minute, time.Time{}, false, dependencyStatusDown, overallStatusDegraded},
		{"recent pass", time.Hour, now.Add(-90 * time.Second), true, dependencyStatusUp, overallStatusOK},
		{"wedged scheduler", time.Hour, now.Add(-20 * time.Minute), true, dependencyStatusStale, overallStatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep, overall := checkSweeper(now, tt.uptime, tt.lastRun, tt.ran)
			if dep.Status != tt.wantStatus {
				t.Errorf("dependency status = %q, want %q", dep.Status, tt.wantStatus)
			}
			if overall != tt.wantOverall {
				t.Errorf("overall = %q, want %q", overall, tt.wantOverall)
			}
		})
	}
}

func TestCombineStatus(t *testing.T) {
	tests := []struct {
		current   string
		candidate string
		want      string
	}{
		{overallStatusOK, overallStatusOK, overallStatusOK},
		{overallStatusOK, overallStatusDegraded, overallStatusDegraded},
		{overallStatusDegraded, overallStatusOK, overallStatusDegraded},
		{overallStatusDegraded, overallStatusCritical, overallStatusCritical},
		{overallStatusCritical, overallStatusDegraded, overallStatusCritical},
		{"garbage", overallStatusDegraded, overallStatusDegraded},
	}

	for _, tt := range tests {
		if got := combineStatus(tt.current, tt.candidate); got != tt.want {
			t.Errorf("combineStatus(%q, %q) = %q, want %q", tt.current, tt.candidate, got, tt.want)
		}
	}
}
