package services

import (
	"testing"
	"time"
)

func TestReconcileScanWindow(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	oldest, newest := reconcileScanWindow(now, 10, 6)

	if want := now.Add(-6 * time.Hour); !oldest.Equal(want) {
		t.Errorf("oldest = %v, want %v", oldest, want)
	}
	if want := now.Add(-10 * time.Minute); !newest.Equal(want) {
		t.Errorf("newest = %v, want %v", newest, want)
	}

	tests := []struct {
		name    string
		eventAt time.Time
		inScope bool
	}{
		{"fresh leave still in grace", now.Add(-5 * time.Minute), false},
		{"unmatched leave past grace", now.Add(-30 * time.Minute), true},
		{"leave from yesterday", now.Add(-26 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := !tt.eventAt.Before(oldest) && tt.eventAt.Before(newest)
			if in != tt.inScope {
				t.Errorf("event at %v in scope = %v, want %v", tt.eventAt, in, tt.inScope)
			}
		})
	}
}
