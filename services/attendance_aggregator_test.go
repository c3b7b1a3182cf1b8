package services

import (
	"testing"
	"time"

	"ilmhub_go/models"
)

func aggTestCore(scheduled time.Time, duration int) *models.SessionCore {
	return &models.SessionCore{
		AcademyID:       1,
		TeacherID:       1,
		ScheduledAt:     scheduled,
		DurationMinutes: duration,
		Status:          models.SessionStatusCompleted,
	}
}

func aggTestEvent(userID uint, sid, eventType string, ts time.Time) models.MeetingAttendanceEvent {
	return models.MeetingAttendanceEvent{
		EventID:        sid + "-" + eventType + "-" + ts.Format(time.RFC3339),
		EventType:      eventType,
		EventTimestamp: ts,
		SessionKind:    models.SessionKindIndividual,
		SessionID:      1,
		UserID:         userID,
		ParticipantSID: sid,
	}
}

func TestComputeSummary(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	settings := models.DefaultAcademySettings(1)
	asOf := scheduled.Add(3 * time.Hour)

	min := func(m int) time.Time { return scheduled.Add(time.Duration(m) * time.Minute) }

	tests := []struct {
		name        string
		duration    int
		events      []models.MeetingAttendanceEvent
		wantStatus  string
		wantMinutes int
		wantLate    int
	}{
		{
			name:       "no events means absent",
			duration:   60,
			events:     nil,
			wantStatus: models.AttendanceStatusAbsent,
		},
		{
			name:     "full attendance",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(58)),
			},
			wantStatus:  models.AttendanceStatusAttended,
			wantMinutes: 58,
		},
		{
			name:     "late join beyond tolerance",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(20)),
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(60)),
			},
			wantStatus:  models.AttendanceStatusLate,
			wantMinutes: 40,
			wantLate:    20,
		},
		{
			name:     "left early",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(35)),
			},
			wantStatus:  models.AttendanceStatusLeftEarly,
			wantMinutes: 35,
		},
		{
			name:     "below minimum percentage counts as absent",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(20)),
			},
			wantStatus:  models.AttendanceStatusAbsent,
			wantMinutes: 20,
		},
		{
			name:     "reconnect cycles sum across participant sids",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(7, "PA_1", models.AttendanceEventAborted, min(25)),
				aggTestEvent(7, "PA_2", models.AttendanceEventJoin, min(28)),
				aggTestEvent(7, "PA_2", models.AttendanceEventLeave, min(59)),
			},
			wantStatus:  models.AttendanceStatusAttended,
			wantMinutes: 56,
		},
		{
			name:     "out of order arrival pairs by timestamp",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(55)),
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(5)),
			},
			wantStatus:  models.AttendanceStatusAttended,
			wantMinutes: 50,
		},
		{
			name:     "duplicate join on same sid is ignored",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(10)),
				aggTestEvent(7, "PA_1", models.AttendanceEventLeave, min(55)),
			},
			wantStatus:  models.AttendanceStatusAttended,
			wantMinutes: 55,
		},
		{
			name:     "open join is closed at end plus grace",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(7, "PA_1", models.AttendanceEventJoin, min(0)),
			},
			wantStatus:  models.AttendanceStatusAttended,
			wantMinutes: 60 + 30,
		},
		{
			name:     "other users events are ignored",
			duration: 60,
			events: []models.MeetingAttendanceEvent{
				aggTestEvent(9, "PB_1", models.AttendanceEventJoin, min(0)),
				aggTestEvent(9, "PB_1", models.AttendanceEventLeave, min(60)),
			},
			wantStatus: models.AttendanceStatusAbsent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := aggTestCore(scheduled, tt.duration)
			got := ComputeSummary(core, 7, tt.events, settings, asOf)
			if got.Status != tt.wantStatus {
				t.Fatalf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.TotalMinutes != tt.wantMinutes {
				t.Fatalf("total minutes = %d, want %d", got.TotalMinutes, tt.wantMinutes)
			}
			if got.LateMinutes != tt.wantLate {
				t.Fatalf("late minutes = %d, want %d", got.LateMinutes, tt.wantLate)
			}
		})
	}
}

func TestComputeSummaryPercentageCap(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	settings := models.DefaultAcademySettings(1)
	core := aggTestCore(scheduled, 30)

	events := []models.MeetingAttendanceEvent{
		aggTestEvent(7, "PA_1", models.AttendanceEventJoin, scheduled),
		aggTestEvent(7, "PA_1", models.AttendanceEventLeave, scheduled.Add(45*time.Minute)),
	}

	got := ComputeSummary(core, 7, events, settings, scheduled.Add(2*time.Hour))
	if got.AttendancePercentage != 100 {
		t.Fatalf("percentage = %.1f, want capped at 100", got.AttendancePercentage)
	}
}
