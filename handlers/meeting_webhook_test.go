package handlers

import (
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	secret := "test-secret"
	body := []byte(`{"event_id":"evt-1"}`)

	sig := ComputeSignature(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Fatal("expected signature to verify against its own body")
	}
	if VerifySignature(secret, []byte(`{"event_id":"evt-2"}`), sig) {
		t.Error("signature verified against a different body")
	}
	if VerifySignature("other-secret", body, sig) {
		t.Error("signature verified with a different secret")
	}
	if VerifySignature(secret, body, "") {
		t.Error("empty signature verified")
	}
}

func TestParseMeetingEvent(t *testing.T) {
	valid := `{
		"event_id": "evt-100",
		"event_type": "join",
		"event_timestamp": "2026-03-10T10:02:00Z",
		"session_kind": "individual",
		"session_id": 42,
		"user_id": 7,
		"participant_sid": "PA_abc"
	}`

	ev, err := ParseMeetingEvent([]byte(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.EventID != "evt-100" || ev.EventType != "join" {
		t.Errorf("unexpected event identity: %s/%s", ev.EventID, ev.EventType)
	}
	if ev.SessionKind != "individual" || ev.SessionID != 42 {
		t.Errorf("unexpected session ref: %s/%d", ev.SessionKind, ev.SessionID)
	}
	if ev.UserID != 7 || ev.ParticipantSID != "PA_abc" {
		t.Errorf("unexpected participant: %d/%s", ev.UserID, ev.ParticipantSID)
	}
	want := time.Date(2026, 3, 10, 10, 2, 0, 0, time.UTC)
	if !ev.EventTimestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", ev.EventTimestamp, want)
	}
	if len(ev.RawPayload) == 0 {
		t.Error("raw payload not retained")
	}

	bad := []struct {
		name string
		body string
	}{
		{"not json", `{"event_id":`},
		{"missing event id", `{"event_type":"join","event_timestamp":"2026-03-10T10:02:00Z","session_kind":"circle","session_id":1}`},
		{"missing timestamp", `{"event_id":"evt-1","event_type":"join","session_kind":"circle","session_id":1}`},
		{"unknown event type", `{"event_id":"evt-1","event_type":"mute","event_timestamp":"2026-03-10T10:02:00Z","session_kind":"circle","session_id":1}`},
		{"unknown session kind", `{"event_id":"evt-1","event_type":"join","event_timestamp":"2026-03-10T10:02:00Z","session_kind":"workshop","session_id":1}`},
		{"zero session id", `{"event_id":"evt-1","event_type":"join","event_timestamp":"2026-03-10T10:02:00Z","session_kind":"circle","session_id":0}`},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseMeetingEvent([]byte(tc.body)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}
