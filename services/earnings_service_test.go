package services

import (
	"errors"
	"testing"
	"time"

	"ilmhub_go/models"

	"github.com/shopspring/decimal"
)

var errDuplicate1062 = errors.New("Error 1062 (23000): Duplicate entry 'individual-1' for key 'idx_earning_session'")

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestComputeEarningAmount(t *testing.T) {
	tests := []struct {
		name string
		snap RateSnapshot
		want string
	}{
		{
			name: "per session",
			snap: RateSnapshot{PaymentType: models.CalculationPerSession, AmountPerSession: "25", LearnerCount: 1, DurationMinutes: 60},
			want: "25",
		},
		{
			name: "per student scales with learner count",
			snap: RateSnapshot{PaymentType: models.CalculationPerStudent, AmountPerStudent: "8.50", LearnerCount: 6, DurationMinutes: 60},
			want: "51",
		},
		{
			name: "fixed ignores learners and duration",
			snap: RateSnapshot{PaymentType: models.CalculationFixed, FixedAmount: "400", LearnerCount: 12, DurationMinutes: 90},
			want: "400",
		},
		{
			name: "hourly prorates by duration",
			snap: RateSnapshot{PaymentType: models.CalculationHourly, HourlyRate: "30", LearnerCount: 1, DurationMinutes: 90},
			want: "45",
		},
		{
			name: "hourly rounds to cents",
			snap: RateSnapshot{PaymentType: models.CalculationHourly, HourlyRate: "25", LearnerCount: 1, DurationMinutes: 50},
			want: "20.83",
		},
		{
			name: "unknown method falls back to per session",
			snap: RateSnapshot{PaymentType: "", AmountPerSession: "15", LearnerCount: 1, DurationMinutes: 60},
			want: "15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEarningAmount(tt.snap)
			if got.String() != tt.want {
				t.Fatalf("amount = %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestMonthKey(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "2026-03"},
		{time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC), "2026-03"},
		{time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC), "2025-12"},
	}
	for _, tt := range tests {
		if got := MonthKey(tt.in); got != tt.want {
			t.Fatalf("MonthKey(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnapshotRatesFreezesConfiguration(t *testing.T) {
	teacher := models.Teacher{
		PaymentType: models.CalculationPerStudent,
		Currency:    "USD",
	}
	teacher.AmountPerStudent = mustDecimal(t, "10")

	snap := snapshotRates(&teacher, 4, 60)

	// Mutating the live rate after snapshotting must not change the amount.
	teacher.AmountPerStudent = mustDecimal(t, "99")

	if got := ComputeEarningAmount(snap); got.String() != "40" {
		t.Fatalf("amount = %s, want 40 from the frozen rate", got.String())
	}
	if snap.LearnerCount != 4 {
		t.Fatalf("learner count = %d, want 4", snap.LearnerCount)
	}
}

func TestIsDuplicateKeyErr(t *testing.T) {
	if !isDuplicateKeyErr(errDuplicate1062) {
		t.Fatalf("expected 1062 error to be detected as duplicate")
	}
	if isDuplicateKeyErr(nil) {
		t.Fatalf("nil is not a duplicate error")
	}
}

func TestPayoutApprovable(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{"pending approves", models.PayoutStatusPending, nil},
		{"approved is locked", models.PayoutStatusApproved, &PayoutLockViolationError{}},
		{"rejected needs regrouping", models.PayoutStatusRejected, ErrPayoutRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payout := &models.TeacherPayout{Month: "2026-07", Status: tt.status}
			payout.ID = 42
			err := payoutApprovable(payout)
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Fatalf("payoutApprovable(%q) = %v, want nil", tt.status, err)
				}
			case *PayoutLockViolationError:
				var lockErr *PayoutLockViolationError
				if !errors.As(err, &lockErr) {
					t.Fatalf("payoutApprovable(%q) = %v, want lock violation", tt.status, err)
				}
				if lockErr.PayoutID != 42 {
					t.Errorf("lock violation payout ID = %d, want 42", lockErr.PayoutID)
				}
			default:
				if !errors.Is(err, want) {
					t.Fatalf("payoutApprovable(%q) = %v, want %v", tt.status, err, want)
				}
			}
		})
	}
}
