package services

import (
	"errors"
	"strings"
	"time"

	"ilmhub_go/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateSnapshot is the teacher's rate configuration frozen into an earning at
// calculation time. Later rate edits never alter historical earnings.
type RateSnapshot struct {
	PaymentType      string `json:"payment_type"`
	AmountPerSession string `json:"amount_per_session"`
	AmountPerStudent string `json:"amount_per_student"`
	FixedAmount      string `json:"fixed_amount"`
	HourlyRate       string `json:"hourly_rate"`
	Currency         string `json:"currency"`
	LearnerCount     int    `json:"learner_count"`
	DurationMinutes  int    `json:"duration_minutes"`
}

func snapshotRates(teacher *models.Teacher, learnerCount, durationMinutes int) RateSnapshot {
	return RateSnapshot{
		PaymentType:      teacher.PaymentType,
		AmountPerSession: teacher.AmountPerSession.String(),
		AmountPerStudent: teacher.AmountPerStudent.String(),
		FixedAmount:      teacher.FixedAmount.String(),
		HourlyRate:       teacher.HourlyRate.String(),
		Currency:         teacher.Currency,
		LearnerCount:     learnerCount,
		DurationMinutes:  durationMinutes,
	}
}

// ComputeEarningAmount resolves the amount for one completed session from a
// rate snapshot. All arithmetic stays in decimal; float money never enters
// the books.
func ComputeEarningAmount(snap RateSnapshot) decimal.Decimal {
	switch snap.PaymentType {
	case models.CalculationPerStudent:
		perStudent, _ := decimal.NewFromString(snap.AmountPerStudent)
		return perStudent.Mul(decimal.NewFromInt(int64(snap.LearnerCount)))
	case models.CalculationFixed:
		fixed, _ := decimal.NewFromString(snap.FixedAmount)
		return fixed
	case models.CalculationHourly:
		hourly, _ := decimal.NewFromString(snap.HourlyRate)
		hours := decimal.NewFromInt(int64(snap.DurationMinutes)).Div(decimal.NewFromInt(60))
		return hourly.Mul(hours).Round(2)
	default:
		perSession, _ := decimal.NewFromString(snap.AmountPerSession)
		return perSession
	}
}

// MonthKey returns the YYYY-MM bucket an earning belongs to.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// isDuplicateKeyErr detects a MySQL duplicate-entry violation (error 1062).
func isDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

// CalculateEarning records the earning for one completed session, inside the
// caller's transaction. The unique (session_kind, session_id) index makes a
// retried trigger a no-op rather than a duplicate payment. If the teacher's
// payout for the session's month is already approved, the insert is refused
// with PayoutLockViolationError.
func CalculateEarning(tx *gorm.DB, sess models.Session) (*models.TeacherEarning, error) {
	core := sess.Core()
	ref := sess.Ref()

	var teacher models.Teacher
	if err := tx.First(&teacher, core.TeacherID).Error; err != nil {
		return nil, err
	}

	month := MonthKey(core.ScheduledAt)

	var locked models.TeacherPayout
	err := tx.Where("teacher_id = ? AND academy_id = ? AND month = ? AND status = ?",
		teacher.ID, core.AcademyID, month, models.PayoutStatusApproved).First(&locked).Error
	if err == nil {
		return nil, &PayoutLockViolationError{PayoutID: locked.ID, Month: month}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	snap := snapshotRates(&teacher, len(sess.LearnerIDs()), core.DurationMinutes)
	snapJSON, err := models.ToJSON(snap)
	if err != nil {
		return nil, err
	}

	earning := models.TeacherEarning{
		SessionKind:       ref.Kind,
		SessionID:         ref.ID,
		TeacherID:         teacher.ID,
		AcademyID:         core.AcademyID,
		CalculationMethod: snap.PaymentType,
		RateSnapshot:      snapJSON,
		Amount:            ComputeEarningAmount(snap),
		Currency:          snap.Currency,
		Month:             month,
	}

	if err := tx.Create(&earning).Error; err != nil {
		if isDuplicateKeyErr(err) {
			var existing models.TeacherEarning
			if ferr := tx.Where("session_kind = ? AND session_id = ?", ref.Kind, ref.ID).First(&existing).Error; ferr != nil {
				return nil, ferr
			}
			return &existing, nil
		}
		return nil, err
	}
	return &earning, nil
}

// GroupMonthlyPayouts collects every unassigned, undisputed earning for the
// given month into one pending payout per (teacher, academy). Safe to re-run:
// existing pending payouts absorb late earnings, approved ones are skipped.
func GroupMonthlyPayouts(db *gorm.DB, month string) (int, error) {
	type teacherMonth struct {
		TeacherID uint
		AcademyID uint
	}

	var pairs []teacherMonth
	if err := db.Model(&models.TeacherEarning{}).
		Select("DISTINCT teacher_id, academy_id").
		Where("month = ? AND payout_id IS NULL AND disputed = ?", month, false).
		Scan(&pairs).Error; err != nil {
		return 0, err
	}

	grouped := 0
	for _, pair := range pairs {
		err := db.Transaction(func(tx *gorm.DB) error {
			var payout models.TeacherPayout
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("teacher_id = ? AND academy_id = ? AND month = ?", pair.TeacherID, pair.AcademyID, month).
				First(&payout).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				payout = models.TeacherPayout{
					TeacherID: pair.TeacherID,
					AcademyID: pair.AcademyID,
					Month:     month,
					Status:    models.PayoutStatusPending,
				}
				if cerr := tx.Create(&payout).Error; cerr != nil {
					if isDuplicateKeyErr(cerr) {
						return nil
					}
					return cerr
				}
			} else if err != nil {
				return err
			}
			if payout.Status == models.PayoutStatusApproved {
				// Late earnings for an approved month stay unassigned and
				// surface via the dispute/adjustment path.
				return nil
			}

			if err := tx.Model(&models.TeacherEarning{}).
				Where("teacher_id = ? AND academy_id = ? AND month = ? AND payout_id IS NULL AND disputed = ?",
					pair.TeacherID, pair.AcademyID, month, false).
				Update("payout_id", payout.ID).Error; err != nil {
				return err
			}
			return refreshPayoutTotals(tx, &payout)
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"teacher_id": pair.TeacherID,
				"academy_id": pair.AcademyID,
				"month":      month,
			}).Error("Failed to group payout")
			continue
		}
		grouped++
	}
	return grouped, nil
}

func refreshPayoutTotals(tx *gorm.DB, payout *models.TeacherPayout) error {
	var earnings []models.TeacherEarning
	if err := tx.Where("payout_id = ?", payout.ID).Find(&earnings).Error; err != nil {
		return err
	}
	total := decimal.Zero
	currency := payout.Currency
	for _, e := range earnings {
		total = total.Add(e.Amount)
		currency = e.Currency
	}
	return tx.Model(payout).Updates(map[string]interface{}{
		"total_amount":  total,
		"session_count": len(earnings),
		"currency":      currency,
	}).Error
}

// payoutApprovable gates the approval transition. Only a pending payout can
// be approved: an approved one is already locked, and a rejected one no
// longer owns its earnings.
func payoutApprovable(payout *models.TeacherPayout) error {
	switch payout.Status {
	case models.PayoutStatusApproved:
		return &PayoutLockViolationError{PayoutID: payout.ID, Month: payout.Month}
	case models.PayoutStatusRejected:
		return ErrPayoutRejected
	default:
		return nil
	}
}

// ApprovePayout is a one-way transition: the payout moves to approved and
// every constituent earning is locked against further mutation.
func ApprovePayout(db *gorm.DB, payoutID, adminID uint) (*models.TeacherPayout, error) {
	var payout models.TeacherPayout
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, payoutID).Error; err != nil {
			return err
		}
		if err := payoutApprovable(&payout); err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(&payout).Updates(map[string]interface{}{
			"status":      models.PayoutStatusApproved,
			"approved_by": adminID,
			"approved_at": now,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutStatusApproved
		payout.ApprovedBy = &adminID
		payout.ApprovedAt = &now

		return tx.Model(&models.TeacherEarning{}).
			Where("payout_id = ?", payout.ID).
			Update("locked", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// RejectPayout releases the earnings back to the unassigned pool so they can
// be corrected and regrouped into a later payout.
func RejectPayout(db *gorm.DB, payoutID uint, reason string) (*models.TeacherPayout, error) {
	var payout models.TeacherPayout
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payout, payoutID).Error; err != nil {
			return err
		}
		if payout.Status == models.PayoutStatusApproved {
			return &PayoutLockViolationError{PayoutID: payout.ID, Month: payout.Month}
		}

		if err := tx.Model(&payout).Updates(map[string]interface{}{
			"status":           models.PayoutStatusRejected,
			"rejection_reason": reason,
		}).Error; err != nil {
			return err
		}
		payout.Status = models.PayoutStatusRejected
		payout.RejectionReason = reason

		return tx.Model(&models.TeacherEarning{}).
			Where("payout_id = ?", payout.ID).
			Updates(map[string]interface{}{"payout_id": nil, "locked": false}).Error
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// FlagEarningDispute marks an earning as disputed. Locked earnings inside an
// approved payout cannot be flagged; that path goes through a compensating
// adjustment instead.
func FlagEarningDispute(db *gorm.DB, earningID uint, notes string) (*models.TeacherEarning, error) {
	var earning models.TeacherEarning
	if err := db.First(&earning, earningID).Error; err != nil {
		return nil, err
	}
	if earning.Locked {
		var payoutID uint
		if earning.PayoutID != nil {
			payoutID = *earning.PayoutID
		}
		return nil, &PayoutLockViolationError{PayoutID: payoutID, Month: earning.Month}
	}

	if err := db.Model(&earning).Updates(map[string]interface{}{
		"disputed":      true,
		"dispute_notes": notes,
	}).Error; err != nil {
		return nil, err
	}
	earning.Disputed = true
	earning.DisputeNotes = notes
	return &earning, nil
}
