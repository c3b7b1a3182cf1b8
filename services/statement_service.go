package services

import (
	"fmt"

	"ilmhub_go/models"
	"ilmhub_go/storage"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportPayoutStatement renders a payout and its earnings into an xlsx
// statement, uploads it to S3 and stamps the key onto the payout row.
func ExportPayoutStatement(db *gorm.DB, payoutID uint) (string, error) {
	var payout models.TeacherPayout
	if err := db.Preload("Teacher").Preload("Earnings").First(&payout, payoutID).Error; err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Statement"
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", "Teacher Payout Statement")
	f.SetCellValue(sheet, "A2", "Teacher")
	f.SetCellValue(sheet, "B2", payout.Teacher.FirstName+" "+payout.Teacher.LastName)
	f.SetCellValue(sheet, "A3", "Month")
	f.SetCellValue(sheet, "B3", payout.Month)
	f.SetCellValue(sheet, "A4", "Status")
	f.SetCellValue(sheet, "B4", payout.Status)
	f.SetCellValue(sheet, "A5", "Sessions")
	f.SetCellValue(sheet, "B5", payout.SessionCount)
	f.SetCellValue(sheet, "A6", "Total")
	f.SetCellValue(sheet, "B6", payout.TotalAmount.StringFixed(2)+" "+payout.Currency)

	headers := []string{"Session", "Date", "Method", "Amount", "Currency", "Disputed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 8)
		f.SetCellValue(sheet, cell, h)
	}

	row := 9
	for _, e := range payout.Earnings {
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s/%d", e.SessionKind, e.SessionID))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), e.CreatedAt.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), e.CalculationMethod)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), e.Amount.StringFixed(2))
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), e.Currency)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), e.Disputed)
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to render statement: %v", err)
	}

	svc, err := storage.NewStorageService()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("payouts/statements/%s/teacher_%d_payout_%d.xlsx", payout.Month, payout.TeacherID, payout.ID)
	if _, err := svc.UploadBytes(key, buf.Bytes(),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"); err != nil {
		return "", err
	}

	if err := db.Model(&payout).Update("statement_s3_key", key).Error; err != nil {
		return "", err
	}
	return key, nil
}
