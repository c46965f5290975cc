package export

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cafepos/backend/internal/domain"
)

func TestDailyReportWorkbook(t *testing.T) {
	report := domain.DailyReport{
		ID:                 "report-1",
		ReportDate:         "2026-03-10",
		Status:             domain.ReportApproved,
		OpeningFloat:       decimal.NewFromInt(100000),
		ClosingCashCounted: decimal.NewFromInt(698000),
		ExpectedTotalSales: decimal.NewFromInt(1000000),
		CreatedBy:          "accountant",
		ApprovedBy:         "manager",
		PaymentMethods: []domain.DailyReportPaymentMethod{
			{Method: domain.MethodCash, ExpectedAmount: decimal.NewFromInt(600000), ActualAmount: decimal.NewNullDecimal(decimal.NewFromInt(598000)), Variance: decimal.NewFromInt(-2000)},
			{Method: domain.MethodPOS, ExpectedAmount: decimal.NewFromInt(400000), ActualAmount: decimal.NewNullDecimal(decimal.NewFromInt(400000)), Variance: decimal.Zero},
			{Method: domain.MethodCardTransfer, ExpectedAmount: decimal.Zero},
		},
	}

	data, err := DailyReport(report)
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	date, err := f.GetCellValue(SummarySheet, "B1")
	if err != nil {
		t.Fatalf("read report date: %v", err)
	}
	if date != "2026-03-10" {
		t.Fatalf("expected report date 2026-03-10, got %q", date)
	}

	rows, err := f.GetRows(MethodsSheet)
	if err != nil {
		t.Fatalf("read method rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 method rows, got %d", len(rows))
	}
	if rows[1][0] != "CASH" || rows[1][3] != "-2000" {
		t.Fatalf("unexpected cash row: %v", rows[1])
	}
	if len(rows[3]) > 2 && rows[3][2] != "" {
		t.Fatalf("expected empty actual for card transfer, got %q", rows[3][2])
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(domain.DailyReport{ReportDate: "2026-03-10"}); got != "daily-report-2026-03-10.xlsx" {
		t.Fatalf("unexpected filename %q", got)
	}
}
