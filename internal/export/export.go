// Package export renders daily reconciliation reports as xlsx workbooks.
package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cafepos/backend/internal/domain"
)

const (
	SummarySheet = "Summary"
	MethodsSheet = "Payment Methods"
	ContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Filename is the attachment name used for a report download.
func Filename(report domain.DailyReport) string {
	return fmt.Sprintf("daily-report-%s.xlsx", report.ReportDate)
}

// DailyReport builds the workbook for one report: a summary sheet with the
// header figures and a sheet with one row per payment method.
func DailyReport(report domain.DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(MethodsSheet); err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Report date", report.ReportDate},
		{"Status", string(report.Status)},
		{"Opening float", money(report.OpeningFloat)},
		{"Closing cash counted", money(report.ClosingCashCounted)},
		{"Expected total sales", money(report.ExpectedTotalSales)},
		{"Expected total refunds", money(report.ExpectedTotalRefunds)},
		{"Expected total discounts", money(report.ExpectedTotalDiscounts)},
		{"Expected total tax", money(report.ExpectedTotalTax)},
		{"Expected total tips", money(report.ExpectedTotalTips)},
		{"Cost of goods sold", money(report.CostOfGoodsSold)},
		{"Labor costs", money(report.LaborCosts)},
		{"Operating expenses", money(report.OperatingExpenses)},
		{"Total variance", money(report.TotalVariance())},
		{"Created by", report.CreatedBy},
		{"Approved by", report.ApprovedBy},
		{"Notes", report.Notes},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return nil, err
		}
	}

	headings := []any{"Method", "Expected", "Actual", "Variance", "Notes"}
	if err := f.SetSheetRow(MethodsSheet, "A1", &headings); err != nil {
		return nil, err
	}
	for i, method := range report.PaymentMethods {
		actual := any("")
		if method.ActualAmount.Valid {
			actual = money(method.ActualAmount.Decimal)
		}
		row := []any{string(method.Method), money(method.ExpectedAmount), actual, money(method.Variance), method.Notes}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(MethodsSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(SummarySheet, "A", "A", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(MethodsSheet, "A", "E", 18); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
