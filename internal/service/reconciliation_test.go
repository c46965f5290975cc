package service

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/export"
)

// seedBusinessDay closes two sales inside the 2026-03-10 window: one paid in
// cash with change handed back as a refund, one paid by POS.
func seedBusinessDay(t *testing.T, f *fixture) {
	t.Helper()
	platter := f.plainMenu(t, "Platter", "560000")
	cake := f.plainMenu(t, "Whole cake", "400000")

	first := f.openSale(t, domain.SaleItemInput{MenuID: platter.ID, Quantity: dec("1")})
	closed := f.closeSale(t, first.ID, domain.CloseSaleRequest{
		DiscountAmount: decimal.NewNullDecimal(dec("50000")),
		TaxAmount:      dec("90000"),
		Payments:       []domain.PaymentInput{{Method: domain.MethodCash, AmountApplied: dec("620000"), TipAmount: dec("10000")}},
	})
	requireDecimal(t, "first total", closed.Sale.TotalAmount, "600000")
	if _, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{
		PaymentID: closed.Payments[0].ID,
		Amount:    dec("20000"),
		Reason:    "change",
		Method:    domain.MethodCash,
	}); err != nil {
		t.Fatalf("refund change: %v", err)
	}

	second := f.openSale(t, domain.SaleItemInput{MenuID: cake.ID, Quantity: dec("1")})
	f.closeSale(t, second.ID, domain.CloseSaleRequest{})
	invoice, err := f.svc.CreateInvoice(f.staff, domain.CreateInvoiceRequest{SaleID: second.ID})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	f.pay(t, invoice.ID, domain.PaymentInput{Method: domain.MethodPOS, AmountApplied: dec("400000")})
}

func methodRow(t *testing.T, report domain.DailyReport, method domain.PaymentMethod) domain.DailyReportPaymentMethod {
	t.Helper()
	for _, row := range report.PaymentMethods {
		if row.Method == method {
			return row
		}
	}
	t.Fatalf("report has no %s row", method)
	return domain.DailyReportPaymentMethod{}
}

func actuals(cash, pos, transfer string) []domain.PaymentMethodActualInput {
	return []domain.PaymentMethodActualInput{
		{Method: domain.MethodCash, ActualAmount: dec(cash)},
		{Method: domain.MethodPOS, ActualAmount: dec(pos)},
		{Method: domain.MethodCardTransfer, ActualAmount: dec(transfer)},
	}
}

func TestDailyReportHappyPath(t *testing.T) {
	f := newFixture(t)
	seedBusinessDay(t, f)

	report, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-10", OpeningFloat: dec("100000")})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if report.Status != domain.ReportDraft || report.CreatedBy != "accountant" {
		t.Fatalf("unexpected draft: %+v", report)
	}
	requireDecimal(t, "expected sales", report.ExpectedTotalSales, "1000000")
	requireDecimal(t, "expected discounts", report.ExpectedTotalDiscounts, "50000")
	requireDecimal(t, "expected tax", report.ExpectedTotalTax, "90000")
	requireDecimal(t, "expected refunds", report.ExpectedTotalRefunds, "20000")
	requireDecimal(t, "expected tips", report.ExpectedTotalTips, "10000")
	if len(report.PaymentMethods) != 3 {
		t.Fatalf("expected a row per method, got %d", len(report.PaymentMethods))
	}
	requireDecimal(t, "cash expected", methodRow(t, report, domain.MethodCash).ExpectedAmount, "600000")
	requireDecimal(t, "pos expected", methodRow(t, report, domain.MethodPOS).ExpectedAmount, "400000")
	requireDecimal(t, "transfer expected", methodRow(t, report, domain.MethodCardTransfer).ExpectedAmount, "0")

	_, err = f.svc.SubmitDailyReport(f.accountant, report.ID)
	requireKind(t, err, domain.ErrValidation)

	report, err = f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{
		ClosingCashCounted: decimal.NewNullDecimal(dec("698000")),
		LaborCosts:         decimal.NewNullDecimal(dec("150000")),
		OperatingExpenses:  decimal.NewNullDecimal(dec("25000")),
		PaymentMethods:     actuals("598000", "400000", "0"),
	})
	if err != nil {
		t.Fatalf("update actuals: %v", err)
	}
	requireDecimal(t, "cash variance", methodRow(t, report, domain.MethodCash).Variance, "-2000")
	requireDecimal(t, "total variance", report.TotalVariance(), "-2000")

	report, err = f.svc.SubmitDailyReport(f.accountant, report.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report.Status != domain.ReportSubmitted || report.SubmittedBy != "accountant" {
		t.Fatalf("unexpected submitted report: %+v", report)
	}

	_, err = f.svc.ApproveDailyReport(f.accountant, report.ID)
	requireKind(t, err, domain.ErrPermission)
	_, err = f.svc.CloseDailyReport(f.manager, report.ID)
	requireKind(t, err, domain.ErrStateInvalid)

	report, err = f.svc.ApproveDailyReport(f.manager, report.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if report.Status != domain.ReportApproved || report.ApprovedBy != "manager" || report.ApprovedAt == nil {
		t.Fatalf("unexpected approved report: %+v", report)
	}

	report, err = f.svc.CloseDailyReport(f.manager, report.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if report.Status != domain.ReportClosed {
		t.Fatalf("expected CLOSED, got %s", report.Status)
	}

	_, err = f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{PaymentMethods: actuals("600000", "400000", "0")})
	requireKind(t, err, domain.ErrStateInvalid)

	data, filename, err := f.svc.ExportDailyReport(f.manager, report.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filename != "daily-report-2026-03-10.xlsx" {
		t.Fatalf("unexpected filename %q", filename)
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer book.Close()
	status, err := book.GetCellValue(export.SummarySheet, "B2")
	if err != nil || status != "CLOSED" {
		t.Fatalf("expected CLOSED in export, got %q (%v)", status, err)
	}
}

func TestDailyReportIsUniquePerDate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-10"}); err != nil {
		t.Fatalf("create report: %v", err)
	}
	_, err := f.svc.CreateDailyReport(f.manager, domain.CreateDailyReportRequest{ReportDate: "2026-03-10"})
	requireKind(t, err, domain.ErrConflict)

	_, err = f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-13-40"})
	requireKind(t, err, domain.ErrValidation)

	_, err = f.svc.CreateDailyReport(f.staff, domain.CreateDailyReportRequest{ReportDate: "2026-03-11"})
	requireKind(t, err, domain.ErrPermission)
}

func TestCreatorCannotApproveOwnReport(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.CreateDailyReport(f.manager, domain.CreateDailyReportRequest{ReportDate: "2026-03-09"})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if _, err := f.svc.UpdateDailyReportActuals(f.manager, report.ID, domain.UpdateDailyReportRequest{
		ClosingCashCounted: decimal.NewNullDecimal(dec("100000")),
		PaymentMethods:     actuals("0", "0", "0"),
	}); err != nil {
		t.Fatalf("update actuals: %v", err)
	}
	if _, err := f.svc.SubmitDailyReport(f.manager, report.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.ApproveDailyReport(f.manager, report.ID)
	requireKind(t, err, domain.ErrPermission)

	other := asActor("head-manager", domain.RoleManager)
	if _, err := f.svc.ApproveDailyReport(other, report.ID); err != nil {
		t.Fatalf("approve by another manager: %v", err)
	}
}

func TestDisputedReportReopensMethodRowsOnly(t *testing.T) {
	f := newFixture(t)
	seedBusinessDay(t, f)

	report, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-10"})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	if _, err := f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{
		ClosingCashCounted: decimal.NewNullDecimal(dec("598000")),
		PaymentMethods:     actuals("590000", "400000", "0"),
	}); err != nil {
		t.Fatalf("update actuals: %v", err)
	}
	if _, err := f.svc.SubmitDailyReport(f.accountant, report.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = f.svc.DisputeDailyReport(f.manager, report.ID, domain.DisputeDailyReportRequest{})
	requireKind(t, err, domain.ErrValidation)

	report, err = f.svc.DisputeDailyReport(f.manager, report.ID, domain.DisputeDailyReportRequest{Reason: "recount the cash drawer"})
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if report.Status != domain.ReportDisputed || !strings.Contains(report.Notes, "recount the cash drawer") {
		t.Fatalf("unexpected disputed report: %+v", report)
	}

	_, err = f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{
		ClosingCashCounted: decimal.NewNullDecimal(dec("600000")),
	})
	requireKind(t, err, domain.ErrStateInvalid)

	report, err = f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{
		PaymentMethods: []domain.PaymentMethodActualInput{{Method: domain.MethodCash, ActualAmount: dec("600000"), Notes: "recounted"}},
	})
	if err != nil {
		t.Fatalf("update disputed rows: %v", err)
	}
	requireDecimal(t, "cash variance", methodRow(t, report, domain.MethodCash).Variance, "0")

	_, err = f.svc.RegenerateDailyReport(f.accountant, report.ID)
	requireKind(t, err, domain.ErrStateInvalid)

	report, err = f.svc.ResubmitDailyReport(f.accountant, report.ID)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if report.Status != domain.ReportSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", report.Status)
	}
}

func TestRegenerateRefreshesDraft(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-10"})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	requireDecimal(t, "empty day sales", report.ExpectedTotalSales, "0")
	if _, err := f.svc.UpdateDailyReportActuals(f.accountant, report.ID, domain.UpdateDailyReportRequest{
		PaymentMethods: actuals("600000", "0", "0"),
	}); err != nil {
		t.Fatalf("update actuals: %v", err)
	}

	seedBusinessDay(t, f)

	report, err = f.svc.RegenerateDailyReport(f.accountant, report.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	requireDecimal(t, "sales", report.ExpectedTotalSales, "1000000")
	cash := methodRow(t, report, domain.MethodCash)
	requireDecimal(t, "cash expected", cash.ExpectedAmount, "600000")
	requireDecimal(t, "cash variance", cash.Variance, "0")
	if !cash.ActualAmount.Valid {
		t.Fatalf("regenerate must keep entered actuals")
	}

	byDate, err := f.svc.GetDailyReportByDate(f.manager, "2026-03-10")
	if err != nil {
		t.Fatalf("get by date: %v", err)
	}
	if byDate.ID != report.ID {
		t.Fatalf("expected %s, got %s", report.ID, byDate.ID)
	}

	// before the cutoff the previous day is still in progress
	f.now = time.Date(2026, 3, 11, 1, 30, 0, 0, time.UTC)
	today, err := f.svc.GetDailyReportByDate(f.manager, "")
	if err != nil {
		t.Fatalf("get current business day: %v", err)
	}
	if today.ID != report.ID || today.ReportDate != "2026-03-10" {
		t.Fatalf("expected report of 2026-03-10, got %s for %s", today.ID, today.ReportDate)
	}
}

func TestSalesOutsideWindowAreExcluded(t *testing.T) {
	f := newFixture(t)
	item := f.plainMenu(t, "Late snack", "25000")

	f.now = testNow.Add(11 * time.Hour)
	late := f.openSale(t, domain.SaleItemInput{MenuID: item.ID, Quantity: dec("1")})
	f.closeSale(t, late.ID, domain.CloseSaleRequest{})

	report, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-10"})
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	requireDecimal(t, "sales before cutoff belong to the previous day", report.ExpectedTotalSales, "25000")

	f.now = testNow.Add(36 * time.Hour)
	next, err := f.svc.CreateDailyReport(f.accountant, domain.CreateDailyReportRequest{ReportDate: "2026-03-11"})
	if err != nil {
		t.Fatalf("create next report: %v", err)
	}
	requireDecimal(t, "next day sales", next.ExpectedTotalSales, "0")
}
