package memory

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

func (r *repo) CreateDailyReport(_ context.Context, report domain.DailyReport) (*domain.DailyReport, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, exists := r.data.reportsByDate[report.ReportDate]; exists {
		return nil, conflict("daily report for", report.ReportDate)
	}
	report = cloneReport(report)
	r.data.reports[report.ID] = report
	r.data.reportsByDate[report.ReportDate] = report.ID
	out := cloneReport(report)
	return &out, nil
}

func (r *repo) GetDailyReport(_ context.Context, id string) (*domain.DailyReport, error) {
	report, ok := r.data.reports[id]
	if !ok {
		return nil, notFound("daily report", id)
	}
	out := cloneReport(report)
	return &out, nil
}

func (r *repo) GetDailyReportByDate(ctx context.Context, date string) (*domain.DailyReport, error) {
	id, ok := r.data.reportsByDate[date]
	if !ok {
		return nil, notFound("daily report for", date)
	}
	return r.GetDailyReport(ctx, id)
}

func (r *repo) LockDailyReport(ctx context.Context, id string) (*domain.DailyReport, error) {
	return r.GetDailyReport(ctx, id)
}

func (r *repo) UpdateDailyReport(_ context.Context, report domain.DailyReport) error {
	if err := r.writable(); err != nil {
		return err
	}
	existing, ok := r.data.reports[report.ID]
	if !ok {
		return notFound("daily report", report.ID)
	}
	report.ReportDate = existing.ReportDate
	r.data.reports[report.ID] = cloneReport(report)
	return nil
}

// SummarizeBusinessDay aggregates sales closed, payments received and refunds
// processed in [from, to).
func (r *repo) SummarizeBusinessDay(_ context.Context, from time.Time, to time.Time) (domain.BusinessDaySummary, error) {
	summary := domain.BusinessDaySummary{
		From:            from,
		To:              to,
		TotalSales:      decimal.Zero,
		TotalDiscounts:  decimal.Zero,
		TotalTax:        decimal.Zero,
		TotalTips:       decimal.Zero,
		TotalRefunds:    decimal.Zero,
		CostOfGoodsSold: decimal.Zero,
		PaymentsApplied: make(map[domain.PaymentMethod]decimal.Decimal, len(domain.PaymentMethods)),
		RefundsByMethod: make(map[domain.PaymentMethod]decimal.Decimal, len(domain.PaymentMethods)),
	}
	for _, method := range domain.PaymentMethods {
		summary.PaymentsApplied[method] = decimal.Zero
		summary.RefundsByMethod[method] = decimal.Zero
	}

	for _, sale := range r.data.sales {
		if sale.State != domain.SaleClosed || sale.ClosedAt == nil || !inWindow(*sale.ClosedAt, from, to) {
			continue
		}
		summary.ClosedSales++
		summary.TotalSales = summary.TotalSales.Add(sale.TotalAmount)
		summary.TotalDiscounts = summary.TotalDiscounts.Add(sale.DiscountAmount)
		summary.TotalTax = summary.TotalTax.Add(sale.TaxAmount)
		summary.CostOfGoodsSold = summary.CostOfGoodsSold.Add(sale.TotalCost)
	}

	for _, payment := range r.data.payments {
		if payment.Status == domain.PaymentRefunded || !inWindow(payment.ReceivedAt, from, to) {
			continue
		}
		summary.PaymentsApplied[payment.Method] = summary.PaymentsApplied[payment.Method].Add(payment.AmountApplied)
		summary.TotalTips = summary.TotalTips.Add(payment.TipAmount)
	}

	for _, refund := range r.data.refunds {
		if refund.Status != domain.RefundCompleted || !inWindow(refund.ProcessedAt, from, to) {
			continue
		}
		summary.RefundsByMethod[refund.Method] = summary.RefundsByMethod[refund.Method].Add(refund.Amount)
		summary.TotalRefunds = summary.TotalRefunds.Add(refund.Amount)
	}

	return summary, nil
}

func cloneReport(src domain.DailyReport) domain.DailyReport {
	dup := src
	dup.PaymentMethods = slices.Clone(src.PaymentMethods)
	return dup
}
