package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

const reportColumns = `id, to_char(report_date, 'YYYY-MM-DD'), status, opening_float, closing_cash_counted,
	expected_total_sales, expected_total_refunds, expected_total_discounts, expected_total_tax, expected_total_tips,
	cost_of_goods_sold, labor_costs, operating_expenses, notes, created_by, created_at,
	submitted_by, submitted_at, approved_by, approved_at, disputed_by, disputed_at, closed_by, closed_at`

func scanReport(row scanner) (domain.DailyReport, error) {
	var (
		rep                                           domain.DailyReport
		submittedAt, approvedAt, disputedAt, closedAt sql.NullTime
	)
	err := row.Scan(&rep.ID, &rep.ReportDate, &rep.Status, &rep.OpeningFloat, &rep.ClosingCashCounted,
		&rep.ExpectedTotalSales, &rep.ExpectedTotalRefunds, &rep.ExpectedTotalDiscounts, &rep.ExpectedTotalTax, &rep.ExpectedTotalTips,
		&rep.CostOfGoodsSold, &rep.LaborCosts, &rep.OperatingExpenses, &rep.Notes, &rep.CreatedBy, &rep.CreatedAt,
		&rep.SubmittedBy, &submittedAt, &rep.ApprovedBy, &approvedAt, &rep.DisputedBy, &disputedAt, &rep.ClosedBy, &closedAt)
	rep.SubmittedAt = timePtr(submittedAt)
	rep.ApprovedAt = timePtr(approvedAt)
	rep.DisputedAt = timePtr(disputedAt)
	rep.ClosedAt = timePtr(closedAt)
	return rep, err
}

func (r *repo) CreateDailyReport(ctx context.Context, report domain.DailyReport) (*domain.DailyReport, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	day, err := time.Parse(time.DateOnly, report.ReportDate)
	if err != nil {
		return nil, domain.Validation("report_date", "must be YYYY-MM-DD")
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO daily_reports (
			id, report_date, status, opening_float, closing_cash_counted,
			expected_total_sales, expected_total_refunds, expected_total_discounts, expected_total_tax, expected_total_tips,
			cost_of_goods_sold, labor_costs, operating_expenses, notes, created_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, report.ID, day, report.Status, report.OpeningFloat, report.ClosingCashCounted,
		report.ExpectedTotalSales, report.ExpectedTotalRefunds, report.ExpectedTotalDiscounts, report.ExpectedTotalTax, report.ExpectedTotalTips,
		report.CostOfGoodsSold, report.LaborCosts, report.OperatingExpenses, report.Notes, report.CreatedBy, report.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "daily report for", report.ReportDate)
	}
	if err := r.replaceReportMethods(ctx, report.ID, report.PaymentMethods); err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repo) GetDailyReport(ctx context.Context, id string) (*domain.DailyReport, error) {
	return r.loadReport(ctx, `WHERE id = $1`, id, id)
}

func (r *repo) GetDailyReportByDate(ctx context.Context, date string) (*domain.DailyReport, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, domain.Validation("date", "must be YYYY-MM-DD")
	}
	return r.loadReport(ctx, `WHERE report_date = $1`, day, date)
}

func (r *repo) LockDailyReport(ctx context.Context, id string) (*domain.DailyReport, error) {
	if r.readOnly {
		return r.GetDailyReport(ctx, id)
	}
	return r.loadReport(ctx, `WHERE id = $1 FOR UPDATE`, id, id)
}

func (r *repo) loadReport(ctx context.Context, where string, arg any, key string) (*domain.DailyReport, error) {
	report, err := scanReport(r.tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM daily_reports `+where, arg))
	if err != nil {
		return nil, mapErr(err, "daily report", key)
	}

	rows, err := r.tx.QueryContext(ctx, `
		SELECT report_id, method, expected_amount, actual_amount, variance, notes
		FROM daily_report_payment_methods
		WHERE report_id = $1
		ORDER BY position
	`, report.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report.PaymentMethods = make([]domain.DailyReportPaymentMethod, 0, len(domain.PaymentMethods))
	for rows.Next() {
		var m domain.DailyReportPaymentMethod
		if err := rows.Scan(&m.ReportID, &m.Method, &m.ExpectedAmount, &m.ActualAmount, &m.Variance, &m.Notes); err != nil {
			return nil, err
		}
		report.PaymentMethods = append(report.PaymentMethods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *repo) UpdateDailyReport(ctx context.Context, report domain.DailyReport) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE daily_reports
		SET status = $2, opening_float = $3, closing_cash_counted = $4,
			expected_total_sales = $5, expected_total_refunds = $6, expected_total_discounts = $7,
			expected_total_tax = $8, expected_total_tips = $9, cost_of_goods_sold = $10,
			labor_costs = $11, operating_expenses = $12, notes = $13,
			submitted_by = $14, submitted_at = $15, approved_by = $16, approved_at = $17,
			disputed_by = $18, disputed_at = $19, closed_by = $20, closed_at = $21
		WHERE id = $1
	`, report.ID, report.Status, report.OpeningFloat, report.ClosingCashCounted,
		report.ExpectedTotalSales, report.ExpectedTotalRefunds, report.ExpectedTotalDiscounts,
		report.ExpectedTotalTax, report.ExpectedTotalTips, report.CostOfGoodsSold,
		report.LaborCosts, report.OperatingExpenses, report.Notes,
		report.SubmittedBy, nullTime(report.SubmittedAt), report.ApprovedBy, nullTime(report.ApprovedAt),
		report.DisputedBy, nullTime(report.DisputedAt), report.ClosedBy, nullTime(report.ClosedAt))
	if err != nil {
		return err
	}
	if err := requireAffected(res, "daily report", report.ID); err != nil {
		return err
	}
	return r.replaceReportMethods(ctx, report.ID, report.PaymentMethods)
}

func (r *repo) replaceReportMethods(ctx context.Context, reportID string, methods []domain.DailyReportPaymentMethod) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM daily_report_payment_methods WHERE report_id = $1`, reportID); err != nil {
		return err
	}
	for i, m := range methods {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO daily_report_payment_methods (report_id, method, position, expected_amount, actual_amount, variance, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, reportID, m.Method, i, m.ExpectedAmount, nullDecimal(m.ActualAmount), m.Variance, m.Notes)
		if err != nil {
			return mapErr(err, "daily report method", string(m.Method))
		}
	}
	return nil
}

// SummarizeBusinessDay aggregates sales closed, payments received and refunds
// processed in [from, to).
func (r *repo) SummarizeBusinessDay(ctx context.Context, from time.Time, to time.Time) (domain.BusinessDaySummary, error) {
	summary := domain.BusinessDaySummary{
		From:            from,
		To:              to,
		PaymentsApplied: make(map[domain.PaymentMethod]decimal.Decimal, len(domain.PaymentMethods)),
		RefundsByMethod: make(map[domain.PaymentMethod]decimal.Decimal, len(domain.PaymentMethods)),
	}
	for _, method := range domain.PaymentMethods {
		summary.PaymentsApplied[method] = decimal.Zero
		summary.RefundsByMethod[method] = decimal.Zero
	}

	err := r.tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(discount_amount), 0),
			COALESCE(SUM(tax_amount), 0),
			COALESCE(SUM(total_cost), 0)
		FROM sales
		WHERE state = 'CLOSED' AND closed_at >= $1 AND closed_at < $2
	`, from, to).Scan(&summary.ClosedSales, &summary.TotalSales, &summary.TotalDiscounts, &summary.TotalTax, &summary.CostOfGoodsSold)
	if err != nil {
		return summary, err
	}

	err = r.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(tip_amount), 0)
		FROM sale_payments
		WHERE status <> 'REFUNDED' AND received_at >= $1 AND received_at < $2
	`, from, to).Scan(&summary.TotalTips)
	if err != nil {
		return summary, err
	}

	if err := r.sumByMethod(ctx, `
		SELECT method, COALESCE(SUM(amount_applied), 0)
		FROM sale_payments
		WHERE status <> 'REFUNDED' AND received_at >= $1 AND received_at < $2
		GROUP BY method
	`, from, to, summary.PaymentsApplied); err != nil {
		return summary, err
	}

	if err := r.sumByMethod(ctx, `
		SELECT method, COALESCE(SUM(amount), 0)
		FROM sale_refunds
		WHERE status = 'COMPLETED' AND processed_at >= $1 AND processed_at < $2
		GROUP BY method
	`, from, to, summary.RefundsByMethod); err != nil {
		return summary, err
	}

	summary.TotalRefunds = decimal.Zero
	for _, amount := range summary.RefundsByMethod {
		summary.TotalRefunds = summary.TotalRefunds.Add(amount)
	}
	return summary, nil
}

func (r *repo) sumByMethod(ctx context.Context, query string, from time.Time, to time.Time, into map[domain.PaymentMethod]decimal.Decimal) error {
	rows, err := r.tx.QueryContext(ctx, query, from, to)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			method domain.PaymentMethod
			amount decimal.Decimal
		)
		if err := rows.Scan(&method, &amount); err != nil {
			return err
		}
		into[method] = amount
	}
	return rows.Err()
}
