package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/export"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

const reportLockTTL = 30 * time.Second

func (s *Service) CreateDailyReport(ctx context.Context, req domain.CreateDailyReportRequest) (report domain.DailyReport, err error) {
	defer s.trace("create_daily_report", &err, "report_date", req.ReportDate)
	actor, err := s.authorize(ctx, "create_daily_report", domain.RoleAccountant, domain.RoleManager)
	if err != nil {
		return domain.DailyReport{}, err
	}
	if err := s.check(req); err != nil {
		return domain.DailyReport{}, err
	}
	if req.OpeningFloat.IsNegative() {
		return domain.DailyReport{}, domain.Validation("opening_float", "must not be negative")
	}
	from, to, err := s.businessWindow(req.ReportDate)
	if err != nil {
		return domain.DailyReport{}, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	release, err := s.locker.Obtain(ctx, "daily-report:"+req.ReportDate, reportLockTTL)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer release()

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		_, err := repo.GetDailyReportByDate(ctx, req.ReportDate)
		if err == nil {
			return domain.Conflict("daily report already exists for date", req.ReportDate)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		summary, err := repo.SummarizeBusinessDay(ctx, from, to)
		if err != nil {
			return err
		}
		draft := domain.DailyReport{
			ID:                 xid.New("report"),
			ReportDate:         req.ReportDate,
			Status:             domain.ReportDraft,
			OpeningFloat:       domain.Money(req.OpeningFloat),
			ClosingCashCounted: decimal.Zero,
			LaborCosts:         decimal.Zero,
			OperatingExpenses:  decimal.Zero,
			Notes:              strings.TrimSpace(req.Notes),
			CreatedBy:          actor.Username,
			CreatedAt:          s.clock(),
		}
		applySummary(&draft, summary)

		created, err := repo.CreateDailyReport(ctx, draft)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return domain.Conflict("daily report already exists for date", req.ReportDate)
			}
			return err
		}
		report = *created
		return nil
	})
	if err != nil {
		return domain.DailyReport{}, err
	}

	s.logAudit(ctx, "daily_report_create", "daily_report", report.ID, fmt.Sprintf("date=%s,sales=%s,refunds=%s", report.ReportDate, report.ExpectedTotalSales, report.ExpectedTotalRefunds))
	s.logger.Info().Str("report_date", report.ReportDate).Str("expected_sales", report.ExpectedTotalSales.String()).Msg("daily report generated")
	return report, nil
}

// applySummary writes the expected figures onto a report. Existing actuals
// are kept and their variances recomputed.
func applySummary(report *domain.DailyReport, summary domain.BusinessDaySummary) {
	report.ExpectedTotalSales = domain.Money(summary.TotalSales)
	report.ExpectedTotalRefunds = domain.Money(summary.TotalRefunds)
	report.ExpectedTotalDiscounts = domain.Money(summary.TotalDiscounts)
	report.ExpectedTotalTax = domain.Money(summary.TotalTax)
	report.ExpectedTotalTips = domain.Money(summary.TotalTips)
	report.CostOfGoodsSold = domain.Money(summary.CostOfGoodsSold)

	previous := make(map[domain.PaymentMethod]domain.DailyReportPaymentMethod, len(report.PaymentMethods))
	for _, row := range report.PaymentMethods {
		previous[row.Method] = row
	}
	rows := make([]domain.DailyReportPaymentMethod, 0, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		row := previous[method]
		row.ReportID = report.ID
		row.Method = method
		row.ExpectedAmount = domain.Money(summary.PaymentsApplied[method].Sub(summary.RefundsByMethod[method]))
		row.Variance = decimal.Zero
		if row.ActualAmount.Valid {
			row.Variance = row.ActualAmount.Decimal.Sub(row.ExpectedAmount)
		}
		rows = append(rows, row)
	}
	report.PaymentMethods = rows
}

// RegenerateDailyReport refreshes the expected figures of a draft report.
func (s *Service) RegenerateDailyReport(ctx context.Context, reportID string) (report domain.DailyReport, err error) {
	defer s.trace("regenerate_daily_report", &err, "report_id", reportID)
	if _, err := s.authorize(ctx, "regenerate_daily_report", domain.RoleAccountant, domain.RoleManager); err != nil {
		return domain.DailyReport{}, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockDailyReport(ctx, reportID)
		if err != nil {
			return err
		}
		if locked.Status != domain.ReportDraft {
			return domain.StateInvalid("regenerate_daily_report", locked.Status)
		}
		from, to, err := s.businessWindow(locked.ReportDate)
		if err != nil {
			return err
		}
		summary, err := repo.SummarizeBusinessDay(ctx, from, to)
		if err != nil {
			return err
		}
		applySummary(locked, summary)
		if err := repo.UpdateDailyReport(ctx, *locked); err != nil {
			return err
		}
		report = *locked
		return nil
	})
	if err != nil {
		return domain.DailyReport{}, err
	}

	s.logAudit(ctx, "daily_report_regenerate", "daily_report", report.ID, fmt.Sprintf("date=%s,sales=%s", report.ReportDate, report.ExpectedTotalSales))
	return report, nil
}

// UpdateDailyReportActuals records counted amounts and costs. A draft accepts
// every field; a disputed report only its payment method rows and notes.
func (s *Service) UpdateDailyReportActuals(ctx context.Context, reportID string, req domain.UpdateDailyReportRequest) (report domain.DailyReport, err error) {
	defer s.trace("update_daily_report", &err, "report_id", reportID)
	if _, err := s.authorize(ctx, "update_daily_report", domain.RoleAccountant, domain.RoleManager); err != nil {
		return domain.DailyReport{}, err
	}
	if err := s.check(req); err != nil {
		return domain.DailyReport{}, err
	}
	for field, value := range map[string]decimal.NullDecimal{
		"closing_cash_counted": req.ClosingCashCounted,
		"labor_costs":          req.LaborCosts,
		"operating_expenses":   req.OperatingExpenses,
	} {
		if value.Valid && value.Decimal.IsNegative() {
			return domain.DailyReport{}, domain.Validation(field, "must not be negative")
		}
	}
	seen := make(map[domain.PaymentMethod]struct{}, len(req.PaymentMethods))
	for i, row := range req.PaymentMethods {
		if _, dup := seen[row.Method]; dup {
			return domain.DailyReport{}, domain.Validation(fmt.Sprintf("payment_methods[%d].method", i), "listed twice")
		}
		seen[row.Method] = struct{}{}
		if row.ActualAmount.IsNegative() {
			return domain.DailyReport{}, domain.Validation(fmt.Sprintf("payment_methods[%d].actual_amount", i), "must not be negative")
		}
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockDailyReport(ctx, reportID)
		if err != nil {
			return err
		}
		switch locked.Status {
		case domain.ReportDraft:
			if req.ClosingCashCounted.Valid {
				locked.ClosingCashCounted = domain.Money(req.ClosingCashCounted.Decimal)
			}
			if req.LaborCosts.Valid {
				locked.LaborCosts = domain.Money(req.LaborCosts.Decimal)
			}
			if req.OperatingExpenses.Valid {
				locked.OperatingExpenses = domain.Money(req.OperatingExpenses.Decimal)
			}
		case domain.ReportDisputed:
			if req.ClosingCashCounted.Valid || req.LaborCosts.Valid || req.OperatingExpenses.Valid {
				return domain.StateConflict("update_daily_report", locked.Status, "only payment method rows can be edited on a disputed report")
			}
		default:
			return domain.StateInvalid("update_daily_report", locked.Status)
		}
		if req.Notes != nil {
			locked.Notes = strings.TrimSpace(*req.Notes)
		}

		for _, input := range req.PaymentMethods {
			idx := -1
			for i, row := range locked.PaymentMethods {
				if row.Method == input.Method {
					idx = i
					break
				}
			}
			if idx < 0 {
				return domain.Integrity(fmt.Sprintf("report %s has no %s row", locked.ID, input.Method))
			}
			actual := domain.Money(input.ActualAmount)
			row := &locked.PaymentMethods[idx]
			row.ActualAmount = decimal.NewNullDecimal(actual)
			row.Variance = actual.Sub(row.ExpectedAmount)
			row.Notes = strings.TrimSpace(input.Notes)
		}

		if err := repo.UpdateDailyReport(ctx, *locked); err != nil {
			return err
		}
		report = *locked
		return nil
	})
	if err != nil {
		return domain.DailyReport{}, err
	}

	s.logAudit(ctx, "daily_report_update", "daily_report", report.ID, fmt.Sprintf("status=%s,rows=%d,variance=%s", report.Status, len(req.PaymentMethods), report.TotalVariance()))
	return report, nil
}

// readyForSubmit checks the figures an accountant must fill before a report
// leaves their hands.
func readyForSubmit(report *domain.DailyReport) error {
	for i, row := range report.PaymentMethods {
		if !row.ActualAmount.Valid {
			return domain.Validation(fmt.Sprintf("payment_methods[%d].actual_amount", i), fmt.Sprintf("actual amount for %s is required", row.Method))
		}
	}
	if !report.ClosingCashCounted.IsPositive() {
		return domain.Validation("closing_cash_counted", "must be positive")
	}
	if report.LaborCosts.IsNegative() {
		return domain.Validation("labor_costs", "must not be negative")
	}
	if report.OperatingExpenses.IsNegative() {
		return domain.Validation("operating_expenses", "must not be negative")
	}
	return nil
}

func (s *Service) SubmitDailyReport(ctx context.Context, reportID string) (domain.DailyReport, error) {
	return s.transitionReport(ctx, "submit_daily_report", reportID, []string{domain.RoleAccountant, domain.RoleManager},
		func(report *domain.DailyReport, actor domain.Actor, now time.Time) error {
			if report.Status != domain.ReportDraft {
				return domain.StateInvalid("submit_daily_report", report.Status)
			}
			if err := readyForSubmit(report); err != nil {
				return err
			}
			report.Status = domain.ReportSubmitted
			report.SubmittedBy = actor.Username
			report.SubmittedAt = &now
			return nil
		})
}

func (s *Service) ResubmitDailyReport(ctx context.Context, reportID string) (domain.DailyReport, error) {
	return s.transitionReport(ctx, "resubmit_daily_report", reportID, []string{domain.RoleAccountant, domain.RoleManager},
		func(report *domain.DailyReport, actor domain.Actor, now time.Time) error {
			if report.Status != domain.ReportDisputed {
				return domain.StateInvalid("resubmit_daily_report", report.Status)
			}
			if err := readyForSubmit(report); err != nil {
				return err
			}
			report.Status = domain.ReportSubmitted
			report.SubmittedBy = actor.Username
			report.SubmittedAt = &now
			return nil
		})
}

func (s *Service) ApproveDailyReport(ctx context.Context, reportID string) (domain.DailyReport, error) {
	return s.transitionReport(ctx, "approve_daily_report", reportID, []string{domain.RoleManager},
		func(report *domain.DailyReport, actor domain.Actor, now time.Time) error {
			if report.Status != domain.ReportSubmitted {
				return domain.StateInvalid("approve_daily_report", report.Status)
			}
			if actor.Username == report.CreatedBy {
				return domain.PermissionReason("approve_daily_report", "a report cannot be approved by its creator")
			}
			report.Status = domain.ReportApproved
			report.ApprovedBy = actor.Username
			report.ApprovedAt = &now
			return nil
		})
}

func (s *Service) DisputeDailyReport(ctx context.Context, reportID string, req domain.DisputeDailyReportRequest) (domain.DailyReport, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return domain.DailyReport{}, err
	}
	return s.transitionReport(ctx, "dispute_daily_report", reportID, []string{domain.RoleManager},
		func(report *domain.DailyReport, actor domain.Actor, now time.Time) error {
			if report.Status != domain.ReportSubmitted {
				return domain.StateInvalid("dispute_daily_report", report.Status)
			}
			entry := fmt.Sprintf("[disputed by %s at %s] %s", actor.Username, now.Format(time.RFC3339), req.Reason)
			if report.Notes == "" {
				report.Notes = entry
			} else {
				report.Notes = report.Notes + "\n" + entry
			}
			report.Status = domain.ReportDisputed
			report.DisputedBy = actor.Username
			report.DisputedAt = &now
			return nil
		})
}

func (s *Service) CloseDailyReport(ctx context.Context, reportID string) (domain.DailyReport, error) {
	return s.transitionReport(ctx, "close_daily_report", reportID, []string{domain.RoleManager},
		func(report *domain.DailyReport, actor domain.Actor, now time.Time) error {
			if report.Status != domain.ReportApproved {
				return domain.StateInvalid("close_daily_report", report.Status)
			}
			report.Status = domain.ReportClosed
			report.ClosedBy = actor.Username
			report.ClosedAt = &now
			return nil
		})
}

// transitionReport runs one status change under the report row lock and
// audits it.
func (s *Service) transitionReport(ctx context.Context, op string, reportID string, roles []string, apply func(*domain.DailyReport, domain.Actor, time.Time) error) (report domain.DailyReport, err error) {
	defer s.trace(op, &err, "report_id", reportID)
	actor, err := s.authorize(ctx, op, roles...)
	if err != nil {
		return domain.DailyReport{}, err
	}

	var from domain.ReportStatus
	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockDailyReport(ctx, reportID)
		if err != nil {
			return err
		}
		from = locked.Status
		if err := apply(locked, actor, s.clock()); err != nil {
			return err
		}
		if err := repo.UpdateDailyReport(ctx, *locked); err != nil {
			return err
		}
		report = *locked
		return nil
	})
	if err != nil {
		return domain.DailyReport{}, err
	}

	s.logAudit(ctx, op, "daily_report", report.ID, fmt.Sprintf("date=%s,from=%s,to=%s", report.ReportDate, from, report.Status))
	s.logger.Info().Str("report_date", report.ReportDate).Str("from", string(from)).Str("to", string(report.Status)).Msg("daily report transitioned")
	return report, nil
}

func (s *Service) GetDailyReport(ctx context.Context, reportID string) (report domain.DailyReport, err error) {
	if _, err := s.authorize(ctx, "get_daily_report", domain.RoleAccountant, domain.RoleManager); err != nil {
		return domain.DailyReport{}, err
	}
	if err := requireID("report_id", reportID); err != nil {
		return domain.DailyReport{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetDailyReport(ctx, reportID)
		if err != nil {
			return err
		}
		report = *found
		return nil
	})
	return report, err
}

// GetDailyReportByDate loads the report of a business day. A blank date means
// the business day in progress.
func (s *Service) GetDailyReportByDate(ctx context.Context, date string) (report domain.DailyReport, err error) {
	if _, err := s.authorize(ctx, "get_daily_report", domain.RoleAccountant, domain.RoleManager); err != nil {
		return domain.DailyReport{}, err
	}
	if strings.TrimSpace(date) == "" {
		date = s.businessDate(s.clock())
	}
	if _, _, err := s.businessWindow(date); err != nil {
		return domain.DailyReport{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetDailyReportByDate(ctx, date)
		if err != nil {
			return err
		}
		report = *found
		return nil
	})
	return report, err
}

// ExportDailyReport renders a report as an xlsx workbook and returns it with
// its download filename.
func (s *Service) ExportDailyReport(ctx context.Context, reportID string) (data []byte, filename string, err error) {
	defer s.trace("export_daily_report", &err, "report_id", reportID)
	report, err := s.GetDailyReport(ctx, reportID)
	if err != nil {
		return nil, "", err
	}
	data, err = export.DailyReport(report)
	if err != nil {
		return nil, "", fmt.Errorf("render daily report %s: %w", report.ReportDate, err)
	}
	return data, export.Filename(report), nil
}
