package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (invoice domain.SaleInvoice, err error) {
	defer s.trace("create_invoice", &err, "sale_id", req.SaleID)
	actor, err := s.authorize(ctx, "create_invoice", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.SaleInvoice{}, err
	}
	if err := s.check(req); err != nil {
		return domain.SaleInvoice{}, err
	}
	if req.TaxAmount.Valid && req.TaxAmount.Decimal.IsNegative() {
		return domain.SaleInvoice{}, domain.Validation("tax_amount", "must not be negative")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		sale, err := repo.LockSale(ctx, req.SaleID)
		if err != nil {
			return err
		}
		created, err := s.issueInvoice(ctx, repo, sale, actor, req.TaxAmount)
		if err != nil {
			return err
		}
		invoice = *created
		return nil
	})
	if err != nil {
		return domain.SaleInvoice{}, err
	}

	s.logAudit(ctx, "invoice_create", "invoice", invoice.ID, fmt.Sprintf("sale=%s,number=%s,total=%s,status=%s", invoice.SaleID, invoice.InvoiceNumber, invoice.TotalAmount, invoice.Status))
	return invoice, nil
}

// issueInvoice creates the single invoice of a closed sale. The caller holds
// the sale lock.
func (s *Service) issueInvoice(ctx context.Context, repo store.Repository, sale *domain.Sale, actor domain.Actor, taxOverride decimal.NullDecimal) (*domain.SaleInvoice, error) {
	if sale.State != domain.SaleClosed {
		return nil, domain.StateInvalid("create_invoice", sale.State)
	}
	_, err := repo.GetInvoiceBySale(ctx, sale.ID)
	if err == nil {
		return nil, domain.Conflict("invoice already exists for sale", sale.ID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	tax := sale.TaxAmount
	if taxOverride.Valid {
		tax = domain.Money(taxOverride.Decimal)
	}
	total := sale.SubtotalAmount.Sub(sale.DiscountAmount).Add(tax)
	if !domain.MoneyEqual(total, sale.TotalAmount) {
		return nil, domain.Integrity(fmt.Sprintf("invoice total %s does not match sale total %s", total, sale.TotalAmount))
	}

	status := deriveInvoiceStatus(total, decimal.Zero)
	created, err := repo.CreateInvoice(ctx, domain.SaleInvoice{
		ID:             xid.New("inv"),
		SaleID:         sale.ID,
		InvoiceNumber:  sale.InvoiceNumber,
		SubtotalAmount: sale.SubtotalAmount,
		DiscountAmount: sale.DiscountAmount,
		TaxAmount:      tax,
		TotalAmount:    total,
		Status:         status,
		IssuedBy:       actor.Username,
		IssuedAt:       s.clock(),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domain.Conflict("invoice already exists for sale", sale.ID)
		}
		return nil, err
	}
	if err := mirrorPaymentStatus(ctx, repo, sale.ID, status); err != nil {
		return nil, err
	}
	return created, nil
}

// deriveInvoiceStatus maps the net paid amount onto the invoice status. A
// zero-total invoice is settled the moment it exists.
func deriveInvoiceStatus(total decimal.Decimal, paid decimal.Decimal) domain.InvoiceStatus {
	switch {
	case total.LessThanOrEqual(domain.CurrencyTolerance):
		return domain.InvoicePaid
	case !paid.IsPositive():
		return domain.InvoiceUnpaid
	case paid.GreaterThanOrEqual(total.Sub(domain.CurrencyTolerance)):
		return domain.InvoicePaid
	default:
		return domain.InvoicePartiallyPaid
	}
}

// netPaid sums completed payments less the completed refunds taken against
// them.
func netPaid(payments []domain.SalePayment, refunds []domain.SaleRefund) decimal.Decimal {
	completed := make(map[string]struct{}, len(payments))
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status != domain.PaymentCompleted {
			continue
		}
		completed[p.ID] = struct{}{}
		paid = paid.Add(p.AmountApplied)
	}
	for _, r := range refunds {
		if r.Status != domain.RefundCompleted {
			continue
		}
		if _, ok := completed[r.PaymentID]; ok {
			paid = paid.Sub(r.Amount)
		}
	}
	return paid
}

// recomputeInvoiceStatus re-derives an invoice's status from its payments
// and mirrors it onto the sale. VOID invoices are left untouched.
func (s *Service) recomputeInvoiceStatus(ctx context.Context, repo store.Repository, invoiceID string) (*domain.SaleInvoice, error) {
	invoice, err := repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoiceVoid {
		return invoice, nil
	}
	payments, err := repo.ListPayments(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	refunds, err := repo.ListRefunds(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	status := deriveInvoiceStatus(invoice.TotalAmount, netPaid(payments, refunds))
	if status != invoice.Status {
		if err := repo.UpdateInvoiceStatus(ctx, invoice.ID, status); err != nil {
			return nil, err
		}
		invoice.Status = status
	}
	if err := mirrorPaymentStatus(ctx, repo, invoice.SaleID, status); err != nil {
		return nil, err
	}
	return invoice, nil
}

func mirrorPaymentStatus(ctx context.Context, repo store.Repository, saleID string, status domain.InvoiceStatus) error {
	sale, err := repo.GetSale(ctx, saleID)
	if err != nil {
		return err
	}
	next := domain.PaymentStatus(status)
	if next == sale.PaymentStatus {
		return nil
	}
	sale.PaymentStatus = next
	return repo.UpdateSale(ctx, *sale)
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (detail domain.InvoiceDetail, err error) {
	if _, err := s.authorize(ctx, "get_invoice"); err != nil {
		return domain.InvoiceDetail{}, err
	}
	if err := requireID("invoice_id", invoiceID); err != nil {
		return domain.InvoiceDetail{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		invoice, err := repo.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		detail, err = loadInvoiceDetail(ctx, repo, invoice)
		return err
	})
	return detail, err
}

func (s *Service) GetInvoiceBySale(ctx context.Context, saleID string) (detail domain.InvoiceDetail, err error) {
	if _, err := s.authorize(ctx, "get_invoice"); err != nil {
		return domain.InvoiceDetail{}, err
	}
	if err := requireID("sale_id", saleID); err != nil {
		return domain.InvoiceDetail{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		invoice, err := repo.GetInvoiceBySale(ctx, saleID)
		if err != nil {
			return err
		}
		detail, err = loadInvoiceDetail(ctx, repo, invoice)
		return err
	})
	return detail, err
}

func loadInvoiceDetail(ctx context.Context, repo store.Repository, invoice *domain.SaleInvoice) (domain.InvoiceDetail, error) {
	payments, err := repo.ListPayments(ctx, invoice.ID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}
	refunds, err := repo.ListRefunds(ctx, invoice.ID)
	if err != nil {
		return domain.InvoiceDetail{}, err
	}
	return domain.InvoiceDetail{
		Invoice:  *invoice,
		Payments: payments,
		Refunds:  refunds,
		Paid:     netPaid(payments, refunds),
	}, nil
}
