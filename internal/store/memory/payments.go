package memory

import (
	"context"
	"slices"

	"cafepos/backend/internal/domain"
)

func (r *repo) CreateInvoice(_ context.Context, invoice domain.SaleInvoice) (*domain.SaleInvoice, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.sales[invoice.SaleID]; !ok {
		return nil, notFound("sale", invoice.SaleID)
	}
	if _, exists := r.data.invoiceBySale[invoice.SaleID]; exists {
		return nil, conflict("invoice for sale", invoice.SaleID)
	}
	if _, exists := r.data.invoiceNumbers[invoice.InvoiceNumber]; exists {
		return nil, conflict("invoice number", invoice.InvoiceNumber)
	}
	r.data.invoices[invoice.ID] = invoice
	r.data.invoiceBySale[invoice.SaleID] = invoice.ID
	r.data.invoiceNumbers[invoice.InvoiceNumber] = invoice.ID
	return &invoice, nil
}

func (r *repo) GetInvoice(_ context.Context, id string) (*domain.SaleInvoice, error) {
	invoice, ok := r.data.invoices[id]
	if !ok {
		return nil, notFound("invoice", id)
	}
	return &invoice, nil
}

func (r *repo) LockInvoice(ctx context.Context, id string) (*domain.SaleInvoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *repo) GetInvoiceBySale(ctx context.Context, saleID string) (*domain.SaleInvoice, error) {
	id, ok := r.data.invoiceBySale[saleID]
	if !ok {
		return nil, notFound("invoice for sale", saleID)
	}
	return r.GetInvoice(ctx, id)
}

func (r *repo) UpdateInvoiceStatus(_ context.Context, id string, status domain.InvoiceStatus) error {
	if err := r.writable(); err != nil {
		return err
	}
	invoice, ok := r.data.invoices[id]
	if !ok {
		return notFound("invoice", id)
	}
	invoice.Status = status
	r.data.invoices[id] = invoice
	return nil
}

func (r *repo) CreatePayment(_ context.Context, payment domain.SalePayment) (*domain.SalePayment, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.invoices[payment.InvoiceID]; !ok {
		return nil, notFound("invoice", payment.InvoiceID)
	}
	if payment.IdempotencyKey != "" {
		if _, exists := r.data.paymentsByIdem[payment.IdempotencyKey]; exists {
			return nil, conflict("payment idempotency key", payment.IdempotencyKey)
		}
		r.data.paymentsByIdem[payment.IdempotencyKey] = payment.ID
	}
	r.data.payments[payment.ID] = payment
	return &payment, nil
}

func (r *repo) GetPayment(_ context.Context, id string) (*domain.SalePayment, error) {
	payment, ok := r.data.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return &payment, nil
}

func (r *repo) LockPayment(ctx context.Context, id string) (*domain.SalePayment, error) {
	return r.GetPayment(ctx, id)
}

func (r *repo) FindPaymentByIdempotency(ctx context.Context, key string) (*domain.SalePayment, error) {
	id, ok := r.data.paymentsByIdem[key]
	if !ok {
		return nil, notFound("payment idempotency key", key)
	}
	return r.GetPayment(ctx, id)
}

func (r *repo) ListPayments(_ context.Context, invoiceID string) ([]domain.SalePayment, error) {
	payments := make([]domain.SalePayment, 0)
	for _, payment := range r.data.payments {
		if payment.InvoiceID == invoiceID {
			payments = append(payments, payment)
		}
	}
	slices.SortFunc(payments, func(a, b domain.SalePayment) int {
		return compareCreated(a.ReceivedAt, a.ID, b.ReceivedAt, b.ID)
	})
	return payments, nil
}

func (r *repo) UpdatePaymentStatus(_ context.Context, id string, status domain.PaymentState) error {
	if err := r.writable(); err != nil {
		return err
	}
	payment, ok := r.data.payments[id]
	if !ok {
		return notFound("payment", id)
	}
	payment.Status = status
	r.data.payments[id] = payment
	return nil
}

func (r *repo) CreateRefund(_ context.Context, refund domain.SaleRefund) (*domain.SaleRefund, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	payment, ok := r.data.payments[refund.PaymentID]
	if !ok {
		return nil, notFound("payment", refund.PaymentID)
	}
	if payment.InvoiceID != refund.InvoiceID {
		return nil, domain.Integrity("refund invoice does not match payment invoice")
	}
	r.data.refunds[refund.ID] = refund
	return &refund, nil
}

func (r *repo) ListRefunds(_ context.Context, invoiceID string) ([]domain.SaleRefund, error) {
	refunds := make([]domain.SaleRefund, 0)
	for _, refund := range r.data.refunds {
		if refund.InvoiceID == invoiceID {
			refunds = append(refunds, refund)
		}
	}
	slices.SortFunc(refunds, func(a, b domain.SaleRefund) int {
		return compareCreated(a.ProcessedAt, a.ID, b.ProcessedAt, b.ID)
	})
	return refunds, nil
}
