package postgres

import (
	"context"
	"database/sql"

	"cafepos/backend/internal/domain"
)

const invoiceColumns = `id, sale_id, invoice_number, subtotal_amount, discount_amount, tax_amount, total_amount, status, issued_by, issued_at`

func scanInvoice(row scanner) (domain.SaleInvoice, error) {
	var inv domain.SaleInvoice
	err := row.Scan(&inv.ID, &inv.SaleID, &inv.InvoiceNumber, &inv.SubtotalAmount, &inv.DiscountAmount, &inv.TaxAmount,
		&inv.TotalAmount, &inv.Status, &inv.IssuedBy, &inv.IssuedAt)
	return inv, err
}

func (r *repo) CreateInvoice(ctx context.Context, invoice domain.SaleInvoice) (*domain.SaleInvoice, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sale_invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, invoice.ID, invoice.SaleID, invoice.InvoiceNumber, invoice.SubtotalAmount, invoice.DiscountAmount, invoice.TaxAmount,
		invoice.TotalAmount, invoice.Status, invoice.IssuedBy, invoice.IssuedAt)
	if err != nil {
		return nil, mapErr(err, "invoice for sale", invoice.SaleID)
	}
	return &invoice, nil
}

func (r *repo) GetInvoice(ctx context.Context, id string) (*domain.SaleInvoice, error) {
	invoice, err := scanInvoice(r.tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM sale_invoices WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "invoice", id)
	}
	return &invoice, nil
}

func (r *repo) LockInvoice(ctx context.Context, id string) (*domain.SaleInvoice, error) {
	if r.readOnly {
		return r.GetInvoice(ctx, id)
	}
	invoice, err := scanInvoice(r.tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM sale_invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err, "invoice", id)
	}
	return &invoice, nil
}

func (r *repo) GetInvoiceBySale(ctx context.Context, saleID string) (*domain.SaleInvoice, error) {
	invoice, err := scanInvoice(r.tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM sale_invoices WHERE sale_id = $1`, saleID))
	if err != nil {
		return nil, mapErr(err, "invoice for sale", saleID)
	}
	return &invoice, nil
}

func (r *repo) UpdateInvoiceStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE sale_invoices SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return requireAffected(res, "invoice", id)
}

const paymentColumns = `id, invoice_id, method, amount_applied, tip_amount, amount_total, destination_account,
	received_by, received_at, status, idempotency_key`

func scanPayment(row scanner) (domain.SalePayment, error) {
	var (
		p           domain.SalePayment
		destination sql.NullString
		idemKey     sql.NullString
	)
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Method, &p.AmountApplied, &p.TipAmount, &p.AmountTotal, &destination,
		&p.ReceivedBy, &p.ReceivedAt, &p.Status, &idemKey)
	p.DestinationAccount = destination.String
	p.IdempotencyKey = idemKey.String
	return p, err
}

func (r *repo) CreatePayment(ctx context.Context, payment domain.SalePayment) (*domain.SalePayment, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sale_payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, payment.ID, payment.InvoiceID, payment.Method, payment.AmountApplied, payment.TipAmount, payment.AmountTotal,
		nullIfEmpty(payment.DestinationAccount), payment.ReceivedBy, payment.ReceivedAt, payment.Status, nullIfEmpty(payment.IdempotencyKey))
	if err != nil {
		return nil, mapErr(err, "payment idempotency key", payment.IdempotencyKey)
	}
	return &payment, nil
}

func (r *repo) GetPayment(ctx context.Context, id string) (*domain.SalePayment, error) {
	payment, err := scanPayment(r.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM sale_payments WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "payment", id)
	}
	return &payment, nil
}

func (r *repo) LockPayment(ctx context.Context, id string) (*domain.SalePayment, error) {
	if r.readOnly {
		return r.GetPayment(ctx, id)
	}
	payment, err := scanPayment(r.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM sale_payments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err, "payment", id)
	}
	return &payment, nil
}

func (r *repo) FindPaymentByIdempotency(ctx context.Context, key string) (*domain.SalePayment, error) {
	payment, err := scanPayment(r.tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM sale_payments WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, mapErr(err, "payment idempotency key", key)
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, invoiceID string) ([]domain.SalePayment, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM sale_payments
		WHERE invoice_id = $1
		ORDER BY received_at, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.SalePayment, 0, 4)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentState) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE sale_payments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	return requireAffected(res, "payment", id)
}

func (r *repo) CreateRefund(ctx context.Context, refund domain.SaleRefund) (*domain.SaleRefund, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	var invoiceID string
	err := r.tx.QueryRowContext(ctx, `SELECT invoice_id FROM sale_payments WHERE id = $1`, refund.PaymentID).Scan(&invoiceID)
	if err != nil {
		return nil, mapErr(err, "payment", refund.PaymentID)
	}
	if invoiceID != refund.InvoiceID {
		return nil, domain.Integrity("refund invoice does not match payment invoice")
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO sale_refunds (id, payment_id, invoice_id, amount, method, reason, processed_by, processed_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, refund.ID, refund.PaymentID, refund.InvoiceID, refund.Amount, refund.Method, refund.Reason, refund.ProcessedBy, refund.ProcessedAt, refund.Status)
	if err != nil {
		return nil, mapErr(err, "refund", refund.ID)
	}
	return &refund, nil
}

func (r *repo) ListRefunds(ctx context.Context, invoiceID string) ([]domain.SaleRefund, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, payment_id, invoice_id, amount, method, reason, processed_by, processed_at, status
		FROM sale_refunds
		WHERE invoice_id = $1
		ORDER BY processed_at, id
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]domain.SaleRefund, 0, 4)
	for rows.Next() {
		var rf domain.SaleRefund
		if err := rows.Scan(&rf.ID, &rf.PaymentID, &rf.InvoiceID, &rf.Amount, &rf.Method, &rf.Reason, &rf.ProcessedBy, &rf.ProcessedAt, &rf.Status); err != nil {
			return nil, err
		}
		refunds = append(refunds, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunds, nil
}
