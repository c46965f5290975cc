package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

const paymentLockTTL = 15 * time.Second

func (s *Service) validatePaymentInput(input domain.PaymentInput) error {
	if !input.Method.Valid() {
		return domain.Validation("method", "must be one of CASH, POS, CARD_TRANSFER")
	}
	if !input.AmountApplied.IsPositive() {
		return domain.Validation("amount_applied", "must be positive")
	}
	if input.TipAmount.IsNegative() {
		return domain.Validation("tip_amount", "must not be negative")
	}
	destination := strings.TrimSpace(input.DestinationAccount)
	if input.Method == domain.MethodCardTransfer {
		if destination == "" {
			return domain.Validation("destination_account", "card transfers require a destination account")
		}
		if err := s.validate.Var(strings.ReplaceAll(destination, " ", ""), "credit_card"); err != nil {
			return domain.Validation("destination_account", "not a valid card number")
		}
		return nil
	}
	if destination != "" {
		return domain.Validation("destination_account", "only card transfers carry a destination account")
	}
	return nil
}

func (s *Service) IssuePayment(ctx context.Context, req domain.IssuePaymentRequest) (resp domain.PaymentResponse, err error) {
	defer s.trace("issue_payment", &err, "invoice_id", req.InvoiceID)
	actor, err := s.authorize(ctx, "issue_payment", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.PaymentResponse{}, err
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := s.check(req); err != nil {
		return domain.PaymentResponse{}, err
	}
	if err := s.validatePaymentInput(req.PaymentInput); err != nil {
		return domain.PaymentResponse{}, err
	}

	if req.IdempotencyKey != "" {
		release, err := s.locker.Obtain(ctx, "payment-idem:"+req.IdempotencyKey, paymentLockTTL)
		if err != nil {
			return domain.PaymentResponse{}, err
		}
		defer release()
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		invoice, err := repo.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if _, err := repo.LockSale(ctx, invoice.SaleID); err != nil {
			return err
		}
		invoice, err = repo.LockInvoice(ctx, invoice.ID)
		if err != nil {
			return err
		}

		payment, duplicate, err := s.applyPayment(ctx, repo, invoice, req.PaymentInput, actor)
		if err != nil {
			return err
		}
		refreshed, err := s.recomputeInvoiceStatus(ctx, repo, invoice.ID)
		if err != nil {
			return err
		}
		resp = domain.PaymentResponse{Payment: *payment, Invoice: *refreshed, Duplicate: duplicate}
		return nil
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	if resp.Duplicate {
		s.logger.Info().Str("payment_id", resp.Payment.ID).Str("idempotency_key", req.IdempotencyKey).Msg("duplicate payment request replayed")
		return resp, nil
	}
	s.logAudit(ctx, "payment_issue", "payment", resp.Payment.ID, fmt.Sprintf("invoice=%s,method=%s,applied=%s,tip=%s,status=%s", resp.Invoice.ID, resp.Payment.Method, resp.Payment.AmountApplied, resp.Payment.TipAmount, resp.Invoice.Status))
	return resp, nil
}

// applyPayment records one payment against a locked invoice. When the
// idempotency key was already used for this invoice the stored payment is
// returned with duplicate set.
func (s *Service) applyPayment(ctx context.Context, repo store.Repository, invoice *domain.SaleInvoice, input domain.PaymentInput, actor domain.Actor) (*domain.SalePayment, bool, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, err := repo.FindPaymentByIdempotency(ctx, key)
		switch {
		case err == nil:
			if existing.InvoiceID != invoice.ID {
				return nil, false, domain.Conflict("idempotency key was used for another invoice", key)
			}
			return existing, true, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, err
		}
	}
	if invoice.Status == domain.InvoiceVoid {
		return nil, false, domain.StateInvalid("issue_payment", invoice.Status)
	}

	applied := domain.Money(input.AmountApplied)
	tip := domain.Money(input.TipAmount)
	payment, err := repo.CreatePayment(ctx, domain.SalePayment{
		ID:                 xid.New("pay"),
		InvoiceID:          invoice.ID,
		Method:             input.Method,
		AmountApplied:      applied,
		TipAmount:          tip,
		AmountTotal:        applied.Add(tip),
		DestinationAccount: strings.ReplaceAll(strings.TrimSpace(input.DestinationAccount), " ", ""),
		ReceivedBy:         actor.Username,
		ReceivedAt:         s.clock(),
		Status:             domain.PaymentCompleted,
		IdempotencyKey:     key,
	})
	if err != nil {
		return nil, false, err
	}
	return payment, false, nil
}

// CreateRefund returns part or all of a payment's applied amount. Tips are
// never refundable. Selected recipe-less items can be put back into stock at
// the cost they were sold at.
func (s *Service) CreateRefund(ctx context.Context, req domain.CreateRefundRequest) (resp domain.RefundResponse, err error) {
	defer s.trace("create_refund", &err, "payment_id", req.PaymentID)
	actor, err := s.authorize(ctx, "create_refund", domain.RoleManager)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return domain.RefundResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.RefundResponse{}, domain.Validation("amount", "must be positive")
	}
	for i, item := range req.RestockItems {
		if !domain.Quantity(item.Quantity).IsPositive() {
			return domain.RefundResponse{}, domain.Validation(fmt.Sprintf("restock_items[%d].quantity", i), "must be positive")
		}
	}
	amount := domain.Money(req.Amount)

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		payment, err := repo.GetPayment(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		invoice, err := repo.GetInvoice(ctx, payment.InvoiceID)
		if err != nil {
			return err
		}
		sale, err := repo.LockSale(ctx, invoice.SaleID)
		if err != nil {
			return err
		}
		if _, err := repo.LockInvoice(ctx, invoice.ID); err != nil {
			return err
		}
		payment, err = repo.LockPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentCompleted {
			return domain.StateInvalid("create_refund", payment.Status)
		}

		refunds, err := repo.ListRefunds(ctx, invoice.ID)
		if err != nil {
			return err
		}
		refunded := decimal.Zero
		for _, r := range refunds {
			if r.PaymentID == payment.ID && r.Status == domain.RefundCompleted {
				refunded = refunded.Add(r.Amount)
			}
		}
		refundable := payment.AmountApplied.Sub(refunded)
		if amount.GreaterThan(refundable) {
			return domain.Exceeds("refund", amount, refundable)
		}

		method := req.Method
		if method == "" {
			method = payment.Method
		}
		refund, err := repo.CreateRefund(ctx, domain.SaleRefund{
			ID:          xid.New("refund"),
			PaymentID:   payment.ID,
			InvoiceID:   invoice.ID,
			Amount:      amount,
			Method:      method,
			Reason:      req.Reason,
			ProcessedBy: actor.Username,
			ProcessedAt: s.clock(),
			Status:      domain.RefundCompleted,
		})
		if err != nil {
			return err
		}

		if refunded.Add(amount).Equal(payment.AmountApplied) {
			if err := repo.UpdatePaymentStatus(ctx, payment.ID, domain.PaymentVoid); err != nil {
				return err
			}
			payment.Status = domain.PaymentVoid
		}

		restocked, err := s.restockItems(ctx, repo, sale, refund.ID, req.RestockItems)
		if err != nil {
			return err
		}
		refreshed, err := s.recomputeInvoiceStatus(ctx, repo, invoice.ID)
		if err != nil {
			return err
		}
		resp = domain.RefundResponse{Refund: *refund, Payment: *payment, Invoice: *refreshed, Restocked: restocked}
		return nil
	})
	if err != nil {
		return domain.RefundResponse{}, err
	}

	s.logAudit(ctx, "refund_create", "refund", resp.Refund.ID, fmt.Sprintf("payment=%s,amount=%s,method=%s,restocked=%d,reason=%s", resp.Payment.ID, resp.Refund.Amount, resp.Refund.Method, len(resp.Restocked), resp.Refund.Reason))
	return resp, nil
}

// restockItems returns sold units of recipe-less tracked products to stock
// as RETURN_IN lots priced at their recorded material cost. Repeated lines in
// one request are merged, and no line is restocked beyond what it sold across
// all of the sale's refunds.
func (s *Service) restockItems(ctx context.Context, repo store.Repository, sale *domain.Sale, refundID string, inputs []domain.RestockItemInput) ([]domain.StockEntry, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	items := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		items[item.ID] = item
	}

	order := make([]string, 0, len(inputs))
	requested := make(map[string]decimal.Decimal, len(inputs))
	for i, input := range inputs {
		if _, ok := items[input.SaleItemID]; !ok {
			return nil, domain.Validation(fmt.Sprintf("restock_items[%d].sale_item_id", i), "not a line of the refunded sale")
		}
		if _, seen := requested[input.SaleItemID]; !seen {
			order = append(order, input.SaleItemID)
		}
		requested[input.SaleItemID] = requested[input.SaleItemID].Add(domain.Quantity(input.Quantity))
	}

	entries := make([]domain.StockEntry, 0, len(order))
	for _, itemID := range order {
		item := items[itemID]
		qty := requested[itemID]
		remaining := item.Quantity.Sub(item.RestockedQuantity)
		if qty.GreaterThan(remaining) {
			return nil, domain.Exceeds("restock quantity", qty, remaining)
		}
		product, err := repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.TracksInventory || product.ActiveRecipeID != "" {
			return nil, domain.Validation("restock_items.sale_item_id", "only stocked products without a recipe can be restocked")
		}

		unitCost := decimal.Zero
		if item.Quantity.IsPositive() {
			unitCost = item.MaterialCost.DivRound(item.Quantity, domain.MoneyScale)
		}
		entry, err := repo.InsertStockEntry(ctx, domain.StockEntry{
			ID:                xid.New("stock"),
			ProductID:         product.ID,
			MovementType:      domain.MovementReturnIn,
			InitialQuantity:   qty,
			RemainingQuantity: qty,
			UnitCost:          decimal.NewNullDecimal(unitCost),
			Source:            domain.SourceRef{Kind: domain.SourceRefund, ID: refundID},
			CreatedAt:         s.clock(),
		})
		if err != nil {
			return nil, err
		}
		if err := repo.UpdateSaleItemRestocked(ctx, item.ID, item.RestockedQuantity.Add(qty)); err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) (payments []domain.SalePayment, err error) {
	if _, err := s.authorize(ctx, "list_payments"); err != nil {
		return nil, err
	}
	if err := requireID("invoice_id", invoiceID); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetInvoice(ctx, invoiceID); err != nil {
			return err
		}
		payments, err = repo.ListPayments(ctx, invoiceID)
		return err
	})
	return payments, err
}
