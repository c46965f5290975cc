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

var errInvoiceCollision = errors.New("invoice number collision")

const invoiceLockTTL = 30 * time.Second

// pricedLine is a sale line resolved against the menu, ready to insert.
type pricedLine struct {
	productID  string
	menuItemID string
	quantity   decimal.Decimal
	unitPrice  decimal.Decimal
	extras     []pricedLine
}

func (s *Service) OpenSale(ctx context.Context, req domain.OpenSaleRequest) (sale domain.Sale, err error) {
	defer s.trace("open_sale", &err, "table", req.Table)
	actor, err := s.authorize(ctx, "open_sale", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.Sale{}, err
	}
	req.Table = strings.TrimSpace(req.Table)
	req.Guest = strings.TrimSpace(req.Guest)
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, domain.Validation("items", "at least one item is required")
	}
	if req.SaleType == domain.SaleDineIn && req.Table == "" {
		return domain.Sale{}, domain.Validation("table", "dine-in sales require a table")
	}
	if err := validateItemInputs(req.Items, false); err != nil {
		return domain.Sale{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		lines, err := priceLines(ctx, repo, req.Items)
		if err != nil {
			return err
		}
		if err := precheckAvailability(ctx, repo, lines); err != nil {
			return err
		}

		now := s.clock()
		created, err := repo.CreateSale(ctx, domain.Sale{
			ID:                 xid.New("sale"),
			State:              domain.SaleOpen,
			SaleType:           req.SaleType,
			Table:              req.Table,
			GuestCount:         req.GuestCount,
			Guest:              req.Guest,
			OpenedBy:           actor.Username,
			SubtotalAmount:     decimal.Zero,
			DiscountAmount:     decimal.Zero,
			TaxAmount:          decimal.Zero,
			TotalAmount:        decimal.Zero,
			TotalCost:          decimal.Zero,
			GrossProfit:        decimal.Zero,
			GrossMarginPercent: decimal.Zero,
			PaymentStatus:      domain.PaymentUnpaid,
			OpenedAt:           now,
			Note:               req.Note,
		})
		if err != nil {
			return err
		}
		if err := s.insertLines(ctx, repo, created.ID, lines); err != nil {
			return err
		}
		if err := recomputeOpenTotals(ctx, repo, created); err != nil {
			return err
		}
		loaded, err := repo.GetSale(ctx, created.ID)
		if err != nil {
			return err
		}
		sale = *loaded
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_open", "sale", sale.ID, fmt.Sprintf("type=%s,table=%s,items=%d,subtotal=%s", sale.SaleType, sale.Table, len(sale.Items), sale.SubtotalAmount))
	return sale, nil
}

// SyncSaleItems makes the primary lines of an open sale match items. Lines
// with a known item_id keep their extras and get the new quantity, and any
// extras sent with them are ignored. Lines not mentioned are removed with
// their extras; lines without an item_id are added.
func (s *Service) SyncSaleItems(ctx context.Context, saleID string, req domain.SyncSaleItemsRequest) (sale domain.Sale, err error) {
	defer s.trace("sync_sale_items", &err, "sale_id", saleID)
	if _, err := s.authorize(ctx, "sync_sale_items", domain.RoleStaff, domain.RoleManager); err != nil {
		return domain.Sale{}, err
	}
	if err := requireID("sale_id", saleID); err != nil {
		return domain.Sale{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, domain.Validation("items", "at least one item is required")
	}
	if err := validateItemInputs(req.Items, true); err != nil {
		return domain.Sale{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if locked.State != domain.SaleOpen {
			return domain.StateInvalid("sync_sale_items", locked.State)
		}

		primaries := make(map[string]domain.SaleItem)
		for _, item := range locked.Items {
			if !item.IsExtra() {
				primaries[item.ID] = item
			}
		}

		keep := make(map[string]struct{}, len(req.Items))
		added := make([]domain.SaleItemInput, 0)
		for i, input := range req.Items {
			if input.ItemID == "" {
				added = append(added, input)
				continue
			}
			existing, ok := primaries[input.ItemID]
			if !ok {
				return domain.Validation(fmt.Sprintf("items[%d].item_id", i), "not a line of this sale")
			}
			if _, dup := keep[input.ItemID]; dup {
				return domain.Validation(fmt.Sprintf("items[%d].item_id", i), "listed twice")
			}
			keep[input.ItemID] = struct{}{}
			qty := domain.Quantity(input.Quantity)
			if !qty.Equal(existing.Quantity) {
				if err := repo.UpdateSaleItemQuantity(ctx, existing.ID, qty); err != nil {
					return err
				}
			}
		}

		for id := range primaries {
			if _, ok := keep[id]; ok {
				continue
			}
			if err := repo.DeleteSaleItem(ctx, id); err != nil {
				return err
			}
		}

		if len(added) > 0 {
			lines, err := priceLines(ctx, repo, added)
			if err != nil {
				return err
			}
			if err := precheckAvailability(ctx, repo, lines); err != nil {
				return err
			}
			if err := s.insertLines(ctx, repo, locked.ID, lines); err != nil {
				return err
			}
		}

		if err := recomputeOpenTotals(ctx, repo, locked); err != nil {
			return err
		}
		loaded, err := repo.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale = *loaded
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_sync_items", "sale", sale.ID, fmt.Sprintf("items=%d,subtotal=%s", len(sale.Items), sale.SubtotalAmount))
	return sale, nil
}

func (s *Service) AddSaleDiscount(ctx context.Context, saleID string, req domain.SaleDiscountRequest) (sale domain.Sale, err error) {
	defer s.trace("add_sale_discount", &err, "sale_id", saleID)
	actor, err := s.authorize(ctx, "add_sale_discount", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.Sale{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	if !req.Value.IsPositive() {
		return domain.Sale{}, domain.Validation("value", "must be positive")
	}
	if req.DiscountType == domain.DiscountPercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return domain.Sale{}, domain.Validation("value", "percentage may not exceed 100")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		if locked.State != domain.SaleOpen {
			return domain.StateInvalid("add_sale_discount", locked.State)
		}

		discount := domain.SaleDiscount{
			ID:           xid.New("disc"),
			SaleID:       locked.ID,
			DiscountType: req.DiscountType,
			Value:        domain.Money(req.Value),
			Reason:       req.Reason,
			AppliedBy:    actor.Username,
			CreatedAt:    s.clock(),
		}
		total := discount.AmountOn(locked.SubtotalAmount)
		for _, existing := range locked.Discounts {
			total = total.Add(existing.AmountOn(locked.SubtotalAmount))
		}
		if total.GreaterThan(locked.SubtotalAmount) {
			return domain.Exceeds("discount total", total, locked.SubtotalAmount)
		}
		if _, err := repo.InsertSaleDiscount(ctx, discount); err != nil {
			return err
		}
		if err := recomputeOpenTotals(ctx, repo, locked); err != nil {
			return err
		}
		loaded, err := repo.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale = *loaded
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_discount", "sale", sale.ID, fmt.Sprintf("type=%s,value=%s,reason=%s", req.DiscountType, req.Value, req.Reason))
	return sale, nil
}

// CloseSale consumes inventory for every line, fixes the totals, assigns the
// invoice number and optionally takes payments, all in one transaction.
func (s *Service) CloseSale(ctx context.Context, saleID string, req domain.CloseSaleRequest) (resp domain.CloseSaleResponse, err error) {
	defer s.trace("close_sale", &err, "sale_id", saleID)
	actor, err := s.authorize(ctx, "close_sale", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}
	if err := requireID("sale_id", saleID); err != nil {
		return domain.CloseSaleResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.CloseSaleResponse{}, err
	}
	if req.TaxAmount.IsNegative() {
		return domain.CloseSaleResponse{}, domain.Validation("tax_amount", "must not be negative")
	}
	if req.DiscountAmount.Valid && req.DiscountAmount.Decimal.IsNegative() {
		return domain.CloseSaleResponse{}, domain.Validation("discount_amount", "must not be negative")
	}
	for i, payment := range req.Payments {
		if err := s.validatePaymentInput(payment); err != nil {
			return domain.CloseSaleResponse{}, fieldPrefix(fmt.Sprintf("payments[%d]", i), err)
		}
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	closedAt := s.clock()
	day := closedAt.In(s.loc).Format("20060102")
	release, err := s.locker.Obtain(ctx, "invoice-seq:"+day, invoiceLockTTL)
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}
	defer release()

	for attempt := 1; attempt <= s.invoiceRetries; attempt++ {
		err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
			var txErr error
			resp, txErr = s.closeSaleTx(ctx, repo, actor, saleID, req, closedAt, day)
			return txErr
		})
		if err == nil || !errors.Is(err, errInvoiceCollision) {
			break
		}
		s.logger.Warn().Str("sale_id", saleID).Int("attempt", attempt).Msg("invoice number collision, retrying")
	}
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}

	s.logAudit(ctx, "sale_close", "sale", resp.Sale.ID, fmt.Sprintf("invoice=%s,total=%s,cost=%s,payments=%d", resp.Sale.InvoiceNumber, resp.Sale.TotalAmount, resp.Sale.TotalCost, len(resp.Payments)))
	s.logger.Info().Str("sale_id", resp.Sale.ID).Str("invoice_number", resp.Sale.InvoiceNumber).Str("total", resp.Sale.TotalAmount.String()).Msg("sale closed")
	return resp, nil
}

func (s *Service) closeSaleTx(ctx context.Context, repo store.Repository, actor domain.Actor, saleID string, req domain.CloseSaleRequest, closedAt time.Time, day string) (domain.CloseSaleResponse, error) {
	sale, err := repo.LockSale(ctx, saleID)
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}
	if sale.State != domain.SaleOpen {
		return domain.CloseSaleResponse{}, domain.StateInvalid("close_sale", sale.State)
	}
	if len(sale.Items) == 0 {
		return domain.CloseSaleResponse{}, domain.Validation("items", "a sale without items cannot be closed")
	}

	totalCost := decimal.Zero
	subtotal := decimal.Zero
	for _, item := range sale.Items {
		product, err := repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.CloseSaleResponse{}, err
		}
		reqs, err := expand(ctx, repo, product, item.Quantity)
		if err != nil {
			return domain.CloseSaleResponse{}, err
		}
		cost, err := s.consumeRequirements(ctx, repo, reqs, domain.MovementSaleOut, domain.SourceRef{Kind: domain.SourceSaleItem, ID: item.ID})
		if err != nil {
			return domain.CloseSaleResponse{}, err
		}
		if err := repo.UpdateSaleItemCost(ctx, item.ID, cost); err != nil {
			return domain.CloseSaleResponse{}, err
		}
		totalCost = totalCost.Add(cost)
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = domain.Money(subtotal)

	discount := decimal.Zero
	if req.DiscountAmount.Valid {
		discount = domain.Money(req.DiscountAmount.Decimal)
	} else {
		for _, d := range sale.Discounts {
			discount = discount.Add(d.AmountOn(subtotal))
		}
	}
	if discount.GreaterThan(subtotal) {
		return domain.CloseSaleResponse{}, domain.Exceeds("discount", discount, subtotal)
	}
	tax := domain.Money(req.TaxAmount)
	total := subtotal.Sub(discount).Add(tax)
	totalCost = domain.Money(totalCost)
	profit := total.Sub(totalCost)

	prefix := "INV-" + day + "-"
	seq, err := repo.MaxInvoiceSequence(ctx, prefix)
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}
	if seq >= 99999 {
		return domain.CloseSaleResponse{}, domain.Conflict("invoice sequence exhausted for day", day)
	}

	sale.SubtotalAmount = subtotal
	sale.DiscountAmount = discount
	sale.TaxAmount = tax
	sale.TotalAmount = total
	sale.TotalCost = totalCost
	sale.GrossProfit = profit
	sale.GrossMarginPercent = domain.MarginPercent(profit, total)
	sale.InvoiceNumber = fmt.Sprintf("%s%05d", prefix, seq+1)
	sale.State = domain.SaleClosed
	sale.ClosedBy = actor.Username
	sale.ClosedAt = &closedAt
	sale.PaymentStatus = domain.PaymentUnpaid
	if err := repo.UpdateSale(ctx, *sale); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.CloseSaleResponse{}, fmt.Errorf("%w: %w", errInvoiceCollision, err)
		}
		return domain.CloseSaleResponse{}, err
	}

	resp := domain.CloseSaleResponse{Payments: []domain.SalePayment{}}
	if len(req.Payments) > 0 {
		invoice, err := s.issueInvoice(ctx, repo, sale, actor, decimal.NullDecimal{})
		if err != nil {
			return domain.CloseSaleResponse{}, err
		}
		for _, input := range req.Payments {
			payment, duplicate, err := s.applyPayment(ctx, repo, invoice, input, actor)
			if err != nil {
				return domain.CloseSaleResponse{}, err
			}
			if duplicate {
				return domain.CloseSaleResponse{}, domain.Conflict("payment idempotency key already used", input.IdempotencyKey)
			}
			resp.Payments = append(resp.Payments, *payment)
		}
		refreshed, err := s.recomputeInvoiceStatus(ctx, repo, invoice.ID)
		if err != nil {
			return domain.CloseSaleResponse{}, err
		}
		resp.Invoice = refreshed
	}

	loaded, err := repo.GetSale(ctx, sale.ID)
	if err != nil {
		return domain.CloseSaleResponse{}, err
	}
	resp.Sale = *loaded
	return resp, nil
}

// CancelSale cancels an open sale, or a closed one whose payments have all
// been refunded. Cancellation never restores inventory.
func (s *Service) CancelSale(ctx context.Context, saleID string, req domain.CancelSaleRequest) (sale domain.Sale, err error) {
	defer s.trace("cancel_sale", &err, "sale_id", saleID)
	actor, err := s.authorize(ctx, "cancel_sale", domain.RoleStaff, domain.RoleManager)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := requireID("sale_id", saleID); err != nil {
		return domain.Sale{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Sale{}, domain.Validation("reason", "a cancel reason is required")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		locked, err := repo.LockSale(ctx, saleID)
		if err != nil {
			return err
		}
		switch locked.State {
		case domain.SaleOpen:
		case domain.SaleClosed:
			if actor.Role != domain.RoleManager && actor.Role != domain.RoleAdmin {
				return domain.PermissionReason("cancel_sale", "cancelling a closed sale requires a manager")
			}
			if err := voidInvoiceForCancel(ctx, repo, locked.ID); err != nil {
				return err
			}
		default:
			return domain.StateInvalid("cancel_sale", locked.State)
		}

		now := s.clock()
		locked.State = domain.SaleCanceled
		locked.CanceledBy = actor.Username
		locked.CanceledAt = &now
		locked.CancelReason = reason
		if err := repo.UpdateSale(ctx, *locked); err != nil {
			return err
		}
		loaded, err := repo.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale = *loaded
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", sale.ID, "reason="+reason)
	return sale, nil
}

// voidInvoiceForCancel refuses while any payment still holds money and marks
// the invoice VOID otherwise.
func voidInvoiceForCancel(ctx context.Context, repo store.Repository, saleID string) error {
	invoice, err := repo.GetInvoiceBySale(ctx, saleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	invoice, err = repo.LockInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	payments, err := repo.ListPayments(ctx, invoice.ID)
	if err != nil {
		return err
	}
	for _, payment := range payments {
		if payment.Status == domain.PaymentCompleted {
			return domain.StateConflict("cancel_sale", domain.SaleClosed, fmt.Sprintf("payment %s must be fully refunded before the sale can be cancelled", payment.ID))
		}
	}
	return repo.UpdateInvoiceStatus(ctx, invoice.ID, domain.InvoiceVoid)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (sale domain.Sale, err error) {
	if _, err := s.authorize(ctx, "get_sale"); err != nil {
		return domain.Sale{}, err
	}
	if err := requireID("sale_id", saleID); err != nil {
		return domain.Sale{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		sale = *found
		return nil
	})
	return sale, err
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (sales []domain.Sale, err error) {
	if _, err := s.authorize(ctx, "list_sales"); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		sales, err = repo.ListSales(ctx, filter)
		return err
	})
	return sales, err
}

func validateItemInputs(items []domain.SaleItemInput, allowItemID bool) error {
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !allowItemID && item.ItemID != "" {
			return domain.Validation(field+".item_id", "must be empty for a new sale")
		}
		if !domain.Quantity(item.Quantity).IsPositive() {
			return domain.Validation(field+".quantity", "must be positive")
		}
		if item.ItemID != "" {
			// extras of a kept line stay as they are
			continue
		}
		for j, extra := range item.Extras {
			if !domain.Quantity(extra.Quantity).IsPositive() {
				return domain.Validation(fmt.Sprintf("%s.extras[%d].quantity", field, j), "must be positive")
			}
		}
	}
	return nil
}

// priceLines resolves menu items and extras against the price authority.
func priceLines(ctx context.Context, repo store.Repository, inputs []domain.SaleItemInput) ([]pricedLine, error) {
	lines := make([]pricedLine, 0, len(inputs))
	for i, input := range inputs {
		menuItem, err := repo.GetMenuItem(ctx, input.MenuID)
		if err != nil {
			return nil, err
		}
		if !menuItem.Active {
			return nil, domain.Validation(fmt.Sprintf("items[%d].menu_id", i), "menu item is not available")
		}
		line := pricedLine{
			productID:  menuItem.ProductID,
			menuItemID: menuItem.ID,
			quantity:   domain.Quantity(input.Quantity),
			unitPrice:  menuItem.Price,
		}
		for j, extra := range input.Extras {
			product, err := repo.GetProduct(ctx, extra.ProductID)
			if err != nil {
				return nil, err
			}
			if !product.IsActive {
				return nil, domain.Validation(fmt.Sprintf("items[%d].extras[%d].product_id", i, j), "product is inactive")
			}
			extraLine := pricedLine{productID: product.ID, quantity: domain.Quantity(extra.Quantity), unitPrice: decimal.Zero}
			extraMenu, err := repo.FindMenuItemByProduct(ctx, product.ID)
			switch {
			case err == nil:
				extraLine.menuItemID = extraMenu.ID
				extraLine.unitPrice = extraMenu.Price
			case !errors.Is(err, store.ErrNotFound):
				return nil, err
			}
			line.extras = append(line.extras, extraLine)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// precheckAvailability compares aggregated requirements with advisory stock
// levels. It reads only; nothing is reserved.
func precheckAvailability(ctx context.Context, repo store.Repository, lines []pricedLine) error {
	needed := make(map[string]decimal.Decimal)
	order := make([]string, 0)
	add := func(reqs []requirement) {
		for _, r := range reqs {
			if _, ok := needed[r.productID]; !ok {
				order = append(order, r.productID)
				needed[r.productID] = decimal.Zero
			}
			needed[r.productID] = needed[r.productID].Add(r.quantity)
		}
	}

	for _, line := range lines {
		all := append([]pricedLine{line}, line.extras...)
		for _, l := range all {
			product, err := repo.GetProduct(ctx, l.productID)
			if err != nil {
				return err
			}
			reqs, err := expand(ctx, repo, product, l.quantity)
			if err != nil {
				return err
			}
			add(reqs)
		}
	}

	for _, productID := range order {
		available, err := repo.AvailableQuantity(ctx, productID)
		if err != nil {
			return err
		}
		if available.LessThan(needed[productID]) {
			return domain.InsufficientStock(productID, domain.Quantity(needed[productID].Sub(available)))
		}
	}
	return nil
}

func (s *Service) insertLines(ctx context.Context, repo store.Repository, saleID string, lines []pricedLine) error {
	for _, line := range lines {
		parent, err := repo.InsertSaleItem(ctx, domain.SaleItem{
			ID:           xid.New("item"),
			SaleID:       saleID,
			ProductID:    line.productID,
			MenuItemID:   line.menuItemID,
			Quantity:     line.quantity,
			UnitPrice:    line.unitPrice,
			MaterialCost: decimal.Zero,
			CreatedAt:    s.clock(),
		})
		if err != nil {
			return err
		}
		for _, extra := range line.extras {
			if _, err := repo.InsertSaleItem(ctx, domain.SaleItem{
				ID:           xid.New("item"),
				SaleID:       saleID,
				ProductID:    extra.productID,
				MenuItemID:   extra.menuItemID,
				ParentItemID: parent.ID,
				Quantity:     extra.quantity,
				UnitPrice:    extra.unitPrice,
				MaterialCost: decimal.Zero,
				CreatedAt:    s.clock(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// recomputeOpenTotals rebuilds the cached totals of an open sale from its
// stored lines and discounts.
func recomputeOpenTotals(ctx context.Context, repo store.Repository, sale *domain.Sale) error {
	items, err := repo.ListSaleItems(ctx, sale.ID)
	if err != nil {
		return err
	}
	discounts, err := repo.ListSaleDiscounts(ctx, sale.ID)
	if err != nil {
		return err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = domain.Money(subtotal)
	discount := decimal.Zero
	for _, d := range discounts {
		discount = discount.Add(d.AmountOn(subtotal))
	}
	discount = decimal.Min(discount, subtotal)

	sale.SubtotalAmount = subtotal
	sale.DiscountAmount = discount
	sale.TotalAmount = subtotal.Sub(discount).Add(sale.TaxAmount)
	sale.GrossProfit = sale.TotalAmount.Sub(sale.TotalCost)
	return repo.UpdateSale(ctx, *sale)
}

func fieldPrefix(prefix string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindValidation {
		field := prefix
		if de.Field != "" {
			field = prefix + "." + de.Field
		}
		return domain.Validation(field, de.Message)
	}
	return err
}
