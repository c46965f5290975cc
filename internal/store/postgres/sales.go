package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

const saleColumns = `id, state, sale_type, table_label, guest_count, guest, opened_by, closed_by, canceled_by,
	subtotal_amount, discount_amount, tax_amount, total_amount, total_cost, gross_profit, gross_margin_percent,
	payment_status, opened_at, closed_at, canceled_at, cancel_reason, note, invoice_number`

func scanSale(row scanner) (domain.Sale, error) {
	var (
		s             domain.Sale
		closedAt      sql.NullTime
		canceledAt    sql.NullTime
		invoiceNumber sql.NullString
	)
	err := row.Scan(&s.ID, &s.State, &s.SaleType, &s.Table, &s.GuestCount, &s.Guest, &s.OpenedBy, &s.ClosedBy, &s.CanceledBy,
		&s.SubtotalAmount, &s.DiscountAmount, &s.TaxAmount, &s.TotalAmount, &s.TotalCost, &s.GrossProfit, &s.GrossMarginPercent,
		&s.PaymentStatus, &s.OpenedAt, &closedAt, &canceledAt, &s.CancelReason, &s.Note, &invoiceNumber)
	s.ClosedAt = timePtr(closedAt)
	s.CanceledAt = timePtr(canceledAt)
	s.InvoiceNumber = invoiceNumber.String
	return s, err
}

func (r *repo) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, sale.ID, sale.State, sale.SaleType, sale.Table, sale.GuestCount, sale.Guest, sale.OpenedBy, sale.ClosedBy, sale.CanceledBy,
		sale.SubtotalAmount, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount, sale.TotalCost, sale.GrossProfit, sale.GrossMarginPercent,
		sale.PaymentStatus, sale.OpenedAt, nullTime(sale.ClosedAt), nullTime(sale.CanceledAt), sale.CancelReason, sale.Note, nullIfEmpty(sale.InvoiceNumber))
	if err != nil {
		return nil, mapErr(err, "sale", sale.ID)
	}
	sale.Items = nil
	sale.Discounts = nil
	return &sale, nil
}

func (r *repo) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return r.loadSale(ctx, id, "")
}

func (r *repo) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	if r.readOnly {
		return r.loadSale(ctx, id, "")
	}
	return r.loadSale(ctx, id, "FOR UPDATE")
}

func (r *repo) loadSale(ctx context.Context, id string, lock string) (*domain.Sale, error) {
	sale, err := scanSale(r.tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 `+lock, id))
	if err != nil {
		return nil, mapErr(err, "sale", id)
	}
	if sale.Items, err = r.ListSaleItems(ctx, id); err != nil {
		return nil, err
	}
	if sale.Discounts, err = r.ListSaleDiscounts(ctx, id); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *repo) UpdateSale(ctx context.Context, sale domain.Sale) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE sales
		SET state = $2, sale_type = $3, table_label = $4, guest_count = $5, guest = $6,
			closed_by = $7, canceled_by = $8,
			subtotal_amount = $9, discount_amount = $10, tax_amount = $11, total_amount = $12,
			total_cost = $13, gross_profit = $14, gross_margin_percent = $15, payment_status = $16,
			closed_at = $17, canceled_at = $18, cancel_reason = $19, note = $20, invoice_number = $21
		WHERE id = $1
	`, sale.ID, sale.State, sale.SaleType, sale.Table, sale.GuestCount, sale.Guest,
		sale.ClosedBy, sale.CanceledBy,
		sale.SubtotalAmount, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount,
		sale.TotalCost, sale.GrossProfit, sale.GrossMarginPercent, sale.PaymentStatus,
		nullTime(sale.ClosedAt), nullTime(sale.CanceledAt), sale.CancelReason, sale.Note, nullIfEmpty(sale.InvoiceNumber))
	if err != nil {
		return mapErr(err, "invoice number", sale.InvoiceNumber)
	}
	return requireAffected(res, "sale", sale.ID)
}

func (r *repo) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR state = $1)
			AND ($2::timestamptz IS NULL OR opened_at >= $2)
			AND ($3::timestamptz IS NULL OR opened_at < $3)
		ORDER BY opened_at DESC, id DESC
		LIMIT $4
	`, string(filter.State), from, to, limitOrDefault(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// MaxInvoiceSequence returns the highest numeric suffix among invoice numbers
// starting with prefix, or zero.
func (r *repo) MaxInvoiceSequence(ctx context.Context, prefix string) (int, error) {
	var highest int
	err := r.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(substring(invoice_number FROM char_length($1) + 1)::integer), 0)
		FROM sales
		WHERE starts_with(invoice_number, $1)
			AND substring(invoice_number FROM char_length($1) + 1) ~ '^[0-9]+$'
	`, prefix).Scan(&highest)
	if err != nil {
		return 0, err
	}
	return highest, nil
}

const saleItemColumns = `id, sale_id, product_id, menu_item_id, parent_item_id, quantity, unit_price, material_cost, restocked_quantity, created_at`

func scanSaleItem(row scanner) (domain.SaleItem, error) {
	var (
		item       domain.SaleItem
		menuItemID sql.NullString
		parentID   sql.NullString
	)
	err := row.Scan(&item.ID, &item.SaleID, &item.ProductID, &menuItemID, &parentID, &item.Quantity, &item.UnitPrice, &item.MaterialCost, &item.RestockedQuantity, &item.CreatedAt)
	item.MenuItemID = menuItemID.String
	item.ParentItemID = parentID.String
	return item, err
}

func (r *repo) InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if item.ParentItemID != "" {
		var parentSale string
		err := r.tx.QueryRowContext(ctx, `SELECT sale_id FROM sale_items WHERE id = $1`, item.ParentItemID).Scan(&parentSale)
		if err != nil {
			return nil, mapErr(err, "sale item", item.ParentItemID)
		}
		if parentSale != item.SaleID {
			return nil, domain.Integrity(fmt.Sprintf("extra %s and parent %s belong to different sales", item.ID, item.ParentItemID))
		}
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sale_items (`+saleItemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, item.ID, item.SaleID, item.ProductID, nullIfEmpty(item.MenuItemID), nullIfEmpty(item.ParentItemID),
		item.Quantity, item.UnitPrice, item.MaterialCost, item.RestockedQuantity, item.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "sale item", item.ID)
	}
	return &item, nil
}

func (r *repo) UpdateSaleItemQuantity(ctx context.Context, id string, quantity decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE sale_items SET quantity = $2 WHERE id = $1`, id, quantity)
	if err != nil {
		return err
	}
	return requireAffected(res, "sale item", id)
}

func (r *repo) UpdateSaleItemCost(ctx context.Context, id string, materialCost decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE sale_items SET material_cost = $2 WHERE id = $1`, id, materialCost)
	if err != nil {
		return err
	}
	return requireAffected(res, "sale item", id)
}

func (r *repo) UpdateSaleItemRestocked(ctx context.Context, id string, restocked decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `UPDATE sale_items SET restocked_quantity = $2 WHERE id = $1`, id, restocked)
	if err != nil {
		return err
	}
	return requireAffected(res, "sale item", id)
}

// DeleteSaleItem removes a line; extras attached to it go with it through
// the parent_item_id cascade.
func (r *repo) DeleteSaleItem(ctx context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	res, err := r.tx.ExecContext(ctx, `DELETE FROM sale_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "sale item", id)
}

func (r *repo) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+saleItemColumns+`
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		item, err := scanSaleItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertSaleDiscount(ctx context.Context, discount domain.SaleDiscount) (*domain.SaleDiscount, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO sale_discounts (id, sale_id, discount_type, value, reason, applied_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, discount.ID, discount.SaleID, discount.DiscountType, discount.Value, discount.Reason, discount.AppliedBy, discount.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "sale discount", discount.ID)
	}
	return &discount, nil
}

func (r *repo) ListSaleDiscounts(ctx context.Context, saleID string) ([]domain.SaleDiscount, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, sale_id, discount_type, value, reason, applied_by, created_at
		FROM sale_discounts
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	discounts := make([]domain.SaleDiscount, 0, 4)
	for rows.Next() {
		var d domain.SaleDiscount
		if err := rows.Scan(&d.ID, &d.SaleID, &d.DiscountType, &d.Value, &d.Reason, &d.AppliedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return discounts, nil
}
