package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

const stockColumns = `id, product_id, movement_type, initial_quantity, remaining_quantity, unit_cost, source_kind, source_id, created_at, is_depleted`

func scanStockEntry(row scanner) (domain.StockEntry, error) {
	var e domain.StockEntry
	err := row.Scan(&e.ID, &e.ProductID, &e.MovementType, &e.InitialQuantity, &e.RemainingQuantity, &e.UnitCost,
		&e.Source.Kind, &e.Source.ID, &e.CreatedAt, &e.IsDepleted)
	return e, err
}

func (r *repo) InsertStockEntry(ctx context.Context, entry domain.StockEntry) (*domain.StockEntry, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if entry.MovementType.Inbound() {
		if !entry.InitialQuantity.IsPositive() || entry.RemainingQuantity.IsNegative() || entry.RemainingQuantity.GreaterThan(entry.InitialQuantity) {
			return nil, domain.Integrity(fmt.Sprintf("inbound stock entry %s has invalid quantities", entry.ID))
		}
	} else if !entry.InitialQuantity.IsNegative() || !entry.RemainingQuantity.IsZero() {
		return nil, domain.Integrity(fmt.Sprintf("outbound stock entry %s has invalid quantities", entry.ID))
	}
	entry.IsDepleted = !entry.RemainingQuantity.IsPositive()

	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO stock_entries (`+stockColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductID, entry.MovementType, entry.InitialQuantity, entry.RemainingQuantity, nullDecimal(entry.UnitCost),
		entry.Source.Kind, entry.Source.ID, entry.CreatedAt, entry.IsDepleted)
	if err != nil {
		return nil, mapErr(err, "stock entry", entry.ID)
	}
	return &entry, nil
}

// LockOpenLots locks every non-depleted inbound lot of a product, oldest
// first. Concurrent drawers queue on these row locks.
func (r *repo) LockOpenLots(ctx context.Context, productID string) ([]domain.StockEntry, error) {
	lock := "FOR UPDATE"
	if r.readOnly {
		lock = ""
	}
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_entries
		WHERE product_id = $1
			AND movement_type IN ('PURCHASE_IN', 'PRODUCTION_IN', 'RETURN_IN', 'ADJUSTMENT_IN')
			AND NOT is_depleted
		ORDER BY created_at, id
		`+lock, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.StockEntry, 0, 8)
	for rows.Next() {
		lot, err := scanStockEntry(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *repo) UpdateLotRemaining(ctx context.Context, entryID string, remaining decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	var initial decimal.Decimal
	var movement domain.MovementType
	err := r.tx.QueryRowContext(ctx, `SELECT movement_type, initial_quantity FROM stock_entries WHERE id = $1`, entryID).Scan(&movement, &initial)
	if err != nil {
		return mapErr(err, "stock entry", entryID)
	}
	if !movement.Inbound() {
		return conflict("stock entry is not a lot:", entryID)
	}
	if remaining.IsNegative() || remaining.GreaterThan(initial) {
		return domain.Integrity(fmt.Sprintf("remaining quantity %s out of range for lot %s", remaining, entryID))
	}

	_, err = r.tx.ExecContext(ctx, `
		UPDATE stock_entries
		SET remaining_quantity = $2, is_depleted = $3
		WHERE id = $1
	`, entryID, remaining, !remaining.IsPositive())
	return err
}

func (r *repo) AvailableQuantity(ctx context.Context, productID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(remaining_quantity), 0)
		FROM stock_entries
		WHERE product_id = $1
			AND movement_type IN ('PURCHASE_IN', 'PRODUCTION_IN', 'RETURN_IN', 'ADJUSTMENT_IN')
			AND NOT is_depleted
	`, productID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *repo) ListStockEntries(ctx context.Context, productID string, limit int) ([]domain.StockEntry, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+stockColumns+`
		FROM stock_entries
		WHERE $1 = '' OR product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 32)
	for rows.Next() {
		entry, err := scanStockEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
