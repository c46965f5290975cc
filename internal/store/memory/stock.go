package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
)

func (r *repo) InsertStockEntry(_ context.Context, entry domain.StockEntry) (*domain.StockEntry, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.products[entry.ProductID]; !ok {
		return nil, notFound("product", entry.ProductID)
	}
	if _, exists := r.data.stock[entry.ID]; exists {
		return nil, conflict("stock entry", entry.ID)
	}
	if entry.MovementType.Inbound() {
		if !entry.InitialQuantity.IsPositive() || entry.RemainingQuantity.IsNegative() || entry.RemainingQuantity.GreaterThan(entry.InitialQuantity) {
			return nil, domain.Integrity(fmt.Sprintf("inbound stock entry %s has invalid quantities", entry.ID))
		}
	} else {
		if !entry.InitialQuantity.IsNegative() || !entry.RemainingQuantity.IsZero() {
			return nil, domain.Integrity(fmt.Sprintf("outbound stock entry %s has invalid quantities", entry.ID))
		}
	}
	entry.IsDepleted = !entry.RemainingQuantity.IsPositive()

	r.data.stock[entry.ID] = entry
	r.data.stockByProduct[entry.ProductID] = append(r.data.stockByProduct[entry.ProductID], entry.ID)
	return &entry, nil
}

func (r *repo) LockOpenLots(_ context.Context, productID string) ([]domain.StockEntry, error) {
	lots := make([]domain.StockEntry, 0)
	for _, id := range r.data.stockByProduct[productID] {
		entry := r.data.stock[id]
		if !entry.MovementType.Inbound() || entry.IsDepleted {
			continue
		}
		lots = append(lots, entry)
	}
	slices.SortFunc(lots, func(a, b domain.StockEntry) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return lots, nil
}

func (r *repo) UpdateLotRemaining(_ context.Context, entryID string, remaining decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	entry, ok := r.data.stock[entryID]
	if !ok {
		return notFound("stock entry", entryID)
	}
	if !entry.MovementType.Inbound() {
		return fmt.Errorf("stock entry %s is not a lot: %w", entryID, store.ErrConflict)
	}
	if remaining.IsNegative() || remaining.GreaterThan(entry.InitialQuantity) {
		return domain.Integrity(fmt.Sprintf("remaining quantity %s out of range for lot %s", remaining, entryID))
	}
	entry.RemainingQuantity = remaining
	entry.IsDepleted = !remaining.IsPositive()
	r.data.stock[entryID] = entry
	return nil
}

func (r *repo) AvailableQuantity(_ context.Context, productID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range r.data.stockByProduct[productID] {
		entry := r.data.stock[id]
		if entry.MovementType.Inbound() && !entry.IsDepleted {
			total = total.Add(entry.RemainingQuantity)
		}
	}
	return total, nil
}

func (r *repo) ListStockEntries(_ context.Context, productID string, limit int) ([]domain.StockEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries := make([]domain.StockEntry, 0)
	if productID != "" {
		for _, id := range r.data.stockByProduct[productID] {
			entries = append(entries, r.data.stock[id])
		}
	} else {
		for _, entry := range r.data.stock {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		return compareCreated(b.CreatedAt, b.ID, a.CreatedAt, a.ID)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
