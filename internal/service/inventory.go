package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

// lotDraw is one lot's share of a FIFO consumption.
type lotDraw struct {
	lotID     string
	take      decimal.Decimal
	remaining decimal.Decimal
	cost      decimal.Decimal
}

// planDraw walks lots in the given order, taking from each until qty is
// covered. lots must already be sorted by (created_at, id).
func planDraw(productID string, lots []domain.StockEntry, qty decimal.Decimal) ([]lotDraw, decimal.Decimal, error) {
	need := qty
	cost := decimal.Zero
	draws := make([]lotDraw, 0, len(lots))
	for _, lot := range lots {
		if !need.IsPositive() {
			break
		}
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		if !lot.UnitCost.Valid {
			return nil, decimal.Zero, domain.Integrity(fmt.Sprintf("lot %s of product %s has no unit cost", lot.ID, productID))
		}
		take := decimal.Min(lot.RemainingQuantity, need)
		lineCost := take.Mul(lot.UnitCost.Decimal)
		draws = append(draws, lotDraw{
			lotID:     lot.ID,
			take:      take,
			remaining: lot.RemainingQuantity.Sub(take),
			cost:      lineCost,
		})
		cost = cost.Add(lineCost)
		need = need.Sub(take)
	}
	if need.IsPositive() {
		return nil, decimal.Zero, domain.InsufficientStock(productID, domain.Quantity(need))
	}
	return draws, domain.Money(cost), nil
}

// consume draws qty of productID from its open lots in FIFO order inside the
// caller's transaction and records the matching outbound movement.
func (s *Service) consume(ctx context.Context, repo store.Repository, productID string, qty decimal.Decimal, movement domain.MovementType, source domain.SourceRef) (decimal.Decimal, *domain.StockEntry, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, nil, err
	}
	if !qty.IsPositive() {
		return decimal.Zero, nil, domain.Validation("quantity", "must be positive")
	}
	if movement.Inbound() {
		return decimal.Zero, nil, domain.Validation("movement_type", "consumption needs an outbound movement")
	}

	lots, err := repo.LockOpenLots(ctx, productID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	draws, cost, err := planDraw(productID, lots, qty)
	if err != nil {
		return decimal.Zero, nil, err
	}
	for _, draw := range draws {
		if err := repo.UpdateLotRemaining(ctx, draw.lotID, draw.remaining); err != nil {
			return decimal.Zero, nil, err
		}
	}

	out, err := repo.InsertStockEntry(ctx, domain.StockEntry{
		ID:                xid.New("stock"),
		ProductID:         productID,
		MovementType:      movement,
		InitialQuantity:   qty.Neg(),
		RemainingQuantity: decimal.Zero,
		UnitCost:          decimal.NewNullDecimal(cost.DivRound(qty, domain.MoneyScale)),
		Source:            source,
		CreatedAt:         s.clock(),
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return cost, out, nil
}

func (s *Service) AddPurchase(ctx context.Context, req domain.StockInRequest) (domain.StockEntry, error) {
	return s.stockIn(ctx, "add_purchase", domain.MovementPurchaseIn, domain.SourcePurchase, req)
}

func (s *Service) AddAdjustment(ctx context.Context, req domain.StockInRequest) (domain.StockEntry, error) {
	return s.stockIn(ctx, "add_adjustment", domain.MovementAdjustmentIn, domain.SourceAdjustment, req)
}

func (s *Service) stockIn(ctx context.Context, op string, movement domain.MovementType, kind domain.SourceKind, req domain.StockInRequest) (entry domain.StockEntry, err error) {
	defer s.trace(op, &err, "product_id", req.ProductID)
	if _, err := s.authorize(ctx, op, domain.RoleManager); err != nil {
		return domain.StockEntry{}, err
	}
	if err := s.check(req); err != nil {
		return domain.StockEntry{}, err
	}
	qty := domain.Quantity(req.Quantity)
	if !qty.IsPositive() {
		return domain.StockEntry{}, domain.Validation("quantity", "must be positive")
	}
	if req.UnitCost.IsNegative() {
		return domain.StockEntry{}, domain.Validation("unit_cost", "must not be negative")
	}
	unitCost := domain.Money(req.UnitCost)
	createdAt := s.clock()
	if req.ReceivedAt != nil && !req.ReceivedAt.IsZero() {
		createdAt = req.ReceivedAt.UTC()
	}
	sourceID := req.SourceID
	if sourceID == "" {
		sourceID = xid.New(string(kind))
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		product, err := repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.TracksInventory {
			return domain.Validation("product_id", "product does not track inventory")
		}
		created, err := repo.InsertStockEntry(ctx, domain.StockEntry{
			ID:                xid.New("stock"),
			ProductID:         product.ID,
			MovementType:      movement,
			InitialQuantity:   qty,
			RemainingQuantity: qty,
			UnitCost:          decimal.NewNullDecimal(unitCost),
			Source:            domain.SourceRef{Kind: kind, ID: sourceID},
			CreatedAt:         createdAt,
		})
		if err != nil {
			return err
		}
		entry = *created

		if movement == domain.MovementPurchaseIn {
			product.LastPurchasedPrice = decimal.NewNullDecimal(unitCost)
			product.UpdatedAt = s.clock()
			if _, err := repo.UpdateProduct(ctx, *product); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.StockEntry{}, err
	}

	s.logAudit(ctx, op, "stock_entry", entry.ID, fmt.Sprintf("product=%s,qty=%s,unit_cost=%s", entry.ProductID, qty, unitCost))
	return entry, nil
}

// RecordWaste writes off stock through the FIFO consumer so the loss is
// priced at acquisition cost.
func (s *Service) RecordWaste(ctx context.Context, req domain.WasteRequest) (resp domain.ConsumeResponse, err error) {
	defer s.trace("record_waste", &err, "product_id", req.ProductID)
	if _, err := s.authorize(ctx, "record_waste", domain.RoleManager); err != nil {
		return domain.ConsumeResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.ConsumeResponse{}, err
	}
	qty := domain.Quantity(req.Quantity)
	if !qty.IsPositive() {
		return domain.ConsumeResponse{}, domain.Validation("quantity", "must be positive")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetProduct(ctx, req.ProductID); err != nil {
			return err
		}
		cost, out, err := s.consume(ctx, repo, req.ProductID, qty, domain.MovementWasteOut, domain.SourceRef{Kind: domain.SourceWaste, ID: xid.New("waste")})
		if err != nil {
			return err
		}
		resp = domain.ConsumeResponse{Entry: *out, TotalCost: cost}
		return nil
	})
	if err != nil {
		return domain.ConsumeResponse{}, err
	}

	s.logAudit(ctx, "record_waste", "stock_entry", resp.Entry.ID, fmt.Sprintf("product=%s,qty=%s,cost=%s,reason=%s", req.ProductID, qty, resp.TotalCost, req.Reason))
	return resp, nil
}

// AvailableQuantity is advisory; only a FIFO consume is authoritative.
func (s *Service) AvailableQuantity(ctx context.Context, productID string) (level domain.StockLevel, err error) {
	if _, err := s.authorize(ctx, "available_quantity"); err != nil {
		return domain.StockLevel{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		if _, err := repo.GetProduct(ctx, productID); err != nil {
			return err
		}
		qty, err := repo.AvailableQuantity(ctx, productID)
		if err != nil {
			return err
		}
		level = domain.StockLevel{ProductID: productID, Available: qty}
		return nil
	})
	return level, err
}

func (s *Service) ListStockEntries(ctx context.Context, productID string, limit int) (entries []domain.StockEntry, err error) {
	if _, err := s.authorize(ctx, "list_stock_entries"); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		entries, err = repo.ListStockEntries(ctx, productID, limit)
		return err
	})
	return entries, err
}
