package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

type requirement struct {
	productID string
	quantity  decimal.Decimal
}

// expand resolves what producing or selling qty units of product draws from
// stock. Expansion is single-level: components come from the product's
// active recipe, a recipe-less tracked product consumes itself, and an
// untracked product with no recipe consumes nothing.
func expand(ctx context.Context, repo store.Repository, product *domain.Product, qty decimal.Decimal) ([]requirement, error) {
	if product.ActiveRecipeID == "" {
		if product.TracksInventory {
			return []requirement{{productID: product.ID, quantity: domain.Quantity(qty)}}, nil
		}
		return nil, nil
	}

	recipe, err := repo.GetRecipe(ctx, product.ActiveRecipeID)
	if err != nil {
		return nil, err
	}
	reqs := make([]requirement, 0, len(recipe.Components))
	for _, component := range recipe.Components {
		componentProduct, err := repo.GetProduct(ctx, component.ComponentProductID)
		if err != nil {
			return nil, err
		}
		if !componentProduct.TracksInventory {
			continue
		}
		required := domain.Quantity(component.Quantity.Mul(qty))
		if !required.IsPositive() {
			continue
		}
		reqs = append(reqs, requirement{productID: componentProduct.ID, quantity: required})
	}
	return reqs, nil
}

// consumeRequirements runs the FIFO consumer for every requirement and sums
// the returned costs.
func (s *Service) consumeRequirements(ctx context.Context, repo store.Repository, reqs []requirement, movement domain.MovementType, source domain.SourceRef) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, req := range reqs {
		cost, _, err := s.consume(ctx, repo, req.productID, req.quantity, movement, source)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(cost)
	}
	return total, nil
}

// ProduceBatch materializes qty units of a product with an active recipe:
// components are consumed FIFO and the output enters stock at the resulting
// unit cost.
func (s *Service) ProduceBatch(ctx context.Context, req domain.ProductionRequest) (resp domain.ProductionResponse, err error) {
	defer s.trace("produce_batch", &err, "product_id", req.ProductID)
	if _, err := s.authorize(ctx, "produce_batch", domain.RoleManager); err != nil {
		return domain.ProductionResponse{}, err
	}
	if err := s.check(req); err != nil {
		return domain.ProductionResponse{}, err
	}
	qty := domain.Quantity(req.Quantity)
	if !qty.IsPositive() {
		return domain.ProductionResponse{}, domain.Validation("quantity", "must be positive")
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	batchID := xid.New("batch")
	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		product, err := repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product.ActiveRecipeID == "" {
			return domain.Validation("product_id", "product has no active recipe")
		}
		if !product.TracksInventory {
			return domain.Validation("product_id", "product does not track inventory")
		}

		reqs, err := expand(ctx, repo, product, qty)
		if err != nil {
			return err
		}
		source := domain.SourceRef{Kind: domain.SourceProduction, ID: batchID}
		total, err := s.consumeRequirements(ctx, repo, reqs, domain.MovementProductionOut, source)
		if err != nil {
			return err
		}

		unitCost := total.DivRound(qty, domain.MoneyScale)
		entry, err := repo.InsertStockEntry(ctx, domain.StockEntry{
			ID:                xid.New("stock"),
			ProductID:         product.ID,
			MovementType:      domain.MovementProductionIn,
			InitialQuantity:   qty,
			RemainingQuantity: qty,
			UnitCost:          decimal.NewNullDecimal(unitCost),
			Source:            source,
			CreatedAt:         s.clock(),
		})
		if err != nil {
			return err
		}
		resp = domain.ProductionResponse{Entry: *entry, TotalCost: total, UnitCost: unitCost}
		return nil
	})
	if err != nil {
		return domain.ProductionResponse{}, err
	}

	s.logAudit(ctx, "produce_batch", "stock_entry", resp.Entry.ID, fmt.Sprintf("product=%s,qty=%s,total_cost=%s,unit_cost=%s", req.ProductID, qty, resp.TotalCost, resp.UnitCost))
	s.logger.Info().Str("product_id", req.ProductID).Str("batch_id", batchID).Str("total_cost", resp.TotalCost.String()).Msg("production batch recorded")
	return resp, nil
}
