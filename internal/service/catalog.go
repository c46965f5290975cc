package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) (products []domain.Product, err error) {
	if _, err := s.authorize(ctx, "list_products"); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		products, err = repo.ListProducts(ctx, includeInactive)
		return err
	})
	return products, err
}

func (s *Service) GetProduct(ctx context.Context, id string) (product domain.Product, err error) {
	if _, err := s.authorize(ctx, "get_product"); err != nil {
		return domain.Product{}, err
	}
	if err := requireID("product_id", id); err != nil {
		return domain.Product{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product = *found
		return nil
	})
	return product, err
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (product domain.Product, err error) {
	defer s.trace("create_product", &err, "name", req.Name)
	if _, err := s.authorize(ctx, "create_product", domain.RoleManager); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	now := s.clock()
	product = domain.Product{
		ID:              xid.New("prod"),
		Name:            req.Name,
		Type:            req.Type,
		IsCountable:     req.IsCountable,
		TracksInventory: req.TracksInventory,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		created, err := repo.CreateProduct(ctx, product)
		if err != nil {
			return err
		}
		product = *created
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("name=%s,type=%s,tracked=%t", product.Name, product.Type, product.TracksInventory))
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (product domain.Product, err error) {
	defer s.trace("update_product", &err, "product_id", id)
	if _, err := s.authorize(ctx, "update_product", domain.RoleManager); err != nil {
		return domain.Product{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		updated := *existing
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.Validation("name", "must not be empty")
			}
			updated.Name = name
		}
		if req.Type != nil {
			updated.Type = *req.Type
		}
		if req.IsCountable != nil {
			updated.IsCountable = *req.IsCountable
		}
		if req.TracksInventory != nil {
			updated.TracksInventory = *req.TracksInventory
		}
		updated.UpdatedAt = s.clock()

		saved, err := repo.UpdateProduct(ctx, updated)
		if err != nil {
			return err
		}
		product = *saved
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", product.ID, fmt.Sprintf("name=%s,tracked=%t", product.Name, product.TracksInventory))
	return product, nil
}

// DeactivateProduct hides a product from catalog listings. Ledger rows that
// reference it stay untouched.
func (s *Service) DeactivateProduct(ctx context.Context, id string) (product domain.Product, err error) {
	defer s.trace("deactivate_product", &err, "product_id", id)
	if _, err := s.authorize(ctx, "deactivate_product", domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		existing.IsActive = false
		existing.UpdatedAt = s.clock()
		saved, err := repo.UpdateProduct(ctx, *existing)
		if err != nil {
			return err
		}
		product = *saved
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_deactivate", "product", product.ID, product.Name)
	return product, nil
}

func (s *Service) CreateRecipe(ctx context.Context, req domain.RecipeCreateRequest) (recipe domain.Recipe, err error) {
	defer s.trace("create_recipe", &err, "product_id", req.ProducedProductID)
	if _, err := s.authorize(ctx, "create_recipe", domain.RoleManager); err != nil {
		return domain.Recipe{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Recipe{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		produced, err := repo.GetProduct(ctx, req.ProducedProductID)
		if err != nil {
			return err
		}

		recipeID := xid.New("recipe")
		components, err := buildComponents(recipeID, produced, req.Components)
		if err != nil {
			return err
		}

		created, err := repo.CreateRecipe(ctx, domain.Recipe{
			ID:                recipeID,
			Name:              req.Name,
			ProducedProductID: produced.ID,
			Instruction:       strings.TrimSpace(req.Instruction),
			Components:        components,
			CreatedAt:         s.clock(),
		})
		if err != nil {
			return err
		}
		recipe = *created

		if req.Activate {
			produced.ActiveRecipeID = recipe.ID
			produced.UpdatedAt = s.clock()
			if _, err := repo.UpdateProduct(ctx, *produced); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Recipe{}, err
	}

	s.logAudit(ctx, "recipe_create", "recipe", recipe.ID, fmt.Sprintf("product=%s,components=%d,active=%t", recipe.ProducedProductID, len(recipe.Components), req.Activate))
	return recipe, nil
}

// buildComponents validates recipe components and, for a non-countable
// output, scales them so they sum to exactly one unit.
func buildComponents(recipeID string, produced *domain.Product, inputs []domain.RecipeComponentInput) ([]domain.RecipeComponent, error) {
	if len(inputs) == 0 {
		return nil, domain.Validation("components", "at least one component is required")
	}

	seen := make(map[string]struct{}, len(inputs))
	components := make([]domain.RecipeComponent, 0, len(inputs))
	sum := decimal.Zero
	for i, input := range inputs {
		field := fmt.Sprintf("components[%d]", i)
		if input.ProductID == produced.ID {
			return nil, domain.Validation(field, "a product may not be a component of its own recipe")
		}
		if _, dup := seen[input.ProductID]; dup {
			return nil, domain.Validation(field, "component listed twice")
		}
		seen[input.ProductID] = struct{}{}
		if !input.Quantity.IsPositive() {
			return nil, domain.Validation(field+".quantity", "must be positive")
		}
		sum = sum.Add(input.Quantity)
		components = append(components, domain.RecipeComponent{
			RecipeID:           recipeID,
			ComponentProductID: input.ProductID,
			Quantity:           input.Quantity.Round(domain.RecipeScale),
		})
	}

	if produced.IsCountable {
		return components, nil
	}

	normalized := decimal.Zero
	for i := range components {
		share := inputs[i].Quantity.DivRound(sum, domain.RecipeScale)
		components[i].Quantity = share
		normalized = normalized.Add(share)
	}
	last := len(components) - 1
	components[last].Quantity = components[last].Quantity.Add(decimal.NewFromInt(1).Sub(normalized))
	if !components[last].Quantity.IsPositive() {
		return nil, domain.Validation("components", "component ratios collapse to zero after normalization")
	}

	total := decimal.Zero
	for _, c := range components {
		total = total.Add(c.Quantity)
	}
	if total.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(domain.RecipeTolerance) {
		return nil, domain.Integrity(fmt.Sprintf("recipe components sum to %s, want 1", total))
	}
	return components, nil
}

func (s *Service) SetActiveRecipe(ctx context.Context, productID string, recipeID string) (product domain.Product, err error) {
	defer s.trace("set_active_recipe", &err, "product_id", productID)
	if _, err := s.authorize(ctx, "set_active_recipe", domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if recipeID != "" {
			recipe, err := repo.GetRecipe(ctx, recipeID)
			if err != nil {
				return err
			}
			if recipe.ProducedProductID != existing.ID {
				return domain.Validation("recipe_id", "recipe produces a different product")
			}
		}
		existing.ActiveRecipeID = recipeID
		existing.UpdatedAt = s.clock()
		saved, err := repo.UpdateProduct(ctx, *existing)
		if err != nil {
			return err
		}
		product = *saved
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "recipe_activate", "product", product.ID, "recipe="+recipeID)
	return product, nil
}

func (s *Service) GetRecipe(ctx context.Context, id string) (recipe domain.Recipe, err error) {
	if _, err := s.authorize(ctx, "get_recipe"); err != nil {
		return domain.Recipe{}, err
	}
	if err := requireID("recipe_id", id); err != nil {
		return domain.Recipe{}, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		found, err := repo.GetRecipe(ctx, id)
		if err != nil {
			return err
		}
		recipe = *found
		return nil
	})
	return recipe, err
}

func (s *Service) ListRecipes(ctx context.Context, productID string) (recipes []domain.Recipe, err error) {
	if _, err := s.authorize(ctx, "list_recipes"); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		recipes, err = repo.ListRecipes(ctx, productID)
		return err
	})
	return recipes, err
}

func (s *Service) CreateMenuItem(ctx context.Context, req domain.MenuItemCreateRequest) (item domain.MenuItem, err error) {
	defer s.trace("create_menu_item", &err, "product_id", req.ProductID)
	if _, err := s.authorize(ctx, "create_menu_item", domain.RoleManager); err != nil {
		return domain.MenuItem{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.MenuItem{}, err
	}
	if req.Price.IsNegative() {
		return domain.MenuItem{}, domain.Validation("price", "must not be negative")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		product, err := repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return domain.Validation("product_id", "product is inactive")
		}
		created, err := repo.CreateMenuItem(ctx, domain.MenuItem{
			ID:        xid.New("menu"),
			ProductID: product.ID,
			Name:      req.Name,
			Price:     domain.Money(req.Price),
			Active:    true,
			UpdatedAt: s.clock(),
		})
		if err != nil {
			return err
		}
		item = *created
		return nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}

	s.logAudit(ctx, "menu_item_create", "menu_item", item.ID, fmt.Sprintf("product=%s,price=%s", item.ProductID, item.Price))
	return item, nil
}

// UpdateMenuItem changes the price authority. Open sales keep the prices they
// captured when items were added.
func (s *Service) UpdateMenuItem(ctx context.Context, id string, req domain.MenuItemUpdateRequest) (item domain.MenuItem, err error) {
	defer s.trace("update_menu_item", &err, "menu_item_id", id)
	if _, err := s.authorize(ctx, "update_menu_item", domain.RoleManager); err != nil {
		return domain.MenuItem{}, err
	}
	if err := s.check(req); err != nil {
		return domain.MenuItem{}, err
	}
	if req.Price.Valid && req.Price.Decimal.IsNegative() {
		return domain.MenuItem{}, domain.Validation("price", "must not be negative")
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repo store.Repository) error {
		existing, err := repo.GetMenuItem(ctx, id)
		if err != nil {
			return err
		}
		updated := *existing
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.Validation("name", "must not be empty")
			}
			updated.Name = name
		}
		if req.Price.Valid {
			updated.Price = domain.Money(req.Price.Decimal)
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		updated.UpdatedAt = s.clock()
		saved, err := repo.UpdateMenuItem(ctx, updated)
		if err != nil {
			return err
		}
		item = *saved
		return nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}

	s.logAudit(ctx, "menu_item_update", "menu_item", item.ID, fmt.Sprintf("price=%s,active=%t", item.Price, item.Active))
	return item, nil
}

func (s *Service) ListMenuItems(ctx context.Context, activeOnly bool) (items []domain.MenuItem, err error) {
	if _, err := s.authorize(ctx, "list_menu_items"); err != nil {
		return nil, err
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		items, err = repo.ListMenuItems(ctx, activeOnly)
		return err
	})
	return items, err
}
