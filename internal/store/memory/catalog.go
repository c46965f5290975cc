package memory

import (
	"context"
	"slices"
	"strings"

	"cafepos/backend/internal/domain"
)

func (r *repo) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	key := strings.ToLower(product.Name)
	if _, exists := r.data.productNames[key]; exists {
		return nil, conflict("product name", product.Name)
	}
	if _, exists := r.data.products[product.ID]; exists {
		return nil, conflict("product", product.ID)
	}
	r.data.products[product.ID] = product
	r.data.productNames[key] = product.ID
	return &product, nil
}

func (r *repo) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	product, ok := r.data.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &product, nil
}

func (r *repo) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(r.data.products))
	for _, product := range r.data.products {
		if !includeInactive && !product.IsActive {
			continue
		}
		products = append(products, product)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (r *repo) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	existing, ok := r.data.products[product.ID]
	if !ok {
		return nil, notFound("product", product.ID)
	}
	oldKey := strings.ToLower(existing.Name)
	newKey := strings.ToLower(product.Name)
	if oldKey != newKey {
		if _, taken := r.data.productNames[newKey]; taken {
			return nil, conflict("product name", product.Name)
		}
		delete(r.data.productNames, oldKey)
		r.data.productNames[newKey] = product.ID
	}
	r.data.products[product.ID] = product
	return &product, nil
}

func (r *repo) CreateRecipe(_ context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, exists := r.data.recipes[recipe.ID]; exists {
		return nil, conflict("recipe", recipe.ID)
	}
	if _, ok := r.data.products[recipe.ProducedProductID]; !ok {
		return nil, notFound("product", recipe.ProducedProductID)
	}
	for _, component := range recipe.Components {
		if _, ok := r.data.products[component.ComponentProductID]; !ok {
			return nil, notFound("product", component.ComponentProductID)
		}
	}
	recipe = cloneRecipe(recipe)
	r.data.recipes[recipe.ID] = recipe
	out := cloneRecipe(recipe)
	return &out, nil
}

func (r *repo) GetRecipe(_ context.Context, id string) (*domain.Recipe, error) {
	recipe, ok := r.data.recipes[id]
	if !ok {
		return nil, notFound("recipe", id)
	}
	out := cloneRecipe(recipe)
	return &out, nil
}

func (r *repo) ListRecipes(_ context.Context, producedProductID string) ([]domain.Recipe, error) {
	recipes := make([]domain.Recipe, 0)
	for _, recipe := range r.data.recipes {
		if producedProductID != "" && recipe.ProducedProductID != producedProductID {
			continue
		}
		recipes = append(recipes, cloneRecipe(recipe))
	}
	slices.SortFunc(recipes, func(a, b domain.Recipe) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return recipes, nil
}

func (r *repo) CreateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, exists := r.data.menuItems[item.ID]; exists {
		return nil, conflict("menu item", item.ID)
	}
	if _, ok := r.data.products[item.ProductID]; !ok {
		return nil, notFound("product", item.ProductID)
	}
	r.data.menuItems[item.ID] = item
	return &item, nil
}

func (r *repo) GetMenuItem(_ context.Context, id string) (*domain.MenuItem, error) {
	item, ok := r.data.menuItems[id]
	if !ok {
		return nil, notFound("menu item", id)
	}
	return &item, nil
}

func (r *repo) FindMenuItemByProduct(_ context.Context, productID string) (*domain.MenuItem, error) {
	var found *domain.MenuItem
	for _, item := range r.data.menuItems {
		if item.ProductID != productID || !item.Active {
			continue
		}
		if found == nil || item.ID < found.ID {
			candidate := item
			found = &candidate
		}
	}
	if found == nil {
		return nil, notFound("menu item for product", productID)
	}
	return found, nil
}

func (r *repo) ListMenuItems(_ context.Context, activeOnly bool) ([]domain.MenuItem, error) {
	items := make([]domain.MenuItem, 0, len(r.data.menuItems))
	for _, item := range r.data.menuItems {
		if activeOnly && !item.Active {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.MenuItem) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (r *repo) UpdateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.menuItems[item.ID]; !ok {
		return nil, notFound("menu item", item.ID)
	}
	r.data.menuItems[item.ID] = item
	return &item, nil
}

func cloneRecipe(src domain.Recipe) domain.Recipe {
	dup := src
	dup.Components = slices.Clone(src.Components)
	return dup
}
