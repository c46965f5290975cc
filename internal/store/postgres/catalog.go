package postgres

import (
	"context"
	"database/sql"

	"cafepos/backend/internal/domain"
)

const productColumns = `id, name, type, is_countable, tracks_inventory, is_active, active_recipe_id, last_purchased_price, created_at, updated_at`

func scanProduct(row scanner) (domain.Product, error) {
	var (
		p        domain.Product
		recipeID sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.IsCountable, &p.TracksInventory, &p.IsActive, &recipeID, &p.LastPurchasedPrice, &p.CreatedAt, &p.UpdatedAt)
	p.ActiveRecipeID = recipeID.String
	return p, err
}

func (r *repo) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Type, product.IsCountable, product.TracksInventory, product.IsActive,
		nullIfEmpty(product.ActiveRecipeID), nullDecimal(product.LastPurchasedPrice), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "product name", product.Name)
	}
	return &product, nil
}

func (r *repo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(r.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "product", id)
	}
	return &product, nil
}

func (r *repo) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 OR is_active
		ORDER BY name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, type = $3, is_countable = $4, tracks_inventory = $5, is_active = $6,
			active_recipe_id = $7, last_purchased_price = $8, updated_at = $9
		WHERE id = $1
	`, product.ID, product.Name, product.Type, product.IsCountable, product.TracksInventory, product.IsActive,
		nullIfEmpty(product.ActiveRecipeID), nullDecimal(product.LastPurchasedPrice), product.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "product name", product.Name)
	}
	if err := requireAffected(res, "product", product.ID); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repo) CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO recipes (id, name, produced_product_id, instruction, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, recipe.ID, recipe.Name, recipe.ProducedProductID, recipe.Instruction, recipe.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "recipe", recipe.ID)
	}
	for i, component := range recipe.Components {
		_, err := r.tx.ExecContext(ctx, `
			INSERT INTO recipe_components (recipe_id, component_product_id, quantity, position)
			VALUES ($1,$2,$3,$4)
		`, recipe.ID, component.ComponentProductID, component.Quantity, i)
		if err != nil {
			return nil, mapErr(err, "recipe component", component.ComponentProductID)
		}
	}
	return &recipe, nil
}

func (r *repo) GetRecipe(ctx context.Context, id string) (*domain.Recipe, error) {
	var recipe domain.Recipe
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, name, produced_product_id, instruction, created_at
		FROM recipes
		WHERE id = $1
	`, id).Scan(&recipe.ID, &recipe.Name, &recipe.ProducedProductID, &recipe.Instruction, &recipe.CreatedAt)
	if err != nil {
		return nil, mapErr(err, "recipe", id)
	}
	components, err := r.recipeComponents(ctx, id)
	if err != nil {
		return nil, err
	}
	recipe.Components = components
	return &recipe, nil
}

func (r *repo) ListRecipes(ctx context.Context, producedProductID string) ([]domain.Recipe, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, name, produced_product_id, instruction, created_at
		FROM recipes
		WHERE $1 = '' OR produced_product_id = $1
		ORDER BY created_at, id
	`, producedProductID)
	if err != nil {
		return nil, err
	}

	recipes := make([]domain.Recipe, 0, 16)
	for rows.Next() {
		var recipe domain.Recipe
		if err := rows.Scan(&recipe.ID, &recipe.Name, &recipe.ProducedProductID, &recipe.Instruction, &recipe.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range recipes {
		components, err := r.recipeComponents(ctx, recipes[i].ID)
		if err != nil {
			return nil, err
		}
		recipes[i].Components = components
	}
	return recipes, nil
}

func (r *repo) recipeComponents(ctx context.Context, recipeID string) ([]domain.RecipeComponent, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT recipe_id, component_product_id, quantity
		FROM recipe_components
		WHERE recipe_id = $1
		ORDER BY position
	`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	components := make([]domain.RecipeComponent, 0, 8)
	for rows.Next() {
		var c domain.RecipeComponent
		if err := rows.Scan(&c.RecipeID, &c.ComponentProductID, &c.Quantity); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return components, nil
}

const menuItemColumns = `id, product_id, name, price, active, updated_at`

func scanMenuItem(row scanner) (domain.MenuItem, error) {
	var item domain.MenuItem
	err := row.Scan(&item.ID, &item.ProductID, &item.Name, &item.Price, &item.Active, &item.UpdatedAt)
	return item, err
}

func (r *repo) CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO menu_items (`+menuItemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.ProductID, item.Name, item.Price, item.Active, item.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "menu item", item.ID)
	}
	return &item, nil
}

func (r *repo) GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error) {
	item, err := scanMenuItem(r.tx.QueryRowContext(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "menu item", id)
	}
	return &item, nil
}

func (r *repo) FindMenuItemByProduct(ctx context.Context, productID string) (*domain.MenuItem, error) {
	item, err := scanMenuItem(r.tx.QueryRowContext(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE product_id = $1 AND active
		ORDER BY id
		LIMIT 1
	`, productID))
	if err != nil {
		return nil, mapErr(err, "menu item for product", productID)
	}
	return &item, nil
}

func (r *repo) ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE NOT $1 OR active
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0, 64)
	for rows.Next() {
		item, err := scanMenuItem(rows)
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

func (r *repo) UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	res, err := r.tx.ExecContext(ctx, `
		UPDATE menu_items
		SET name = $2, price = $3, active = $4, updated_at = $5
		WHERE id = $1
	`, item.ID, item.Name, item.Price, item.Active, item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res, "menu item", item.ID); err != nil {
		return nil, err
	}
	return &item, nil
}
