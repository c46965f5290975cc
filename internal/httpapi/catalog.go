package httpapi

import (
	"net/http"

	"cafepos/backend/internal/domain"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), parseBool(r.URL.Query().Get("include_inactive")))
	respond(w, http.StatusOK, map[string]any{"products": products}, err)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !readJSON(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	respond(w, http.StatusCreated, product, err)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, product, err)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !readJSON(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, product, err)
}

func (a *API) handleDeactivateProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.DeactivateProduct(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, product, err)
}

func (a *API) handleSetActiveRecipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipeID string `json:"recipe_id"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	product, err := a.service.SetActiveRecipe(r.Context(), r.PathValue("id"), req.RecipeID)
	respond(w, http.StatusOK, product, err)
}

func (a *API) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := a.service.ListRecipes(r.Context(), r.URL.Query().Get("product_id"))
	respond(w, http.StatusOK, map[string]any{"recipes": recipes}, err)
}

func (a *API) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeCreateRequest
	if !readJSON(w, r, &req) {
		return
	}
	recipe, err := a.service.CreateRecipe(r.Context(), req)
	respond(w, http.StatusCreated, recipe, err)
}

func (a *API) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := a.service.GetRecipe(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, recipe, err)
}

func (a *API) handleListMenuItems(w http.ResponseWriter, r *http.Request) {
	activeOnly := !parseBool(r.URL.Query().Get("all"))
	items, err := a.service.ListMenuItems(r.Context(), activeOnly)
	respond(w, http.StatusOK, map[string]any{"menu_items": items}, err)
}

func (a *API) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req domain.MenuItemCreateRequest
	if !readJSON(w, r, &req) {
		return
	}
	item, err := a.service.CreateMenuItem(r.Context(), req)
	respond(w, http.StatusCreated, item, err)
}

func (a *API) handleUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req domain.MenuItemUpdateRequest
	if !readJSON(w, r, &req) {
		return
	}
	item, err := a.service.UpdateMenuItem(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, item, err)
}

func (a *API) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.StockInRequest
	if !readJSON(w, r, &req) {
		return
	}
	entry, err := a.service.AddPurchase(r.Context(), req)
	respond(w, http.StatusCreated, entry, err)
}

func (a *API) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.StockInRequest
	if !readJSON(w, r, &req) {
		return
	}
	entry, err := a.service.AddAdjustment(r.Context(), req)
	respond(w, http.StatusCreated, entry, err)
}

func (a *API) handleWaste(w http.ResponseWriter, r *http.Request) {
	var req domain.WasteRequest
	if !readJSON(w, r, &req) {
		return
	}
	resp, err := a.service.RecordWaste(r.Context(), req)
	respond(w, http.StatusCreated, resp, err)
}

func (a *API) handleStockEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries, err := a.service.ListStockEntries(r.Context(), query.Get("product_id"), parsePositiveLimit(query.Get("limit"), 100, 500))
	respond(w, http.StatusOK, map[string]any{"entries": entries}, err)
}

func (a *API) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	level, err := a.service.AvailableQuantity(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, level, err)
}

func (a *API) handleProduceBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionRequest
	if !readJSON(w, r, &req) {
		return
	}
	resp, err := a.service.ProduceBatch(r.Context(), req)
	respond(w, http.StatusCreated, resp, err)
}
