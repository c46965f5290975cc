package httpapi

import (
	"net/http"
	"time"

	"cafepos/backend/internal/domain"
)

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.SaleFilter{
		State: domain.SaleState(query.Get("state")),
		Limit: parsePositiveLimit(query.Get("limit"), 100, 500),
	}
	for key, dest := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeServiceError(w, domain.Validation(key, "must be an RFC3339 timestamp"))
			return
		}
		*dest = at
	}
	sales, err := a.service.ListSales(r.Context(), filter)
	respond(w, http.StatusOK, map[string]any{"sales": sales}, err)
}

func (a *API) handleOpenSale(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenSaleRequest
	if !readJSON(w, r, &req) {
		return
	}
	sale, err := a.service.OpenSale(r.Context(), req)
	respond(w, http.StatusCreated, sale, err)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, sale, err)
}

func (a *API) handleSyncSaleItems(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncSaleItemsRequest
	if !readJSON(w, r, &req) {
		return
	}
	sale, err := a.service.SyncSaleItems(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, sale, err)
}

func (a *API) handleAddDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleDiscountRequest
	if !readJSON(w, r, &req) {
		return
	}
	sale, err := a.service.AddSaleDiscount(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusCreated, sale, err)
}

func (a *API) handleCloseSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CloseSaleRequest
	if !readJSON(w, r, &req) {
		return
	}
	resp, err := a.service.CloseSale(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, resp, err)
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelSaleRequest
	if !readJSON(w, r, &req) {
		return
	}
	sale, err := a.service.CancelSale(r.Context(), r.PathValue("id"), req)
	respond(w, http.StatusOK, sale, err)
}

func (a *API) handleInvoiceBySale(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetInvoiceBySale(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, detail, err)
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvoiceRequest
	if !readJSON(w, r, &req) {
		return
	}
	invoice, err := a.service.CreateInvoice(r.Context(), req)
	respond(w, http.StatusCreated, invoice, err)
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetInvoice(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, detail, err)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := a.service.ListPayments(r.Context(), r.PathValue("id"))
	respond(w, http.StatusOK, map[string]any{"payments": payments}, err)
}

// handleIssuePayment answers 200 instead of 201 when the idempotency key
// replays an earlier payment.
func (a *API) handleIssuePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.IssuePaymentRequest
	if !readJSON(w, r, &req) {
		return
	}
	resp, err := a.service.IssuePayment(r.Context(), req)
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	respond(w, status, resp, err)
}

func (a *API) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRefundRequest
	if !readJSON(w, r, &req) {
		return
	}
	resp, err := a.service.CreateRefund(r.Context(), req)
	respond(w, http.StatusCreated, resp, err)
}
