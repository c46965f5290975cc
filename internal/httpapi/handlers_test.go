package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/export"
	"cafepos/backend/internal/service"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	st := memory.NewSeeded()
	svc := service.New(st, service.Options{
		Location: time.UTC,
		Clock:    func() time.Time { return fixedNow },
	})
	auth := NewAuthManager(context.Background(), testSecret, time.Hour, store.Users(st))

	return New(svc, auth, "*")
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed, status %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var payload domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "barista", Password: "barista123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payload domain.LoginResponse
	decodeBody(t, rec, &payload)
	if payload.Role != domain.RoleStaff || payload.TokenType != "Bearer" {
		t.Fatalf("unexpected login response: %+v", payload)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "barista", Password: "latte-art"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "barista", "pin": "1234"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/menu-items", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/menu-items", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := login(t, handler, "barista", "barista123")
	admin := login(t, handler, "admin", "admin123")

	newUser := domain.UserCreateRequest{Username: "nightshift", Password: "steamed-milk", Role: domain.RoleStaff}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", staff, newUser)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", admin, newUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", admin, newUser)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}

	login(t, handler, "nightshift", "steamed-milk")

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Users []domain.UserView `json:"users"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Users) != 5 {
		t.Fatalf("expected 5 users, got %d", len(listed.Users))
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := login(t, handler, "barista", "barista123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", staff, domain.OpenSaleRequest{
		SaleType: domain.SaleDineIn,
		Table:    "4",
		Items: []domain.SaleItemInput{
			{MenuID: "menu-latte", Quantity: dec("2")},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	decodeBody(t, rec, &sale)
	if sale.State != domain.SaleOpen || !sale.SubtotalAmount.Equal(dec("90000")) {
		t.Fatalf("unexpected open sale: state=%s subtotal=%s", sale.State, sale.SubtotalAmount)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/"+sale.ID+"/close", staff, domain.CloseSaleRequest{
		Payments: []domain.PaymentInput{
			{Method: domain.MethodCash, AmountApplied: dec("90000"), IdempotencyKey: "till-1-0001"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close sale: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.CloseSaleResponse
	decodeBody(t, rec, &closed)
	if closed.Sale.State != domain.SaleClosed || closed.Sale.InvoiceNumber != "INV-20260310-00001" {
		t.Fatalf("unexpected closed sale: %+v", closed.Sale)
	}
	if closed.Invoice == nil || closed.Invoice.Status != domain.InvoicePaid {
		t.Fatalf("expected paid invoice, got %+v", closed.Invoice)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/payments", staff, domain.IssuePaymentRequest{
		InvoiceID: closed.Invoice.ID,
		PaymentInput: domain.PaymentInput{
			Method:         domain.MethodCash,
			AmountApplied:  dec("90000"),
			IdempotencyKey: "till-1-0001",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed payment: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+sale.ID+"/invoice", staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invoice by sale: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/"+sale.ID+"/close", staff, domain.CloseSaleRequest{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("second close: expected 422, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["kind"] != string(domain.KindStateInvalid) || body["state"] != string(domain.SaleClosed) {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	handler := newTestAPI(t).Handler()
	staff := login(t, handler, "barista", "barista123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/sale-missing", staff, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", staff, domain.OpenSaleRequest{SaleType: "DELIVERY"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", staff, domain.ProductCreateRequest{Name: "Vanilla Syrup", Type: domain.ProductRaw})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", staff, domain.OpenSaleRequest{
		SaleType: domain.SaleTakeaway,
		Items:    []domain.SaleItemInput{{MenuID: "menu-croissant", Quantity: dec("30")}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for shortage, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["kind"] != string(domain.KindInsufficientStock) || body["product_id"] != "prod-croissant" {
		t.Fatalf("unexpected shortage body: %v", body)
	}
}

func TestDailyReportExport(t *testing.T) {
	handler := newTestAPI(t).Handler()
	accountant := login(t, handler, "accountant", "accountant123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/daily-reports", accountant, domain.CreateDailyReportRequest{
		ReportDate:   "2026-03-09",
		OpeningFloat: dec("500000"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create report: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report domain.DailyReport
	decodeBody(t, rec, &report)
	if report.Status != domain.ReportDraft {
		t.Fatalf("expected draft report, got %s", report.Status)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/daily-reports?date=2026-03-09", accountant, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report by date: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/daily-reports/"+report.ID+"/export", accountant, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != export.ContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "2026-03-09") {
		t.Fatalf("expected report date in filename, got %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/daily-reports/"+report.ID+"/reopen", accountant, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown transition: expected 404, got %d", rec.Code)
	}
}
