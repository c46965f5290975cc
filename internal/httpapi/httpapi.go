package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        zerolog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        log.Logger.With().Str("component", "http").Logger(),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, domain.RoleAdmin))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct))
	mux.HandleFunc("POST /api/v1/products/{id}/deactivate", a.requireAuth(a.handleDeactivateProduct))
	mux.HandleFunc("PUT /api/v1/products/{id}/active-recipe", a.requireAuth(a.handleSetActiveRecipe))
	mux.HandleFunc("GET /api/v1/products/{id}/stock", a.requireAuth(a.handleStockLevel))
	mux.HandleFunc("GET /api/v1/recipes", a.requireAuth(a.handleListRecipes))
	mux.HandleFunc("POST /api/v1/recipes", a.requireAuth(a.handleCreateRecipe))
	mux.HandleFunc("GET /api/v1/recipes/{id}", a.requireAuth(a.handleGetRecipe))
	mux.HandleFunc("GET /api/v1/menu-items", a.requireAuth(a.handleListMenuItems))
	mux.HandleFunc("POST /api/v1/menu-items", a.requireAuth(a.handleCreateMenuItem))
	mux.HandleFunc("PATCH /api/v1/menu-items/{id}", a.requireAuth(a.handleUpdateMenuItem))

	mux.HandleFunc("POST /api/v1/stock/purchases", a.requireAuth(a.handlePurchase))
	mux.HandleFunc("POST /api/v1/stock/adjustments", a.requireAuth(a.handleAdjustment))
	mux.HandleFunc("POST /api/v1/stock/waste", a.requireAuth(a.handleWaste))
	mux.HandleFunc("GET /api/v1/stock/entries", a.requireAuth(a.handleStockEntries))
	mux.HandleFunc("POST /api/v1/production", a.requireAuth(a.handleProduceBatch))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleOpenSale))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale))
	mux.HandleFunc("PUT /api/v1/sales/{id}/items", a.requireAuth(a.handleSyncSaleItems))
	mux.HandleFunc("POST /api/v1/sales/{id}/discounts", a.requireAuth(a.handleAddDiscount))
	mux.HandleFunc("POST /api/v1/sales/{id}/close", a.requireAuth(a.handleCloseSale))
	mux.HandleFunc("POST /api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancelSale))
	mux.HandleFunc("GET /api/v1/sales/{id}/invoice", a.requireAuth(a.handleInvoiceBySale))

	mux.HandleFunc("POST /api/v1/invoices", a.requireAuth(a.handleCreateInvoice))
	mux.HandleFunc("GET /api/v1/invoices/{id}", a.requireAuth(a.handleGetInvoice))
	mux.HandleFunc("GET /api/v1/invoices/{id}/payments", a.requireAuth(a.handleListPayments))
	mux.HandleFunc("POST /api/v1/payments", a.requireAuth(a.handleIssuePayment))
	mux.HandleFunc("POST /api/v1/refunds", a.requireAuth(a.handleCreateRefund))

	mux.HandleFunc("GET /api/v1/daily-reports", a.requireAuth(a.handleReportByDate))
	mux.HandleFunc("POST /api/v1/daily-reports", a.requireAuth(a.handleCreateReport))
	mux.HandleFunc("GET /api/v1/daily-reports/{id}", a.requireAuth(a.handleGetReport))
	mux.HandleFunc("PATCH /api/v1/daily-reports/{id}", a.requireAuth(a.handleUpdateReport))
	mux.HandleFunc("POST /api/v1/daily-reports/{id}/{action}", a.requireAuth(a.handleReportTransition))
	mux.HandleFunc("GET /api/v1/daily-reports/{id}/export", a.requireAuth(a.handleExportReport))

	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor. Role checks for domain
// operations happen in the service; roles here guard auth-only endpoints.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && actor.Role != domain.RoleAdmin && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		if rec, ok := w.(*statusRecorder); ok {
			rec.actor = actor.Username
		}
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !readJSON(w, r, &req) {
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	respond(w, http.StatusCreated, user, err)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("date"), parsePositiveLimit(query.Get("limit"), 100, 500))
	respond(w, http.StatusOK, map[string]any{"audit_logs": logs}, err)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		logger := a.logger.With().Str("request_id", requestID).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		event := logger.Info()
		if rec.status >= 500 {
			event = logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("actor", rec.actor).
			Dur("duration", time.Since(startedAt)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	actor  string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// readJSON decodes the body into dest, answering 400 itself on failure.
func readJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return fallback
	}
	if val > max {
		return max
	}
	return val
}

func parseBool(raw string) bool {
	val, err := strconv.ParseBool(raw)
	return err == nil && val
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindStateInvalid, domain.KindInsufficientStock, domain.KindExceeds, domain.KindIntegrity:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// respond writes payload with status, or the mapped error response when err
// is set.
func respond(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, payload)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, errors.New("operation timed out"))
		return
	}
	var de *domain.Error
	if !errors.As(err, &de) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := statusFor(de.Kind)
	if status >= 500 {
		writeError(w, status, err)
		return
	}

	body := map[string]any{
		"error": err.Error(),
		"kind":  de.Kind,
	}
	if de.Field != "" {
		body["field"] = de.Field
	}
	switch de.Kind {
	case domain.KindInsufficientStock:
		body["product_id"] = de.ProductID
		body["shortage"] = de.Shortage
	case domain.KindExceeds:
		body["amount"] = de.Amount
		body["limit"] = de.Limit
	case domain.KindStateInvalid:
		if de.State != "" {
			body["state"] = de.State
		}
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFile(w http.ResponseWriter, contentType string, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
