package memory

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

// Store keeps every table in process memory. Writers are serialized; a failed
// transaction restores the snapshot taken when it began.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

type dataset struct {
	products       map[string]domain.Product
	productNames   map[string]string
	recipes        map[string]domain.Recipe
	menuItems      map[string]domain.MenuItem
	stock          map[string]domain.StockEntry
	stockByProduct map[string][]string
	sales          map[string]domain.Sale
	saleInvoiceNos map[string]string
	saleItems      map[string]domain.SaleItem
	discounts      map[string]domain.SaleDiscount
	invoices       map[string]domain.SaleInvoice
	invoiceBySale  map[string]string
	invoiceNumbers map[string]string
	payments       map[string]domain.SalePayment
	paymentsByIdem map[string]string
	refunds        map[string]domain.SaleRefund
	reports        map[string]domain.DailyReport
	reportsByDate  map[string]string
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func newDataset() *dataset {
	return &dataset{
		products:       make(map[string]domain.Product),
		productNames:   make(map[string]string),
		recipes:        make(map[string]domain.Recipe),
		menuItems:      make(map[string]domain.MenuItem),
		stock:          make(map[string]domain.StockEntry),
		stockByProduct: make(map[string][]string),
		sales:          make(map[string]domain.Sale),
		saleInvoiceNos: make(map[string]string),
		saleItems:      make(map[string]domain.SaleItem),
		discounts:      make(map[string]domain.SaleDiscount),
		invoices:       make(map[string]domain.SaleInvoice),
		invoiceBySale:  make(map[string]string),
		invoiceNumbers: make(map[string]string),
		payments:       make(map[string]domain.SalePayment),
		paymentsByIdem: make(map[string]string),
		refunds:        make(map[string]domain.SaleRefund),
		reports:        make(map[string]domain.DailyReport),
		reportsByDate:  make(map[string]string),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		users:          make(map[string]domain.UserAccount),
	}
}

// clone copies every map. Stored values own their slices (put paths copy
// them), so a shallow copy of each map is a consistent snapshot.
func (d *dataset) clone() *dataset {
	stockByProduct := make(map[string][]string, len(d.stockByProduct))
	for k, v := range d.stockByProduct {
		stockByProduct[k] = slices.Clone(v)
	}
	return &dataset{
		products:       maps.Clone(d.products),
		productNames:   maps.Clone(d.productNames),
		recipes:        maps.Clone(d.recipes),
		menuItems:      maps.Clone(d.menuItems),
		stock:          maps.Clone(d.stock),
		stockByProduct: stockByProduct,
		sales:          maps.Clone(d.sales),
		saleInvoiceNos: maps.Clone(d.saleInvoiceNos),
		saleItems:      maps.Clone(d.saleItems),
		discounts:      maps.Clone(d.discounts),
		invoices:       maps.Clone(d.invoices),
		invoiceBySale:  maps.Clone(d.invoiceBySale),
		invoiceNumbers: maps.Clone(d.invoiceNumbers),
		payments:       maps.Clone(d.payments),
		paymentsByIdem: maps.Clone(d.paymentsByIdem),
		refunds:        maps.Clone(d.refunds),
		reports:        maps.Clone(d.reports),
		reportsByDate:  maps.Clone(d.reportsByDate),
		auditLogs:      slices.Clone(d.auditLogs),
		users:          maps.Clone(d.users),
	}
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newDataset()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	committed := false
	defer func() {
		if !committed {
			s.data = snapshot
		}
	}()

	if err := fn(ctx, &repo{data: s.data}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, repo store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &repo{data: s.data, readOnly: true})
}

func (s *Store) Close() error {
	return nil
}

type repo struct {
	data     *dataset
	readOnly bool
}

func (r *repo) writable() error {
	if r.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func notFound(entity string, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
}

func conflict(entity string, key string) error {
	return fmt.Errorf("%s %s: %w", entity, key, store.ErrConflict)
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_<ROLE>_PASSWORD environment variables; when
// unset, dev defaults are used and a warning is logged.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	seeds := []struct {
		username string
		env      string
		fallback string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"manager", "SEED_MANAGER_PASSWORD", "manager123", domain.RoleManager},
		{"accountant", "SEED_ACCOUNTANT_PASSWORD", "accountant123", domain.RoleAccountant},
		{"barista", "SEED_STAFF_PASSWORD", "barista123", domain.RoleStaff},
	}

	users := make(map[string]domain.UserAccount, len(seeds))
	defaulted := false
	for _, u := range seeds {
		pwd := os.Getenv(u.env)
		if pwd == "" {
			pwd = u.fallback
			defaulted = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	if defaulted {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_*_PASSWORD to override")
	}
	return users
}

// NewSeeded returns a store with demo users and a small café catalog with
// opening stock.
func NewSeeded() *Store {
	now := time.Now().UTC()
	data := newDataset()
	data.users = seedUsers(now)

	dec := decimal.RequireFromString
	products := []domain.Product{
		{ID: "prod-espresso-beans", Name: "Espresso Beans", Type: domain.ProductRaw, TracksInventory: true},
		{ID: "prod-whole-milk", Name: "Whole Milk", Type: domain.ProductRaw, TracksInventory: true},
		{ID: "prod-oat-milk", Name: "Oat Milk Portion", Type: domain.ProductRaw, IsCountable: true, TracksInventory: true},
		{ID: "prod-croissant", Name: "Butter Croissant", Type: domain.ProductMenuItem, IsCountable: true, TracksInventory: true},
		{ID: "prod-latte", Name: "Cafe Latte", Type: domain.ProductMenuItem, IsCountable: true, ActiveRecipeID: "recipe-latte"},
		{ID: "prod-americano", Name: "Americano", Type: domain.ProductMenuItem, IsCountable: true, ActiveRecipeID: "recipe-americano"},
		{ID: "prod-takeaway-cup", Name: "Takeaway Cup", Type: domain.ProductConsumable, IsCountable: true},
	}
	for _, p := range products {
		p.IsActive = true
		p.CreatedAt = now
		p.UpdatedAt = now
		data.products[p.ID] = p
		data.productNames[strings.ToLower(p.Name)] = p.ID
	}

	recipes := []domain.Recipe{
		{ID: "recipe-latte", Name: "Cafe Latte", ProducedProductID: "prod-latte", Instruction: "Pull a double shot, steam milk, pour.", Components: []domain.RecipeComponent{
			{RecipeID: "recipe-latte", ComponentProductID: "prod-espresso-beans", Quantity: dec("0.018")},
			{RecipeID: "recipe-latte", ComponentProductID: "prod-whole-milk", Quantity: dec("0.2")},
		}},
		{ID: "recipe-americano", Name: "Americano", ProducedProductID: "prod-americano", Instruction: "Double shot over hot water.", Components: []domain.RecipeComponent{
			{RecipeID: "recipe-americano", ComponentProductID: "prod-espresso-beans", Quantity: dec("0.018")},
		}},
	}
	for _, rec := range recipes {
		rec.CreatedAt = now
		data.recipes[rec.ID] = rec
	}

	menu := []domain.MenuItem{
		{ID: "menu-latte", ProductID: "prod-latte", Name: "Cafe Latte", Price: dec("45000")},
		{ID: "menu-americano", ProductID: "prod-americano", Name: "Americano", Price: dec("35000")},
		{ID: "menu-croissant", ProductID: "prod-croissant", Name: "Butter Croissant", Price: dec("30000")},
		{ID: "menu-oat-milk", ProductID: "prod-oat-milk", Name: "Oat Milk Upgrade", Price: dec("8000")},
	}
	for _, m := range menu {
		m.Active = true
		m.UpdatedAt = now
		data.menuItems[m.ID] = m
	}

	lots := []struct {
		productID string
		qty       string
		cost      string
	}{
		{"prod-espresso-beans", "5", "250000"},
		{"prod-whole-milk", "40", "18000"},
		{"prod-oat-milk", "60", "3000"},
		{"prod-croissant", "24", "12000"},
	}
	r := &repo{data: data}
	for _, lot := range lots {
		cost := dec(lot.cost)
		_, _ = r.InsertStockEntry(context.Background(), domain.StockEntry{
			ID:                xid.New("stock"),
			ProductID:         lot.productID,
			MovementType:      domain.MovementPurchaseIn,
			InitialQuantity:   dec(lot.qty),
			RemainingQuantity: dec(lot.qty),
			UnitCost:          decimal.NewNullDecimal(cost),
			Source:            domain.SourceRef{Kind: domain.SourcePurchase, ID: "opening-stock"},
			CreatedAt:         now.Add(-24 * time.Hour),
		})
		p := data.products[lot.productID]
		p.LastPurchasedPrice = decimal.NewNullDecimal(cost)
		data.products[lot.productID] = p
	}

	return &Store{data: data}
}

func (r *repo) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if err := r.writable(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.data.auditLogs = append(r.data.auditLogs, entry)
	return nil
}

func (r *repo) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(r.data.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := r.data.auditLogs[i]
		if !inWindow(entry.CreatedAt, from, to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (r *repo) CreateUser(_ context.Context, user domain.UserAccount) error {
	if err := r.writable(); err != nil {
		return err
	}
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return domain.Validation("username", "username and password are required")
	}
	if _, exists := r.data.users[username]; exists {
		return conflict("user", username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	r.data.users[user.Username] = user
	return nil
}

func (r *repo) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, len(r.data.users))
	for _, user := range r.data.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (r *repo) UpdateUserPassword(_ context.Context, username string, password string) error {
	if err := r.writable(); err != nil {
		return err
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.Validation("password", "password is required")
	}
	user, exists := r.data.users[username]
	if !exists {
		return notFound("user", username)
	}
	user.Password = password
	r.data.users[username] = user
	return nil
}

func inWindow(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

// compareCreated orders rows by creation time, tie-broken by id.
func compareCreated(aAt time.Time, aID string, bAt time.Time, bID string) int {
	if c := aAt.Compare(bAt); c != 0 {
		return c
	}
	return strings.Compare(aID, bID)
}
