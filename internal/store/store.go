package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

var (
	ErrNotFound = &domain.Error{Kind: domain.KindNotFound, Message: "not found"}
	ErrConflict = &domain.Error{Kind: domain.KindConflict, Message: "already exists"}
	ErrReadOnly = &domain.Error{Kind: domain.KindIntegrity, Message: "write attempted in read-only view"}
)

// Store owns the transaction boundary. Every write operation of the service
// runs inside exactly one WithTx call; when fn returns an error nothing it
// wrote survives.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	View(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Close() error
}

// Repository is the row-level access available inside a transaction. Lock*
// methods take row locks that are held until the transaction ends.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateRecipe(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error)
	GetRecipe(ctx context.Context, id string) (*domain.Recipe, error)
	ListRecipes(ctx context.Context, producedProductID string) ([]domain.Recipe, error)

	CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id string) (*domain.MenuItem, error)
	FindMenuItemByProduct(ctx context.Context, productID string) (*domain.MenuItem, error)
	ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)

	InsertStockEntry(ctx context.Context, entry domain.StockEntry) (*domain.StockEntry, error)
	LockOpenLots(ctx context.Context, productID string) ([]domain.StockEntry, error)
	UpdateLotRemaining(ctx context.Context, entryID string, remaining decimal.Decimal) error
	AvailableQuantity(ctx context.Context, productID string) (decimal.Decimal, error)
	ListStockEntries(ctx context.Context, productID string, limit int) ([]domain.StockEntry, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	LockSale(ctx context.Context, id string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) error
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	MaxInvoiceSequence(ctx context.Context, prefix string) (int, error)
	InsertSaleItem(ctx context.Context, item domain.SaleItem) (*domain.SaleItem, error)
	UpdateSaleItemQuantity(ctx context.Context, id string, quantity decimal.Decimal) error
	UpdateSaleItemCost(ctx context.Context, id string, materialCost decimal.Decimal) error
	UpdateSaleItemRestocked(ctx context.Context, id string, restocked decimal.Decimal) error
	DeleteSaleItem(ctx context.Context, id string) error
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
	InsertSaleDiscount(ctx context.Context, discount domain.SaleDiscount) (*domain.SaleDiscount, error)
	ListSaleDiscounts(ctx context.Context, saleID string) ([]domain.SaleDiscount, error)

	CreateInvoice(ctx context.Context, invoice domain.SaleInvoice) (*domain.SaleInvoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.SaleInvoice, error)
	LockInvoice(ctx context.Context, id string) (*domain.SaleInvoice, error)
	GetInvoiceBySale(ctx context.Context, saleID string) (*domain.SaleInvoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status domain.InvoiceStatus) error

	CreatePayment(ctx context.Context, payment domain.SalePayment) (*domain.SalePayment, error)
	GetPayment(ctx context.Context, id string) (*domain.SalePayment, error)
	LockPayment(ctx context.Context, id string) (*domain.SalePayment, error)
	FindPaymentByIdempotency(ctx context.Context, key string) (*domain.SalePayment, error)
	ListPayments(ctx context.Context, invoiceID string) ([]domain.SalePayment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentState) error
	CreateRefund(ctx context.Context, refund domain.SaleRefund) (*domain.SaleRefund, error)
	ListRefunds(ctx context.Context, invoiceID string) ([]domain.SaleRefund, error)

	CreateDailyReport(ctx context.Context, report domain.DailyReport) (*domain.DailyReport, error)
	GetDailyReport(ctx context.Context, id string) (*domain.DailyReport, error)
	GetDailyReportByDate(ctx context.Context, date string) (*domain.DailyReport, error)
	LockDailyReport(ctx context.Context, id string) (*domain.DailyReport, error)
	UpdateDailyReport(ctx context.Context, report domain.DailyReport) error
	SummarizeBusinessDay(ctx context.Context, from time.Time, to time.Time) (domain.BusinessDaySummary, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Users adapts a Store to callers that manage accounts one statement at a
// time, such as the auth layer.
func Users(st Store) *UserStore {
	return &UserStore{st: st}
}

type UserStore struct {
	st Store
}

func (u *UserStore) CreateUser(ctx context.Context, user domain.UserAccount) error {
	return u.st.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.CreateUser(ctx, user)
	})
}

func (u *UserStore) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var users []domain.UserAccount
	err := u.st.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		users, err = repo.ListUsers(ctx)
		return err
	})
	return users, err
}

func (u *UserStore) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return u.st.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		return repo.UpdateUserPassword(ctx, username, password)
	})
}
