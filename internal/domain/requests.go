package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductCreateRequest struct {
	Name            string      `json:"name" validate:"required,max=120"`
	Type            ProductType `json:"type" validate:"required,oneof=RAW PROCESSED MENU_ITEM CONSUMABLE"`
	IsCountable     bool        `json:"is_countable"`
	TracksInventory bool        `json:"tracks_inventory"`
}

type ProductUpdateRequest struct {
	Name            *string      `json:"name,omitempty" validate:"omitempty,max=120"`
	Type            *ProductType `json:"type,omitempty" validate:"omitempty,oneof=RAW PROCESSED MENU_ITEM CONSUMABLE"`
	IsCountable     *bool        `json:"is_countable,omitempty"`
	TracksInventory *bool        `json:"tracks_inventory,omitempty"`
}

type RecipeComponentInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type RecipeCreateRequest struct {
	Name              string                 `json:"name" validate:"required,max=120"`
	ProducedProductID string                 `json:"produced_product_id" validate:"required"`
	Instruction       string                 `json:"instruction"`
	Components        []RecipeComponentInput `json:"components" validate:"required,min=1,dive"`
	Activate          bool                   `json:"activate"`
}

type MenuItemCreateRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required,max=120"`
	Price     decimal.Decimal `json:"price"`
}

type MenuItemUpdateRequest struct {
	Name   *string             `json:"name,omitempty" validate:"omitempty,max=120"`
	Price  decimal.NullDecimal `json:"price"`
	Active *bool               `json:"active,omitempty"`
}

type StockInRequest struct {
	ProductID  string          `json:"product_id" validate:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Quantity   decimal.Decimal `json:"quantity"`
	SourceID   string          `json:"source_id"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
}

type WasteRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reason    string          `json:"reason" validate:"required"`
}

type ConsumeResponse struct {
	Entry     StockEntry      `json:"entry"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type ProductionRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type ProductionResponse struct {
	Entry     StockEntry      `json:"entry"`
	TotalCost decimal.Decimal `json:"total_cost"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type StockLevel struct {
	ProductID string          `json:"product_id"`
	Available decimal.Decimal `json:"available"`
}

type ExtraInput struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SaleItemInput struct {
	ItemID   string          `json:"item_id,omitempty"`
	MenuID   string          `json:"menu_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Extras   []ExtraInput    `json:"extras,omitempty" validate:"dive"`
}

type OpenSaleRequest struct {
	SaleType   SaleType        `json:"sale_type" validate:"required,oneof=DINE_IN TAKEAWAY"`
	Table      string          `json:"table,omitempty" validate:"max=32"`
	Guest      string          `json:"guest,omitempty" validate:"max=120"`
	GuestCount int             `json:"guest_count,omitempty" validate:"gte=0"`
	Note       string          `json:"note" validate:"max=500"`
	Items      []SaleItemInput `json:"items" validate:"dive"`
}

type SyncSaleItemsRequest struct {
	Items []SaleItemInput `json:"items" validate:"dive"`
}

type SaleDiscountRequest struct {
	DiscountType DiscountType    `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED"`
	Value        decimal.Decimal `json:"value"`
	Reason       string          `json:"reason" validate:"required,max=240"`
}

type PaymentInput struct {
	Method             PaymentMethod   `json:"method" validate:"required,oneof=CASH POS CARD_TRANSFER"`
	AmountApplied      decimal.Decimal `json:"amount_applied"`
	TipAmount          decimal.Decimal `json:"tip_amount"`
	DestinationAccount string          `json:"destination_account,omitempty"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty" validate:"max=120"`
}

type CloseSaleRequest struct {
	TaxAmount      decimal.Decimal     `json:"tax_amount"`
	DiscountAmount decimal.NullDecimal `json:"discount_amount"`
	Payments       []PaymentInput      `json:"payments,omitempty" validate:"dive"`
}

type CloseSaleResponse struct {
	Sale     Sale          `json:"sale"`
	Invoice  *SaleInvoice  `json:"invoice,omitempty"`
	Payments []SalePayment `json:"payments"`
}

type CancelSaleRequest struct {
	Reason string `json:"reason"`
}

type CreateInvoiceRequest struct {
	SaleID    string              `json:"sale_id" validate:"required"`
	TaxAmount decimal.NullDecimal `json:"tax_amount"`
}

type IssuePaymentRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
	PaymentInput
}

type PaymentResponse struct {
	Payment   SalePayment `json:"payment"`
	Invoice   SaleInvoice `json:"invoice"`
	Duplicate bool        `json:"duplicate"`
}

type RestockItemInput struct {
	SaleItemID string          `json:"sale_item_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type CreateRefundRequest struct {
	PaymentID    string             `json:"payment_id" validate:"required"`
	Amount       decimal.Decimal    `json:"amount"`
	Reason       string             `json:"reason" validate:"required,max=240"`
	Method       PaymentMethod      `json:"method,omitempty" validate:"omitempty,oneof=CASH POS CARD_TRANSFER"`
	RestockItems []RestockItemInput `json:"restock_items,omitempty" validate:"dive"`
}

type RefundResponse struct {
	Refund    SaleRefund   `json:"refund"`
	Payment   SalePayment  `json:"payment"`
	Invoice   SaleInvoice  `json:"invoice"`
	Restocked []StockEntry `json:"restocked,omitempty"`
}

type InvoiceDetail struct {
	Invoice  SaleInvoice     `json:"invoice"`
	Payments []SalePayment   `json:"payments"`
	Refunds  []SaleRefund    `json:"refunds"`
	Paid     decimal.Decimal `json:"paid"`
}

type CreateDailyReportRequest struct {
	ReportDate   string          `json:"report_date" validate:"required,datetime=2006-01-02"`
	OpeningFloat decimal.Decimal `json:"opening_float"`
	Notes        string          `json:"notes" validate:"max=2000"`
}

type PaymentMethodActualInput struct {
	Method       PaymentMethod   `json:"method" validate:"required,oneof=CASH POS CARD_TRANSFER"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
	Notes        string          `json:"notes" validate:"max=500"`
}

type UpdateDailyReportRequest struct {
	ClosingCashCounted decimal.NullDecimal        `json:"closing_cash_counted"`
	LaborCosts         decimal.NullDecimal        `json:"labor_costs"`
	OperatingExpenses  decimal.NullDecimal        `json:"operating_expenses"`
	Notes              *string                    `json:"notes,omitempty" validate:"omitempty,max=2000"`
	PaymentMethods     []PaymentMethodActualInput `json:"payment_methods" validate:"dive"`
}

type DisputeDailyReportRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role" validate:"required,oneof=staff manager accountant admin"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
