package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductRaw        ProductType = "RAW"
	ProductProcessed  ProductType = "PROCESSED"
	ProductMenuItem   ProductType = "MENU_ITEM"
	ProductConsumable ProductType = "CONSUMABLE"
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductRaw, ProductProcessed, ProductMenuItem, ProductConsumable:
		return true
	}
	return false
}

type Product struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Type               ProductType         `json:"type"`
	IsCountable        bool                `json:"is_countable"`
	TracksInventory    bool                `json:"tracks_inventory"`
	IsActive           bool                `json:"is_active"`
	ActiveRecipeID     string              `json:"active_recipe_id,omitempty"`
	LastPurchasedPrice decimal.NullDecimal `json:"last_purchased_price"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type Recipe struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	ProducedProductID string            `json:"produced_product_id"`
	Instruction       string            `json:"instruction"`
	Components        []RecipeComponent `json:"components"`
	CreatedAt         time.Time         `json:"created_at"`
}

type RecipeComponent struct {
	RecipeID           string          `json:"recipe_id"`
	ComponentProductID string          `json:"component_product_id"`
	Quantity           decimal.Decimal `json:"quantity"`
}

// MenuItem is the price authority for sellable products. Sale items snapshot
// Price at the time they are added.
type MenuItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type MovementType string

const (
	MovementPurchaseIn    MovementType = "PURCHASE_IN"
	MovementProductionIn  MovementType = "PRODUCTION_IN"
	MovementReturnIn      MovementType = "RETURN_IN"
	MovementAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementProductionOut MovementType = "PRODUCTION_OUT"
	MovementSaleOut       MovementType = "SALE_OUT"
	MovementReturnOut     MovementType = "RETURN_OUT"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementWasteOut      MovementType = "WASTE_OUT"
)

func (m MovementType) Inbound() bool {
	switch m {
	case MovementPurchaseIn, MovementProductionIn, MovementReturnIn, MovementAdjustmentIn:
		return true
	}
	return false
}

func (m MovementType) Valid() bool {
	switch m {
	case MovementPurchaseIn, MovementProductionIn, MovementReturnIn, MovementAdjustmentIn,
		MovementProductionOut, MovementSaleOut, MovementReturnOut, MovementAdjustmentOut, MovementWasteOut:
		return true
	}
	return false
}

type SourceKind string

const (
	SourcePurchase   SourceKind = "purchase"
	SourceProduction SourceKind = "production"
	SourceSaleItem   SourceKind = "sale_item"
	SourceAdjustment SourceKind = "adjustment"
	SourceWaste      SourceKind = "waste"
	SourceRefund     SourceKind = "refund"
)

// SourceRef points at the document a stock movement came from. It is a weak
// reference: removing the document leaves the ledger row in place.
type SourceRef struct {
	Kind SourceKind `json:"kind,omitempty"`
	ID   string     `json:"id,omitempty"`
}

type StockEntry struct {
	ID                string              `json:"id"`
	ProductID         string              `json:"product_id"`
	MovementType      MovementType        `json:"movement_type"`
	InitialQuantity   decimal.Decimal     `json:"initial_quantity"`
	RemainingQuantity decimal.Decimal     `json:"remaining_quantity"`
	UnitCost          decimal.NullDecimal `json:"unit_cost"`
	Source            SourceRef           `json:"source"`
	CreatedAt         time.Time           `json:"created_at"`
	IsDepleted        bool                `json:"is_depleted"`
}

type SaleState string

const (
	SaleOpen     SaleState = "OPEN"
	SaleClosed   SaleState = "CLOSED"
	SaleCanceled SaleState = "CANCELED"
)

type SaleType string

const (
	SaleDineIn   SaleType = "DINE_IN"
	SaleTakeaway SaleType = "TAKEAWAY"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
)

type Sale struct {
	ID                 string          `json:"id"`
	State              SaleState       `json:"state"`
	SaleType           SaleType        `json:"sale_type"`
	Table              string          `json:"table,omitempty"`
	GuestCount         int             `json:"guest_count,omitempty"`
	Guest              string          `json:"guest,omitempty"`
	OpenedBy           string          `json:"opened_by"`
	ClosedBy           string          `json:"closed_by,omitempty"`
	CanceledBy         string          `json:"canceled_by,omitempty"`
	SubtotalAmount     decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	GrossProfit        decimal.Decimal `json:"gross_profit"`
	GrossMarginPercent decimal.Decimal `json:"gross_margin_percent"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	OpenedAt           time.Time       `json:"opened_at"`
	ClosedAt           *time.Time      `json:"closed_at,omitempty"`
	CanceledAt         *time.Time      `json:"canceled_at,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	Note               string          `json:"note"`
	InvoiceNumber      string          `json:"invoice_number,omitempty"`
	Items              []SaleItem      `json:"items,omitempty"`
	Discounts          []SaleDiscount  `json:"discounts,omitempty"`
}

type SaleItem struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	ProductID    string          `json:"product_id"`
	MenuItemID   string          `json:"menu_item_id,omitempty"`
	ParentItemID string          `json:"parent_item_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	MaterialCost decimal.Decimal `json:"material_cost"`
	// RestockedQuantity is the part of Quantity already returned to stock by
	// refunds.
	RestockedQuantity decimal.Decimal `json:"restocked_quantity"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (i SaleItem) IsExtra() bool {
	return i.ParentItemID != ""
}

func (i SaleItem) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type SaleDiscount struct {
	ID           string          `json:"id"`
	SaleID       string          `json:"sale_id"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
	Reason       string          `json:"reason"`
	AppliedBy    string          `json:"applied_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// AmountOn resolves the discount against a subtotal.
func (d SaleDiscount) AmountOn(subtotal decimal.Decimal) decimal.Decimal {
	if d.DiscountType == DiscountPercentage {
		return Money(subtotal.Mul(d.Value).Div(hundred))
	}
	return Money(d.Value)
}

type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "UNPAID"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceVoid          InvoiceStatus = "VOID"
)

type SaleInvoice struct {
	ID             string          `json:"id"`
	SaleID         string          `json:"sale_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Status         InvoiceStatus   `json:"status"`
	IssuedBy       string          `json:"issued_by"`
	IssuedAt       time.Time       `json:"issued_at"`
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodPOS          PaymentMethod = "POS"
	MethodCardTransfer PaymentMethod = "CARD_TRANSFER"
)

// PaymentMethods lists every method in report order.
var PaymentMethods = []PaymentMethod{MethodCash, MethodPOS, MethodCardTransfer}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodPOS, MethodCardTransfer:
		return true
	}
	return false
}

type PaymentState string

const (
	PaymentCompleted PaymentState = "COMPLETED"
	PaymentVoid      PaymentState = "VOID"
	PaymentRefunded  PaymentState = "REFUNDED"
)

type SalePayment struct {
	ID                 string          `json:"id"`
	InvoiceID          string          `json:"invoice_id"`
	Method             PaymentMethod   `json:"method"`
	AmountApplied      decimal.Decimal `json:"amount_applied"`
	TipAmount          decimal.Decimal `json:"tip_amount"`
	AmountTotal        decimal.Decimal `json:"amount_total"`
	DestinationAccount string          `json:"destination_account,omitempty"`
	ReceivedBy         string          `json:"received_by"`
	ReceivedAt         time.Time       `json:"received_at"`
	Status             PaymentState    `json:"status"`
	IdempotencyKey     string          `json:"idempotency_key,omitempty"`
}

type RefundStatus string

const (
	RefundCompleted RefundStatus = "COMPLETED"
	RefundVoid      RefundStatus = "VOID"
)

type SaleRefund struct {
	ID          string          `json:"id"`
	PaymentID   string          `json:"payment_id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      PaymentMethod   `json:"method"`
	Reason      string          `json:"reason"`
	ProcessedBy string          `json:"processed_by"`
	ProcessedAt time.Time       `json:"processed_at"`
	Status      RefundStatus    `json:"status"`
}

type ReportStatus string

const (
	ReportDraft     ReportStatus = "DRAFT"
	ReportSubmitted ReportStatus = "SUBMITTED"
	ReportApproved  ReportStatus = "APPROVED"
	ReportDisputed  ReportStatus = "DISPUTED"
	ReportClosed    ReportStatus = "CLOSED"
)

type DailyReport struct {
	ID                     string                     `json:"id"`
	ReportDate             string                     `json:"report_date"`
	Status                 ReportStatus               `json:"status"`
	OpeningFloat           decimal.Decimal            `json:"opening_float"`
	ClosingCashCounted     decimal.Decimal            `json:"closing_cash_counted"`
	ExpectedTotalSales     decimal.Decimal            `json:"expected_total_sales"`
	ExpectedTotalRefunds   decimal.Decimal            `json:"expected_total_refunds"`
	ExpectedTotalDiscounts decimal.Decimal            `json:"expected_total_discounts"`
	ExpectedTotalTax       decimal.Decimal            `json:"expected_total_tax"`
	ExpectedTotalTips      decimal.Decimal            `json:"expected_total_tips"`
	CostOfGoodsSold        decimal.Decimal            `json:"cost_of_goods_sold"`
	LaborCosts             decimal.Decimal            `json:"labor_costs"`
	OperatingExpenses      decimal.Decimal            `json:"operating_expenses"`
	Notes                  string                     `json:"notes"`
	CreatedBy              string                     `json:"created_by"`
	CreatedAt              time.Time                  `json:"created_at"`
	SubmittedBy            string                     `json:"submitted_by,omitempty"`
	SubmittedAt            *time.Time                 `json:"submitted_at,omitempty"`
	ApprovedBy             string                     `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time                 `json:"approved_at,omitempty"`
	DisputedBy             string                     `json:"disputed_by,omitempty"`
	DisputedAt             *time.Time                 `json:"disputed_at,omitempty"`
	ClosedBy               string                     `json:"closed_by,omitempty"`
	ClosedAt               *time.Time                 `json:"closed_at,omitempty"`
	PaymentMethods         []DailyReportPaymentMethod `json:"payment_methods"`
}

// TotalVariance sums the per-method variances.
func (r DailyReport) TotalVariance() decimal.Decimal {
	total := decimal.Zero
	for _, row := range r.PaymentMethods {
		total = total.Add(row.Variance)
	}
	return total
}

type DailyReportPaymentMethod struct {
	ReportID       string              `json:"report_id"`
	Method         PaymentMethod       `json:"method"`
	ExpectedAmount decimal.Decimal     `json:"expected_amount"`
	ActualAmount   decimal.NullDecimal `json:"actual_amount"`
	Variance       decimal.Decimal     `json:"variance"`
	Notes          string              `json:"notes"`
}

// BusinessDaySummary is the raw aggregation a daily report is generated from.
type BusinessDaySummary struct {
	From            time.Time
	To              time.Time
	ClosedSales     int64
	TotalSales      decimal.Decimal
	TotalDiscounts  decimal.Decimal
	TotalTax        decimal.Decimal
	TotalTips       decimal.Decimal
	TotalRefunds    decimal.Decimal
	CostOfGoodsSold decimal.Decimal
	PaymentsApplied map[PaymentMethod]decimal.Decimal
	RefundsByMethod map[PaymentMethod]decimal.Decimal
}

type SaleFilter struct {
	State SaleState
	From  time.Time
	To    time.Time
	Limit int
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleStaff      = "staff"
	RoleManager    = "manager"
	RoleAccountant = "accountant"
	RoleAdmin      = "admin"
)

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
