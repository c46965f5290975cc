package memory

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cafepos/backend/internal/domain"
)

func (r *repo) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, exists := r.data.sales[sale.ID]; exists {
		return nil, conflict("sale", sale.ID)
	}
	sale.Items = nil
	sale.Discounts = nil
	r.data.sales[sale.ID] = sale
	return &sale, nil
}

func (r *repo) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	sale, ok := r.data.sales[id]
	if !ok {
		return nil, notFound("sale", id)
	}
	sale.Items = r.itemsOf(id)
	sale.Discounts = r.discountsOf(id)
	return &sale, nil
}

func (r *repo) LockSale(ctx context.Context, id string) (*domain.Sale, error) {
	return r.GetSale(ctx, id)
}

func (r *repo) UpdateSale(_ context.Context, sale domain.Sale) error {
	if err := r.writable(); err != nil {
		return err
	}
	existing, ok := r.data.sales[sale.ID]
	if !ok {
		return notFound("sale", sale.ID)
	}
	if sale.InvoiceNumber != existing.InvoiceNumber {
		if sale.InvoiceNumber != "" {
			if owner, taken := r.data.saleInvoiceNos[sale.InvoiceNumber]; taken && owner != sale.ID {
				return conflict("invoice number", sale.InvoiceNumber)
			}
			r.data.saleInvoiceNos[sale.InvoiceNumber] = sale.ID
		}
		if existing.InvoiceNumber != "" {
			delete(r.data.saleInvoiceNos, existing.InvoiceNumber)
		}
	}
	sale.Items = nil
	sale.Discounts = nil
	r.data.sales[sale.ID] = sale
	return nil
}

func (r *repo) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	sales := make([]domain.Sale, 0)
	for _, sale := range r.data.sales {
		if filter.State != "" && sale.State != filter.State {
			continue
		}
		if !inWindow(sale.OpenedAt, filter.From, filter.To) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return compareCreated(b.OpenedAt, b.ID, a.OpenedAt, a.ID)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (r *repo) MaxInvoiceSequence(_ context.Context, prefix string) (int, error) {
	highest := 0
	for number := range r.data.saleInvoiceNos {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
		if err != nil {
			continue
		}
		highest = max(highest, seq)
	}
	return highest, nil
}

func (r *repo) InsertSaleItem(_ context.Context, item domain.SaleItem) (*domain.SaleItem, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.sales[item.SaleID]; !ok {
		return nil, notFound("sale", item.SaleID)
	}
	if _, exists := r.data.saleItems[item.ID]; exists {
		return nil, conflict("sale item", item.ID)
	}
	if item.ParentItemID != "" {
		parent, ok := r.data.saleItems[item.ParentItemID]
		if !ok {
			return nil, notFound("sale item", item.ParentItemID)
		}
		if parent.SaleID != item.SaleID {
			return nil, domain.Integrity(fmt.Sprintf("extra %s and parent %s belong to different sales", item.ID, parent.ID))
		}
	}
	r.data.saleItems[item.ID] = item
	return &item, nil
}

func (r *repo) UpdateSaleItemQuantity(_ context.Context, id string, quantity decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	item, ok := r.data.saleItems[id]
	if !ok {
		return notFound("sale item", id)
	}
	item.Quantity = quantity
	r.data.saleItems[id] = item
	return nil
}

func (r *repo) UpdateSaleItemCost(_ context.Context, id string, materialCost decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	item, ok := r.data.saleItems[id]
	if !ok {
		return notFound("sale item", id)
	}
	item.MaterialCost = materialCost
	r.data.saleItems[id] = item
	return nil
}

func (r *repo) UpdateSaleItemRestocked(_ context.Context, id string, restocked decimal.Decimal) error {
	if err := r.writable(); err != nil {
		return err
	}
	item, ok := r.data.saleItems[id]
	if !ok {
		return notFound("sale item", id)
	}
	if restocked.IsNegative() || restocked.GreaterThan(item.Quantity) {
		return domain.Integrity(fmt.Sprintf("sale item %s restocked %s outside [0, %s]", id, restocked, item.Quantity))
	}
	item.RestockedQuantity = restocked
	r.data.saleItems[id] = item
	return nil
}

func (r *repo) DeleteSaleItem(_ context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	if _, ok := r.data.saleItems[id]; !ok {
		return notFound("sale item", id)
	}
	for childID, child := range r.data.saleItems {
		if child.ParentItemID == id {
			delete(r.data.saleItems, childID)
		}
	}
	delete(r.data.saleItems, id)
	return nil
}

func (r *repo) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	return r.itemsOf(saleID), nil
}

func (r *repo) InsertSaleDiscount(_ context.Context, discount domain.SaleDiscount) (*domain.SaleDiscount, error) {
	if err := r.writable(); err != nil {
		return nil, err
	}
	if _, ok := r.data.sales[discount.SaleID]; !ok {
		return nil, notFound("sale", discount.SaleID)
	}
	r.data.discounts[discount.ID] = discount
	return &discount, nil
}

func (r *repo) ListSaleDiscounts(_ context.Context, saleID string) ([]domain.SaleDiscount, error) {
	return r.discountsOf(saleID), nil
}

func (r *repo) itemsOf(saleID string) []domain.SaleItem {
	items := make([]domain.SaleItem, 0)
	for _, item := range r.data.saleItems {
		if item.SaleID == saleID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.SaleItem) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return items
}

func (r *repo) discountsOf(saleID string) []domain.SaleDiscount {
	discounts := make([]domain.SaleDiscount, 0)
	for _, discount := range r.data.discounts {
		if discount.SaleID == saleID {
			discounts = append(discounts, discount)
		}
	}
	slices.SortFunc(discounts, func(a, b domain.SaleDiscount) int {
		return compareCreated(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	return discounts
}
