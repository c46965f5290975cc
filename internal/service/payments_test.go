package service

import (
	"testing"
	"time"

	"cafepos/backend/internal/domain"
)

// invoicedSale closes a one-line sale of a plain menu item at price and
// issues its invoice.
func (f *fixture) invoicedSale(t *testing.T, price string) domain.SaleInvoice {
	t.Helper()
	item := f.plainMenu(t, "Item "+price, price)
	sale := f.openSale(t, domain.SaleItemInput{MenuID: item.ID, Quantity: dec("1")})
	f.closeSale(t, sale.ID, domain.CloseSaleRequest{})
	invoice, err := f.svc.CreateInvoice(f.staff, domain.CreateInvoiceRequest{SaleID: sale.ID})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return invoice
}

func (f *fixture) pay(t *testing.T, invoiceID string, input domain.PaymentInput) domain.PaymentResponse {
	t.Helper()
	resp, err := f.svc.IssuePayment(f.staff, domain.IssuePaymentRequest{InvoiceID: invoiceID, PaymentInput: input})
	if err != nil {
		t.Fatalf("issue payment: %v", err)
	}
	return resp
}

func TestOverpaymentWithTipLimitsRefund(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoicedSale(t, "110")

	resp := f.pay(t, invoice.ID, domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("110"), TipAmount: dec("15")})
	requireDecimal(t, "amount total", resp.Payment.AmountTotal, "125")
	if resp.Invoice.Status != domain.InvoicePaid {
		t.Fatalf("expected PAID, got %s", resp.Invoice.Status)
	}

	_, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{PaymentID: resp.Payment.ID, Amount: dec("120"), Reason: "tip back"})
	requireKind(t, err, domain.ErrExceeds)

	_, err = f.svc.CreateRefund(f.staff, domain.CreateRefundRequest{PaymentID: resp.Payment.ID, Amount: dec("10"), Reason: "complaint"})
	requireKind(t, err, domain.ErrPermission)
}

func TestPartialPaymentsAndRefunds(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoicedSale(t, "100")

	first := f.pay(t, invoice.ID, domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("60")})
	if first.Invoice.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("expected PARTIALLY_PAID after first payment, got %s", first.Invoice.Status)
	}
	second := f.pay(t, invoice.ID, domain.PaymentInput{Method: domain.MethodPOS, AmountApplied: dec("40")})
	if second.Invoice.Status != domain.InvoicePaid {
		t.Fatalf("expected PAID after second payment, got %s", second.Invoice.Status)
	}

	refund, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{PaymentID: second.Payment.ID, Amount: dec("20"), Reason: "cold drink"})
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if refund.Payment.Status != domain.PaymentCompleted || refund.Invoice.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("unexpected state after first refund: payment %s invoice %s", refund.Payment.Status, refund.Invoice.Status)
	}
	if refund.Refund.Method != domain.MethodPOS {
		t.Fatalf("refund method must default to the payment method, got %s", refund.Refund.Method)
	}

	refund, err = f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{PaymentID: second.Payment.ID, Amount: dec("20"), Reason: "cold drink", Method: domain.MethodCash})
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if refund.Payment.Status != domain.PaymentVoid || refund.Invoice.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("unexpected state after second refund: payment %s invoice %s", refund.Payment.Status, refund.Invoice.Status)
	}

	detail, err := f.svc.GetInvoice(f.staff, invoice.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	requireDecimal(t, "paid", detail.Paid, "60")
	if len(detail.Payments) != 2 || len(detail.Refunds) != 2 {
		t.Fatalf("expected 2 payments and 2 refunds, got %d and %d", len(detail.Payments), len(detail.Refunds))
	}

	_, err = f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{PaymentID: second.Payment.ID, Amount: dec("1"), Reason: "again"})
	requireKind(t, err, domain.ErrStateInvalid)

	sale, err := f.svc.GetSale(f.staff, invoice.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.PaymentStatus != domain.PaymentPartiallyPaid {
		t.Fatalf("sale must mirror invoice status, got %s", sale.PaymentStatus)
	}
}

func TestPaymentValidation(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoicedSale(t, "50000")

	cases := []struct {
		name  string
		input domain.PaymentInput
	}{
		{"zero amount", domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("0")}},
		{"negative tip", domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("10"), TipAmount: dec("-1")}},
		{"transfer without destination", domain.PaymentInput{Method: domain.MethodCardTransfer, AmountApplied: dec("10")}},
		{"transfer to malformed card", domain.PaymentInput{Method: domain.MethodCardTransfer, AmountApplied: dec("10"), DestinationAccount: "1234-5678"}},
		{"cash with destination", domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("10"), DestinationAccount: "4111111111111111"}},
		{"unknown method", domain.PaymentInput{Method: "CHEQUE", AmountApplied: dec("10")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.IssuePayment(f.staff, domain.IssuePaymentRequest{InvoiceID: invoice.ID, PaymentInput: tc.input})
			requireKind(t, err, domain.ErrValidation)
		})
	}

	resp := f.pay(t, invoice.ID, domain.PaymentInput{Method: domain.MethodCardTransfer, AmountApplied: dec("50000"), DestinationAccount: "4111 1111 1111 1111"})
	if resp.Payment.DestinationAccount != "4111111111111111" {
		t.Fatalf("expected normalized destination, got %q", resp.Payment.DestinationAccount)
	}
}

func TestIssuePaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	invoice := f.invoicedSale(t, "100")
	input := domain.PaymentInput{Method: domain.MethodCash, AmountApplied: dec("60"), IdempotencyKey: "till-1-0001"}

	first := f.pay(t, invoice.ID, input)
	if first.Duplicate {
		t.Fatalf("first payment must not be a duplicate")
	}
	replay := f.pay(t, invoice.ID, input)
	if !replay.Duplicate || replay.Payment.ID != first.Payment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Payment.ID, replay.Payment)
	}

	payments, err := f.svc.ListPayments(f.staff, invoice.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected one stored payment, got %d", len(payments))
	}

	other := f.invoicedSale(t, "200")
	_, err = f.svc.IssuePayment(f.staff, domain.IssuePaymentRequest{InvoiceID: other.ID, PaymentInput: input})
	requireKind(t, err, domain.ErrConflict)
}

func TestRefundRestocksRecipeLessItems(t *testing.T) {
	f := newFixture(t)
	croissant := f.product(t, "Croissant", domain.ProductMenuItem, true, true)
	f.purchase(t, croissant.ID, "5", "12000", testNow.Add(-2*time.Hour))
	item := f.menu(t, croissant.ID, "Croissant", "30000")
	milk := f.product(t, "Milk", domain.ProductRaw, false, true)
	f.purchase(t, milk.ID, "5", "18000", testNow.Add(-2*time.Hour))
	_, latte := f.menuWithRecipe(t, "Latte", "45000", domain.RecipeComponentInput{ProductID: milk.ID, Quantity: dec("0.2")})

	sale := f.openSale(t,
		domain.SaleItemInput{MenuID: item.ID, Quantity: dec("2")},
		domain.SaleItemInput{MenuID: latte.ID, Quantity: dec("1")},
	)
	closed := f.closeSale(t, sale.ID, domain.CloseSaleRequest{Payments: []domain.PaymentInput{
		{Method: domain.MethodCash, AmountApplied: dec("105000")},
	}})
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "3")

	var croissantLine, latteLine string
	for _, line := range closed.Sale.Items {
		switch line.MenuItemID {
		case item.ID:
			croissantLine = line.ID
		case latte.ID:
			latteLine = line.ID
		}
	}

	_, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{
		PaymentID:    closed.Payments[0].ID,
		Amount:       dec("45000"),
		Reason:       "latte spilled",
		RestockItems: []domain.RestockItemInput{{SaleItemID: latteLine, Quantity: dec("1")}},
	})
	requireKind(t, err, domain.ErrValidation)

	resp, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{
		PaymentID:    closed.Payments[0].ID,
		Amount:       dec("30000"),
		Reason:       "returned unopened",
		RestockItems: []domain.RestockItemInput{{SaleItemID: croissantLine, Quantity: dec("1")}},
	})
	if err != nil {
		t.Fatalf("refund with restock: %v", err)
	}
	if len(resp.Restocked) != 1 || resp.Restocked[0].MovementType != domain.MovementReturnIn {
		t.Fatalf("expected one RETURN_IN entry, got %+v", resp.Restocked)
	}
	requireDecimal(t, "restock unit cost", resp.Restocked[0].UnitCost.Decimal, "12000")
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "4")
	if resp.Invoice.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("expected PARTIALLY_PAID, got %s", resp.Invoice.Status)
	}
}

func TestRestockIsCappedBySoldQuantityAcrossRefunds(t *testing.T) {
	f := newFixture(t)
	croissant := f.product(t, "Croissant", domain.ProductMenuItem, true, true)
	f.purchase(t, croissant.ID, "5", "12000", testNow.Add(-2*time.Hour))
	item := f.menu(t, croissant.ID, "Croissant", "30000")

	sale := f.openSale(t, domain.SaleItemInput{MenuID: item.ID, Quantity: dec("2")})
	closed := f.closeSale(t, sale.ID, domain.CloseSaleRequest{Payments: []domain.PaymentInput{
		{Method: domain.MethodCash, AmountApplied: dec("60000")},
	}})
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "3")
	line := closed.Sale.Items[0].ID
	paymentID := closed.Payments[0].ID

	refund := func(restock ...domain.RestockItemInput) error {
		_, err := f.svc.CreateRefund(f.manager, domain.CreateRefundRequest{
			PaymentID:    paymentID,
			Amount:       dec("10000"),
			Reason:       "returned unopened",
			RestockItems: restock,
		})
		return err
	}

	if err := refund(domain.RestockItemInput{SaleItemID: line, Quantity: dec("1")}); err != nil {
		t.Fatalf("first restock: %v", err)
	}
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "4")

	requireKind(t, refund(domain.RestockItemInput{SaleItemID: line, Quantity: dec("2")}), domain.ErrExceeds)
	requireKind(t, refund(
		domain.RestockItemInput{SaleItemID: line, Quantity: dec("1")},
		domain.RestockItemInput{SaleItemID: line, Quantity: dec("1")},
	), domain.ErrExceeds)
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "4")

	if err := refund(domain.RestockItemInput{SaleItemID: line, Quantity: dec("1")}); err != nil {
		t.Fatalf("second restock: %v", err)
	}
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "5")
	requireKind(t, refund(domain.RestockItemInput{SaleItemID: line, Quantity: dec("1")}), domain.ErrExceeds)

	reloaded, err := f.svc.GetSale(f.manager, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	requireDecimal(t, "restocked quantity", reloaded.Items[0].RestockedQuantity, "2")
	requireDecimal(t, "croissant stock", f.available(t, croissant.ID), "5")
}
