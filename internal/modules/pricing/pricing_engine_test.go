package pricing

import (
	"errors"
	"testing"

	"ordering-and-delivery/internal/models"
)

func newTestEngine() *Engine {
	return NewEngine(Config{TaxRate: 0.18, FreeDeliveryThreshold: 500})
}

// Two items ($100 x2, $50 x1), 18% tax, $20 delivery fee, $500 free-delivery
// threshold, no minimum: subtotal=250, tax=45, delivery=20, total=315.
func TestQuoteBreakdown(t *testing.T) {
	e := newTestEngine()
	svc := &models.Service{DeliveryFee: 20, MinOrderAmount: 0}
	lines := []models.ResolvedLine{
		{MenuItemID: "m1", Quantity: 2, UnitPrice: 100},
		{MenuItemID: "m2", Quantity: 1, UnitPrice: 50},
	}

	got, err := e.Quote(lines, svc, 0)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if got.Subtotal != 250 {
		t.Errorf("Subtotal = %.2f; want 250", got.Subtotal)
	}
	if got.TaxAmount != 45 {
		t.Errorf("TaxAmount = %.2f; want 45", got.TaxAmount)
	}
	if got.DeliveryCharge != 20 {
		t.Errorf("DeliveryCharge = %.2f; want 20", got.DeliveryCharge)
	}
	if got.TotalAmount != 315 {
		t.Errorf("TotalAmount = %.2f; want 315", got.TotalAmount)
	}
}

// total == subtotal + tax + delivery - discount must hold for arbitrary carts.
func TestQuoteTotalIdentity(t *testing.T) {
	e := newTestEngine()
	svc := &models.Service{DeliveryFee: 35.5, MinOrderAmount: 0}
	carts := [][]models.ResolvedLine{
		{{Quantity: 1, UnitPrice: 9.99}},
		{{Quantity: 3, UnitPrice: 33.33}, {Quantity: 2, UnitPrice: 0.01}},
		{{Quantity: 7, UnitPrice: 120.75}, {Quantity: 1, UnitPrice: 5}},
	}
	for i, lines := range carts {
		got, err := e.Quote(lines, svc, 10)
		if err != nil {
			t.Fatalf("cart %d: Quote error: %v", i, err)
		}
		want := roundMoney(got.Subtotal + got.TaxAmount + got.DeliveryCharge - got.DiscountAmount)
		if got.TotalAmount != want {
			t.Errorf("cart %d: TotalAmount = %.2f; want %.2f", i, got.TotalAmount, want)
		}
	}
}

func TestQuoteDeterministic(t *testing.T) {
	e := newTestEngine()
	svc := &models.Service{DeliveryFee: 20}
	lines := []models.ResolvedLine{{Quantity: 2, UnitPrice: 149.5}}

	first, err := e.Quote(lines, svc, 0)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	second, err := e.Quote(lines, svc, 0)
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if first != second {
		t.Errorf("Quote not deterministic: %+v vs %+v", first, second)
	}
}

func TestQuoteWaivesDeliveryAtThreshold(t *testing.T) {
	e := newTestEngine()
	svc := &models.Service{DeliveryFee: 20}

	below, _ := e.Quote([]models.ResolvedLine{{Quantity: 1, UnitPrice: 499.99}}, svc, 0)
	if below.DeliveryCharge != 20 {
		t.Errorf("below threshold: DeliveryCharge = %.2f; want 20", below.DeliveryCharge)
	}

	at, _ := e.Quote([]models.ResolvedLine{{Quantity: 1, UnitPrice: 500}}, svc, 0)
	if at.DeliveryCharge != 0 {
		t.Errorf("at threshold: DeliveryCharge = %.2f; want 0", at.DeliveryCharge)
	}
}

func TestQuoteBelowMinimumOrder(t *testing.T) {
	e := newTestEngine()
	svc := &models.Service{DeliveryFee: 20, MinOrderAmount: 100}

	_, err := e.Quote([]models.ResolvedLine{{Quantity: 1, UnitPrice: 60}}, svc, 0)
	if !errors.Is(err, models.ErrBelowMinimumOrder) {
		t.Fatalf("Quote = %v; want ErrBelowMinimumOrder", err)
	}
	var be *models.BelowMinimumOrderError
	if !errors.As(err, &be) {
		t.Fatalf("error %v is not a BelowMinimumOrderError", err)
	}
	if be.Subtotal != 60 || be.Minimum != 100 {
		t.Errorf("error carries subtotal=%.2f minimum=%.2f; want 60/100", be.Subtotal, be.Minimum)
	}
}
