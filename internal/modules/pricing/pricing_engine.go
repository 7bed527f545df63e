package pricing

import (
	"math"

	"ordering-and-delivery/internal/models"
)

// Config is fixed at construction time. Business logic never reads ambient
// process state.
type Config struct {
	TaxRate               float64
	FreeDeliveryThreshold float64
}

// Engine computes order totals from resolved lines and a service's fee
// schedule. It is a pure function of its inputs: the /calculate preview and
// actual order creation must agree for identical carts.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Quote aggregates resolved lines into a price breakdown.
//
//	subtotal = sum(unitPrice * quantity)
//	tax      = subtotal * taxRate
//	delivery = service fee, waived at or above the free-delivery threshold
//	total    = subtotal + tax + delivery - discount
//
// Rejects with BelowMinimumOrderError when the subtotal does not meet the
// service's minimum order amount.
func (e *Engine) Quote(lines []models.ResolvedLine, service *models.Service, discount float64) (models.Totals, error) {
	var subtotal float64
	for _, line := range lines {
		subtotal += line.Total()
	}
	subtotal = roundMoney(subtotal)

	if subtotal < service.MinOrderAmount {
		return models.Totals{}, &models.BelowMinimumOrderError{
			Subtotal: subtotal,
			Minimum:  service.MinOrderAmount,
		}
	}

	tax := roundMoney(subtotal * e.cfg.TaxRate)

	delivery := service.DeliveryFee
	if subtotal >= e.cfg.FreeDeliveryThreshold {
		delivery = 0
	}

	return models.Totals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DeliveryCharge: delivery,
		DiscountAmount: discount,
		TotalAmount:    roundMoney(subtotal + tax + delivery - discount),
	}, nil
}

// roundMoney keeps two decimal places.
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
