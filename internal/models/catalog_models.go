package models

import "time"

// Service is a vendor that customers order from. Fee schedule fields feed
// the pricing engine; opening hours gate order creation.
type Service struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DeliveryFee    float64   `json:"delivery_fee"`
	MinOrderAmount float64   `json:"min_order_amount"`
	IsActive       bool      `json:"is_active"`
	OpeningTime    string    `json:"opening_time"` // HH:MM
	ClosingTime    string    `json:"closing_time"` // HH:MM
	CreatedAt      time.Time `json:"created_at"`
}

// OpenAt reports whether the service accepts orders at t. Empty opening
// hours mean always open.
func (s Service) OpenAt(t time.Time) bool {
	if s.OpeningTime == "" || s.ClosingTime == "" {
		return true
	}
	hhmm := t.Format("15:04")
	return s.OpeningTime <= hhmm && hhmm <= s.ClosingTime
}

// MenuItem is a purchasable catalog entry. DiscountedPrice, when set, takes
// precedence over Price at order time.
type MenuItem struct {
	ID              string    `json:"id"`
	ServiceID       string    `json:"service_id"`
	Name            string    `json:"name"`
	Price           float64   `json:"price"`
	DiscountedPrice *float64  `json:"discounted_price,omitempty"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
}

// UnitPrice returns the effective price for new orders.
func (m MenuItem) UnitPrice() float64 {
	if m.DiscountedPrice != nil {
		return *m.DiscountedPrice
	}
	return m.Price
}

// ResolvedLine is a cart line validated and priced against the catalog.
type ResolvedLine struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  float64
}

// Total returns quantity times unit price.
func (l ResolvedLine) Total() float64 {
	return l.UnitPrice * float64(l.Quantity)
}
