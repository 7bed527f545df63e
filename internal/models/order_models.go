package models

import "time"

// OrderStatus is the lifecycle state of an order. Transitions between
// statuses are owned exclusively by the order service's state machine.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is derived from order transitions, never set directly by
// callers.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// LineItem is one (menu item, quantity) pair within an order. The unit price
// is captured at order time and never recalculated, even if the catalog price
// changes later.
type LineItem struct {
	ID               string  `json:"id,omitempty"`
	MenuItemID       string  `json:"menu_item_id"`
	Name             string  `json:"name"`
	Quantity         int     `json:"quantity"`
	UnitPriceAtOrder float64 `json:"unit_price_at_order"`
}

// Total returns the line total at the captured price.
func (li LineItem) Total() float64 {
	return li.UnitPriceAtOrder * float64(li.Quantity)
}

// StatusEntry is one record of the append-only status history. The history
// is only ever appended to; the last entry always matches the order's
// current status.
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     string      `json:"actor"`
	Note      string      `json:"note"`
}

// OTPState holds the delivery verification code bound to an order. The zero
// value means no OTP has been issued.
type OTPState struct {
	Code     string    `json:"-"`
	Expiry   time.Time `json:"-"`
	Attempts int       `json:"-"`
}

// Issued reports whether an OTP is currently held.
func (o OTPState) Issued() bool { return o.Code != "" }

// Order is the central entity of the system.
type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
	ServiceID   string `json:"service_id"`

	LineItems []LineItem `json:"items"`

	Subtotal       float64 `json:"subtotal"`
	TaxAmount      float64 `json:"tax_amount"`
	DeliveryCharge float64 `json:"delivery_charge"`
	DiscountAmount float64 `json:"discount_amount"`
	TotalAmount    float64 `json:"total_amount"`

	Status        OrderStatus   `json:"status"`
	StatusHistory []StatusEntry `json:"status_history"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	AssignedTo *string `json:"assigned_to,omitempty"`

	// OTP fields are persisted but only exposed to API consumers while the
	// order is out for delivery (see OrderView).
	OTP OTPState `json:"-"`

	DeliveryInstructions string     `json:"delivery_instructions,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	DeliveredAt          *time.Time `json:"delivered_at,omitempty"`
}

// OrderView is the API representation of an order. DeliveryOTP and OTPExpiry
// are populated only during the out_for_delivery window.
type OrderView struct {
	*Order
	DeliveryOTP string     `json:"delivery_otp,omitempty"`
	OTPExpiry   *time.Time `json:"otp_expiry,omitempty"`
}

// NewOrderView redacts OTP fields outside the out_for_delivery window.
func NewOrderView(o *Order) *OrderView {
	v := &OrderView{Order: o}
	if o.Status == StatusOutForDelivery && o.OTP.Issued() {
		v.DeliveryOTP = o.OTP.Code
		expiry := o.OTP.Expiry
		v.OTPExpiry = &expiry
	}
	return v
}

// Totals is the price breakdown computed by the pricing engine.
// TotalAmount = Subtotal + TaxAmount + DeliveryCharge - DiscountAmount.
type Totals struct {
	Subtotal       float64 `json:"subtotal"`
	TaxAmount      float64 `json:"tax"`
	DeliveryCharge float64 `json:"delivery_charge"`
	DiscountAmount float64 `json:"discount"`
	TotalAmount    float64 `json:"total"`
}

// CartLine is a single item reference in an incoming order request.
type CartLine struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	Quantity   int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest is the payload for placing a new order.
type CreateOrderRequest struct {
	ServiceID            string     `json:"service_id" validate:"required"`
	Items                []CartLine `json:"items" validate:"required,min=1,dive"`
	DeliveryInstructions string     `json:"delivery_instructions,omitempty"`
}

// CalculateOrderRequest previews pricing without creating an order. It must
// produce the same totals that creation would.
type CalculateOrderRequest struct {
	ServiceID string     `json:"service_id" validate:"required"`
	Items     []CartLine `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusRequest advances an order along the lifecycle.
type UpdateStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
	Note   string      `json:"note,omitempty"`
}

// CancelOrderRequest carries the optional cancellation reason.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PayOrderRequest settles an order up front through the payment provider.
type PayOrderRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// DeliverOrderRequest completes a delivery. The OTP must verify in the same
// call; there is no way to set the delivered status without it.
type DeliverOrderRequest struct {
	OTP string `json:"otp" validate:"required,numeric"`
}

// AssignOrderRequest binds an order to a team member.
type AssignOrderRequest struct {
	TeamMemberID string `json:"team_member_id" validate:"required"`
}

// TrackingStage is one step of the delivery progress projection.
type TrackingStage struct {
	Status    OrderStatus `json:"status"`
	Reached   bool        `json:"reached"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

// TrackingView is the customer-facing progress summary derived from the
// status history.
type TrackingView struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Status      OrderStatus     `json:"status"`
	Stages      []TrackingStage `json:"stages"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

// OrderStatistics is the admin summary over all orders.
type OrderStatistics struct {
	TotalOrders        int                 `json:"total_orders"`
	TotalRevenue       float64             `json:"total_revenue"`
	AverageOrderValue  float64             `json:"avg_order_value"`
	StatusDistribution map[OrderStatus]int `json:"status_distribution"`
}
