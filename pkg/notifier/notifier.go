// Package notifier delivers best-effort order notifications. Failures are
// logged and never propagate to the order mutation that triggered them.
package notifier

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"ordering-and-delivery/internal/models"
)

// EventType identifies what happened to an order.
type EventType string

const (
	EventOrderCreated      EventType = "order_created"
	EventStatusChanged     EventType = "status_changed"
	EventAssignmentCreated EventType = "assignment_created"
	EventOTPIssued         EventType = "otp_issued"
)

// Event is a fully-formed notification payload. The notifier never reads
// back order state; everything it needs is captured at dispatch time.
type Event struct {
	ID          string
	Type        EventType
	OrderID     string
	OrderNumber string
	Status      models.OrderStatus
	Recipient   models.User
	Agent       *models.User
	OTP         string
	OccurredAt  time.Time
}

// ServiceInterface is the contract for a notification backend.
type ServiceInterface interface {
	Notify(ctx context.Context, event Event) error
}

// Dispatcher sends events in the background so callers never block on or
// fail because of notification delivery.
type Dispatcher struct {
	backend ServiceInterface
	timeout time.Duration
}

func NewDispatcher(backend ServiceInterface) *Dispatcher {
	return &Dispatcher{backend: backend, timeout: 10 * time.Second}
}

// Dispatch fires the event asynchronously. A nil event ID is filled in.
// Errors from the backend are logged at info level and dropped.
func (d *Dispatcher) Dispatch(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.backend.Notify(ctx, event); err != nil {
			log.Printf("notifier: %s for order %s failed: %v", event.Type, event.OrderNumber, err)
		}
	}()
}

// LogNotifier writes events to the process log. Used for local development
// and as a fallback when no email backend is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	log.Printf("notify %s: order %s -> %s (to %s)", event.Type, event.OrderNumber, event.Status, event.Recipient.Email)
	return nil
}
