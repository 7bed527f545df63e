package payment

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// ServiceInterface defines the contract for a payment processing service.
// Refunds are recorded as an order payment-status marker only; reconciling
// them against the gateway is a separate concern.
type ServiceInterface interface {
	ProcessPayment(ctx context.Context, userID string, amount float64, paymentMethodID string) (string, error)
}

// StripeService charges through Stripe when an API key is configured and
// simulates success otherwise (local development, tests).
type StripeService struct {
	sc *client.API
}

func NewStripeService(apiKey string) *StripeService {
	s := &StripeService{}
	if apiKey != "" {
		s.sc = &client.API{}
		s.sc.Init(apiKey, nil)
	}
	return s
}

// ProcessPayment captures amount from the given payment method and returns
// the gateway transaction id.
func (s *StripeService) ProcessPayment(ctx context.Context, userID string, amount float64, paymentMethodID string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("invalid payment amount: %.2f", amount)
	}
	if s.sc == nil {
		// No gateway configured; simulate a successful charge.
		return "sim_" + paymentMethodID, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(amount * 100)),
		Currency:      stripe.String(string(stripe.CurrencyINR)),
		PaymentMethod: stripe.String(paymentMethodID),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx

	intent, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("payment.ProcessPayment: %w", err)
	}
	return intent.ID, nil
}
