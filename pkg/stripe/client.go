package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
)

type PaymentIntent = stripe.PaymentIntent

type PaymentIntentRequest struct {
	// amount in the smallest currency unit, paise for INR
	AmountMinor int64
	Currency    string
	Description string
	OrderID     string
	BuyerID     string
}

// Client is the part of the payment gateway checkout needs.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error)
}

type stripeClient struct{}

func NewStripeClient(apiKey string) Client {
	stripe.Key = apiKey

	return &stripeClient{}
}

// PaymentIntent == "planned payment" for an order. The order id doubles as the
// idempotency key so a resubmitted checkout cannot charge twice.
func (s *stripeClient) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:      stripe.Params{Context: ctx},
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("buyer_id", req.BuyerID)
	params.SetIdempotencyKey("order-" + req.OrderID)

	return paymentintent.New(params)
}

func (s *stripeClient) CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{
		Params:             stripe.Params{Context: ctx},
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
	}

	return paymentintent.Cancel(paymentIntentID, params)
}
