package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/iliyamo/event-booking/internal/model"
)

// StripeConfig holds configuration for the Stripe gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// StripeGateway creates a PaymentIntent per booking and reads the result
// from signed payment_intent.* webhooks.  The booking ID travels in the
// intent's metadata.
type StripeGateway struct {
	cfg       StripeConfig
	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "inr"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)

	// Set Stripe API key globally
	stripe.Key = cfg.SecretKey
	return &StripeGateway{cfg: cfg, newIntent: paymentintent.New}, nil
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Checkout(_ context.Context, b model.Booking) (*Checkout, error) {
	// Stripe expects the smallest currency unit.
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(b.TotalAmount * 100),
		Currency: stripe.String(g.cfg.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(fmt.Sprintf("%s booking %s", b.Type, b.ID)),
		Metadata: map[string]string{
			"booking_id":   b.ID,
			"booking_type": string(b.Type),
			"user_id":      b.UserID,
		},
	}
	if b.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(b.Customer.Email)
	}
	pi, err := g.newIntent(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &Checkout{
		Gateway:      g.Name(),
		OrderID:      b.ID,
		Amount:       b.TotalAmount,
		Currency:     g.cfg.Currency,
		ClientSecret: pi.ClientSecret,
		GatewayRef:   pi.ID,
	}, nil
}

// ParseCallback verifies the Stripe-Signature header and maps
// payment_intent.succeeded to success and payment_intent.canceled to
// failure.  payment_intent.payment_failed only ends one attempt; the
// intent stays open for the buyer to retry, so it is ignored along with
// every other event type.
func (g *StripeGateway) ParseCallback(header http.Header, body []byte) (model.GatewayOutcome, error) {
	sig := header.Get("Stripe-Signature")
	if sig == "" {
		return model.GatewayOutcome{}, fmt.Errorf("%w: missing Stripe-Signature header", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(body, sig, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return model.GatewayOutcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status model.OutcomeStatus
	switch event.Type {
	case "payment_intent.succeeded":
		status = model.OutcomeSuccess
	case "payment_intent.canceled":
		status = model.OutcomeFailure
	default:
		return model.GatewayOutcome{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, event.Type)
	}
	if event.Data == nil {
		return model.GatewayOutcome{}, fmt.Errorf("%w: event without data", ErrOutcomeUnknown)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return model.GatewayOutcome{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	bookingID := pi.Metadata["booking_id"]
	if bookingID == "" {
		return model.GatewayOutcome{}, fmt.Errorf("%w: payment intent %s has no booking_id", ErrOutcomeUnknown, pi.ID)
	}

	out := model.GatewayOutcome{
		OrderID:    bookingID,
		Status:     status,
		GatewayRef: pi.ID,
		Message:    string(pi.Status),
		Raw:        append(json.RawMessage(nil), event.Data.Raw...),
	}
	amount := pi.Amount
	if status == model.OutcomeSuccess && pi.AmountReceived > 0 {
		amount = pi.AmountReceived
	}
	out.Amount = amount / 100
	if len(pi.PaymentMethodTypes) > 0 {
		out.Method = pi.PaymentMethodTypes[0]
	}
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		out.Message = pi.LastPaymentError.Msg
	}
	return out, nil
}
