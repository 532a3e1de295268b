// Package gateway talks to the external payment providers: it builds the
// outbound checkout for a pending booking and turns the provider's
// asynchronous callback into a verified model.GatewayOutcome.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

var (
	// ErrOutcomeUnknown marks a callback that is malformed or does not say
	// whether the payment succeeded.  The booking must be left pending.
	ErrOutcomeUnknown = errors.New("gateway outcome unknown")
	// ErrInvalidSignature marks a callback that failed authentication.
	ErrInvalidSignature = errors.New("invalid gateway signature")
	// ErrIgnoredEvent marks a well-formed callback that carries no payment
	// outcome (for example a Stripe event type this service does not use).
	ErrIgnoredEvent = errors.New("gateway event ignored")
)

// Checkout is what the client needs to send the buyer to the provider.
// Hosted gateways fill RedirectURL and Fields (an auto-submitting form);
// Stripe fills ClientSecret for Stripe.js.
type Checkout struct {
	Gateway      string            `json:"gateway"`
	OrderID      string            `json:"order_id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	RedirectURL  string            `json:"redirect_url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	GatewayRef   string            `json:"gateway_ref,omitempty"`
}

// Gateway is one payment provider.
type Gateway interface {
	Name() string
	Checkout(ctx context.Context, b model.Booking) (*Checkout, error)
	ParseCallback(header http.Header, body []byte) (model.GatewayOutcome, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider      string // "hosted" or "stripe"
	MerchantID    string
	Secret        string
	CheckoutURL   string
	ReturnURL     string
	Currency      string
	StripeKey     string
	WebhookSecret string
}

// New builds the configured gateway.
func New(cfg Config) (Gateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "hosted":
		return NewHostedGateway(HostedConfig{
			MerchantID:  cfg.MerchantID,
			Secret:      cfg.Secret,
			CheckoutURL: cfg.CheckoutURL,
			ReturnURL:   cfg.ReturnURL,
			Currency:    cfg.Currency,
		})
	case "stripe":
		return NewStripeGateway(StripeConfig{
			SecretKey:     cfg.StripeKey,
			WebhookSecret: cfg.WebhookSecret,
			Currency:      cfg.Currency,
		})
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Provider)
	}
}
