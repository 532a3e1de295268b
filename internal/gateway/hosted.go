package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iliyamo/event-booking/internal/model"
)

// HostedConfig configures a redirect-style gateway: the buyer is posted
// to the provider's page and the provider posts the result back.
type HostedConfig struct {
	MerchantID  string
	Secret      string
	CheckoutURL string
	ReturnURL   string
	Currency    string
}

// HostedGateway signs outbound orders and verifies inbound callbacks with
// HMAC-SHA256 over pipe-joined fields.
type HostedGateway struct {
	cfg HostedConfig
}

func NewHostedGateway(cfg HostedConfig) (*HostedGateway, error) {
	if cfg.Secret == "" {
		return nil, errors.New("hosted gateway secret is required")
	}
	if cfg.CheckoutURL == "" {
		return nil, errors.New("hosted gateway checkout url is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &HostedGateway{cfg: cfg}, nil
}

func (g *HostedGateway) Name() string { return "hosted" }

// Sign returns the hex HMAC-SHA256 of the pipe-joined parts.
func (g *HostedGateway) Sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(g.cfg.Secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// callbackSigned lists the callback fields covered by the signature, in
// signing order.  Every field copied into the outcome is among them.
var callbackSigned = []string{"order_id", "order_status", "tracking_id", "amount", "bank_ref_no", "payment_mode", "status_message"}

// SignCallback returns the signature the provider puts on a callback
// carrying fields.  Missing fields sign as empty strings.
func (g *HostedGateway) SignCallback(fields map[string]string) string {
	parts := make([]string, len(callbackSigned))
	for i, k := range callbackSigned {
		parts[i] = fields[k]
	}
	return g.Sign(parts...)
}

func (g *HostedGateway) Checkout(_ context.Context, b model.Booking) (*Checkout, error) {
	amount := strconv.FormatInt(b.TotalAmount, 10)
	fields := map[string]string{
		"merchant_id":   g.cfg.MerchantID,
		"order_id":      b.ID,
		"amount":        amount,
		"currency":      g.cfg.Currency,
		"billing_name":  b.Customer.Name,
		"billing_email": b.Customer.Email,
		"billing_tel":   b.Customer.Phone,
		"redirect_url":  g.cfg.ReturnURL,
	}
	fields["signature"] = g.Sign(g.cfg.MerchantID, b.ID, amount, g.cfg.Currency)
	return &Checkout{
		Gateway:     g.Name(),
		OrderID:     b.ID,
		Amount:      b.TotalAmount,
		Currency:    g.cfg.Currency,
		RedirectURL: g.cfg.CheckoutURL,
		Method:      http.MethodPost,
		Fields:      fields,
	}, nil
}

// ParseCallback accepts the provider's form post (or the same fields as a
// JSON object) and verifies its signature over
// order_id|order_status|tracking_id|amount|bank_ref_no|payment_mode|status_message.
func (g *HostedGateway) ParseCallback(header http.Header, body []byte) (model.GatewayOutcome, error) {
	fields, err := decodeFields(header.Get("Content-Type"), body)
	if err != nil {
		return model.GatewayOutcome{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}

	orderID := fields["order_id"]
	rawStatus := fields["order_status"]
	if orderID == "" || rawStatus == "" {
		return model.GatewayOutcome{}, fmt.Errorf("%w: order_id and order_status are required", ErrOutcomeUnknown)
	}
	want := g.SignCallback(fields)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(fields["signature"]))) {
		return model.GatewayOutcome{}, ErrInvalidSignature
	}

	status, ok := hostedStatus(rawStatus)
	if !ok {
		return model.GatewayOutcome{}, fmt.Errorf("%w: status %q", ErrOutcomeUnknown, rawStatus)
	}
	amount, err := parseAmount(fields["amount"])
	if err != nil {
		return model.GatewayOutcome{}, fmt.Errorf("%w: amount %q", ErrOutcomeUnknown, fields["amount"])
	}
	delete(fields, "signature")
	raw, _ := json.Marshal(fields)

	return model.GatewayOutcome{
		OrderID:    orderID,
		Status:     status,
		GatewayRef: fields["tracking_id"],
		BankRef:    fields["bank_ref_no"],
		Method:     fields["payment_mode"],
		Message:    fields["status_message"],
		Amount:     amount,
		Raw:        raw,
	}, nil
}

func hostedStatus(s string) (model.OutcomeStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "successful", "captured":
		return model.OutcomeSuccess, true
	case "failure", "failed", "aborted", "cancelled", "declined":
		return model.OutcomeFailure, true
	}
	return "", false
}

// parseAmount reads "1100" or "1100.00" as whole currency units.  Orders
// are always whole units, so a non-zero fraction is rejected rather than
// rounded into a match.  An empty amount is 0, which the reconciler treats
// as not reported.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(s, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.New("bad amount")
	}
	if strings.Trim(frac, "0") != "" {
		return 0, errors.New("fractional amount")
	}
	return n, nil
}

func decodeFields(contentType string, body []byte) (map[string]string, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == "application/json" {
		fields := map[string]string{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		return fields, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}
