package model

import "encoding/json"

// OutcomeStatus is the result a payment gateway reports for an order.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// GatewayOutcome is a parsed, verified payment callback.  OrderID is the
// booking ID that was sent to the gateway at checkout.
type GatewayOutcome struct {
	OrderID    string          `json:"order_id"`
	Status     OutcomeStatus   `json:"status"`
	GatewayRef string          `json:"gateway_ref,omitempty"`
	BankRef    string          `json:"bank_ref,omitempty"`
	Method     string          `json:"method,omitempty"`
	Message    string          `json:"message,omitempty"`
	Amount     int64           `json:"amount"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}
