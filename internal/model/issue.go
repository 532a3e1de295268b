package model

import "time"

// Kinds of reconciliation issue.
const (
	IssueResourceConflict = "resource_conflict"
	IssueAmountMismatch   = "amount_mismatch"
	IssuePaidAfterCancel  = "paid_after_cancel"
)

// ReconciliationIssue flags an inconsistency found while confirming a paid
// booking that an operator has to resolve by hand: a resource that was no
// longer held for the booking, a paid amount that differs from the amount
// due, or a payment taken for a booking that was already cancelled.
// Issues are written in the same transaction as the outcome they describe.
type ReconciliationIssue struct {
	ID         string     `json:"id"`
	BookingID  string     `json:"booking_id"`
	ScopeKey   string     `json:"scope_key,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	Kind       string     `json:"kind"`
	Detail     string     `json:"detail"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
