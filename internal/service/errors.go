package service

import "fmt"

// ValidationError reports bad input shape or range. Always recoverable
// by the caller correcting its input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// OwnershipError reports an attempt to act on another owner's cart or
// item.
type OwnershipError struct {
	Resource string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("not the owner of %s", e.Resource)
}

// ConsistencyError reports a cross-item cart invariant violation:
// club/date mismatch or category exclusivity.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "cart inconsistency: " + e.Reason
}

// InventoryExhaustedError carries the remaining purchasable count so the
// client can offer it instead of a bare "sold out".
type InventoryExhaustedError struct {
	TicketID  string
	Remaining int
}

func (e *InventoryExhaustedError) Error() string {
	return fmt.Sprintf("ticket %s: only %d remaining", e.TicketID, e.Remaining)
}

// LockedError reports a cart frozen by an in-flight checkout. Retryable
// after the checkout completes or the lock TTL expires.
type LockedError struct {
	OwnerKey string
}

func (e *LockedError) Error() string {
	return "cart is locked by a checkout in progress"
}

// PricingUnavailableError reports an event past its grace window.
type PricingUnavailableError struct {
	TicketID string
}

func (e *PricingUnavailableError) Error() string {
	return fmt.Sprintf("ticket %s: event already started", e.TicketID)
}

// NotFoundError reports a missing catalog row or cart item.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// PaymentDeclinedError is terminal; the gateway rejected the payment.
type PaymentDeclinedError struct {
	TransactionID string
	GatewayStatus string
}

func (e *PaymentDeclinedError) Error() string {
	return fmt.Sprintf("payment declined (gateway status %s)", e.GatewayStatus)
}

// GatewayCommunicationError is transient and retryable. Any held cart
// lock is released before this propagates.
type GatewayCommunicationError struct {
	TransactionID string
	Err           error
}

func (e *GatewayCommunicationError) Error() string {
	return fmt.Sprintf("payment could not be verified for %s: %v", e.TransactionID, e.Err)
}

func (e *GatewayCommunicationError) Unwrap() error { return e.Err }

// IdempotencyViolationError means the processedAt fence was breached.
// This is an internal invariant failure, never a user error, and must
// never be swallowed.
type IdempotencyViolationError struct {
	TransactionID string
}

func (e *IdempotencyViolationError) Error() string {
	return fmt.Sprintf("transaction %s fulfilled twice", e.TransactionID)
}
