package event

import (
	"context"
	"time"
)

// Names of saga outcome events
const (
	SubscriptionCreated     = "subscription.created"
	SubscriptionUpdated     = "subscription.updated"
	SubscriptionCancelled   = "subscription.cancelled"
	SubscriptionReactivated = "subscription.reactivated"
	InvoiceRegistered       = "invoice.registered"
	PaymentSucceeded        = "payment.succeeded"
	PaymentFailed           = "payment.failed"
	ProposalApproved        = "proposal.approved"
	ProposalRejected        = "proposal.rejected"
	LeadEnriched            = "lead.enriched"
	LeadFailed              = "lead.failed"
	SagaFailed              = "saga.failed"
)

// SagaEvent is a notification that a saga reached an outcome.
// Attributes must only hold JSON-compatible values
type SagaEvent struct {
	Name       string
	EntityID   string
	Occurred   time.Time
	Attributes map[string]interface{}
}

// New returns a SagaEvent stamped with the current time
func New(name, entityID string, attributes map[string]interface{}) SagaEvent {
	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	return SagaEvent{
		Name:       name,
		EntityID:   entityID,
		Occurred:   time.Now().UTC(),
		Attributes: attributes,
	}
}

// Producer defines a producer sending saga events via message broker
type Producer interface {
	Close()
	Publish(ctx context.Context, e SagaEvent) error
}
