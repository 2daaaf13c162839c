package workflow

import (
	"context"
	"errors"
)

// Process ids of the BPMN models the sagas start
const (
	ProcessBilling            = "billing-process"
	ProcessCommercialProposal = "commercial-proposal"
	ProcessLeadEnrichment     = "lead-enrichment"
)

// Message names the running processes wait on
const (
	MessageSubscriptionUpdated   = "subscription-updated"
	MessageSubscriptionCancelled = "subscription-cancelled"
	MessagePaymentSuccess        = "payment-success"
	MessagePaymentFailure        = "payment-failure"
	MessageProposalApproved      = "proposal-approved"
	MessageProposalRejected      = "proposal-rejected"
	MessageLeadEnriched          = "lead-enriched"
	MessageLeadError             = "lead-error"
)

// ErrEmptyCorrelationKey is returned before contacting the engine, since an empty key can never match a waiting instance
var ErrEmptyCorrelationKey = errors.New("empty correlation key")

// Variables is the variable bag handed to a process
type Variables map[string]interface{}

// Engine is the workflow engine as seen by the sagas.
// PublishMessage is fire-and-forget: a message whose correlation key no instance is waiting on is buffered for the
// engine's TTL and then dropped without any error surfacing here
type Engine interface {
	StartProcess(ctx context.Context, processID string, vars Variables) (string, error)
	PublishMessage(ctx context.Context, name, correlationKey string, vars Variables) error
}
