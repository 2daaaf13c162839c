package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	extErrors "github.com/pkg/errors"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// ErrEventIgnored is returned for events no saga reacts to: an unhandled type, or an invoice outside any subscription
var ErrEventIgnored = errors.New("event type is not handled")

// InvoiceEventKind classifies the invoice webhooks the sagas consume
type InvoiceEventKind string

// Defining the handled invoice events
const (
	InvoiceFinalized     InvoiceEventKind = "finalized"
	InvoicePaymentPassed InvoiceEventKind = "succeeded"
	InvoicePaymentFailed InvoiceEventKind = "failed"
)

var eventKinds = map[string]InvoiceEventKind{
	"invoice.finalized":         InvoiceFinalized,
	"invoice.paid":              InvoicePaymentPassed,
	"invoice.payment_succeeded": InvoicePaymentPassed,
	"invoice.payment_failed":    InvoicePaymentFailed,
}

// InvoiceEvent is a verified invoice notification from the gateway
type InvoiceEvent struct {
	EventID string
	Kind    InvoiceEventKind
	Invoice *Invoice
}

// ERPInvoiceCode is the ERP invoice cross-reference, empty until the invoice was registered in the ERP
func (e *InvoiceEvent) ERPInvoiceCode() string {
	if e.Invoice == nil || e.Invoice.Metadata == nil {
		return ""
	}
	return e.Invoice.Metadata[MetadataERPInvoiceCode]
}

// ParseWebhook verifies the signature header against secret and decodes the invoice events
func ParseWebhook(payload []byte, signature, secret string) (*InvoiceEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot verify webhook signature")
	}
	kind, ok := eventKinds[event.Type]
	if !ok {
		return nil, ErrEventIgnored
	}
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, extErrors.Wrap(err, "Cannot decode invoice from event")
	}
	return &InvoiceEvent{
		EventID: event.ID,
		Kind:    kind,
		Invoice: fromStripeInvoice(&inv),
	}, nil
}
