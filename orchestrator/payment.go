package orchestrator

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Payment outcome variable values
const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

type paymentOutcome struct {
	operation string
	status    erp.InvoiceStatus
	message   string
	value     string
	event     string
}

var (
	paymentSucceeded = paymentOutcome{
		operation: OpPaymentSucceeded,
		status:    erp.InvoicePaid,
		message:   workflow.MessagePaymentSuccess,
		value:     PaymentStatusPaid,
		event:     event.PaymentSucceeded,
	}
	paymentFailed = paymentOutcome{
		operation: OpPaymentFailed,
		status:    erp.InvoiceNotPaid,
		message:   workflow.MessagePaymentFailure,
		value:     PaymentStatusFailed,
		event:     event.PaymentFailed,
	}
)

// PaymentSucceeded marks the ERP invoice paid, then publishes "payment-success" correlated by the ERP invoice id.
// No Subscription is read or written
func (o *Orchestrator) PaymentSucceeded(ctx context.Context, gatewayInvoiceID, erpInvoiceID string) error {
	return o.paymentOutcome(ctx, paymentSucceeded, gatewayInvoiceID, erpInvoiceID)
}

// PaymentFailed marks the ERP invoice not paid, then publishes "payment-failure" correlated by the ERP invoice id.
// No Subscription is read or written
func (o *Orchestrator) PaymentFailed(ctx context.Context, gatewayInvoiceID, erpInvoiceID string) error {
	return o.paymentOutcome(ctx, paymentFailed, gatewayInvoiceID, erpInvoiceID)
}

func (o *Orchestrator) paymentOutcome(ctx context.Context, outcome paymentOutcome, gatewayInvoiceID, erpInvoiceID string) error {
	if gatewayInvoiceID == "" || erpInvoiceID == "" {
		return extErrors.Wrap(ErrInvalidState, "both invoice ids are required")
	}

	r := o.begin(ctx, outcome.operation, erpInvoiceID,
		zap.String("GatewayInvoiceID", gatewayInvoiceID),
		zap.String("ERPInvoiceID", erpInvoiceID),
	)

	// the workflow must never hear about an outcome the ERP did not record
	if err := r.step(ctx, StepERPInvoiceStatus, SystemERP, func(ctx context.Context) error {
		return o.ERP.UpdateInvoiceStatus(ctx, erpInvoiceID, outcome.status)
	}); err != nil {
		return r.fail(ctx, err)
	}

	if err := r.publish(ctx, outcome.message, erpInvoiceID, workflow.Variables{
		"gatewayInvoiceId": gatewayInvoiceID,
		"erpInvoiceId":     erpInvoiceID,
		"status":           outcome.value,
	}); err != nil {
		return r.fail(ctx, err)
	}

	r.complete(ctx, outcome.event, map[string]interface{}{
		"gatewayInvoiceId": gatewayInvoiceID,
		"status":           outcome.value,
	})
	return nil
}
