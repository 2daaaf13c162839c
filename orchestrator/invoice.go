package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	"github.com/zllovesuki/billing-orchestrator/subscription"

	"github.com/shopspring/decimal"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// RegisterInvoice creates the ERP invoice for a finalized gateway invoice and tags the gateway invoice with the ERP code,
// so later payment notifications carry both ids. An invoice that is already tagged is not registered again.
// The ERP code is linked locally before tagging, so a redelivery after a failed tag reuses it.
// An invoice outside any subscription returns gateway.ErrEventIgnored
func (o *Orchestrator) RegisterInvoice(ctx context.Context, gatewayInvoiceID string) (string, error) {
	if gatewayInvoiceID == "" {
		return "", extErrors.Wrap(ErrInvalidState, "empty invoice id")
	}
	unlock, err := o.lock(ctx, invoiceKey(gatewayInvoiceID))
	if err != nil {
		return "", err
	}
	defer unlock()

	r := o.begin(ctx, OpRegisterInvoice, gatewayInvoiceID, zap.String("GatewayInvoiceID", gatewayInvoiceID))

	var inv *gateway.Invoice
	if err := r.step(ctx, StepGatewayInvoice, SystemGateway, func(ctx context.Context) error {
		inv, err = o.Gateway.RetrieveInvoice(ctx, gatewayInvoiceID)
		if err == nil && inv == nil {
			err = fmt.Errorf("gateway returned no invoice")
		}
		return err
	}); err != nil {
		return "", r.fail(ctx, err)
	}
	if code := inv.Metadata[gateway.MetadataERPInvoiceCode]; code != "" {
		r.logger.Debug("Invoice already registered", zap.String("ERPInvoiceID", code))
		r.complete(ctx, event.InvoiceRegistered, map[string]interface{}{"erpInvoiceId": code})
		return code, nil
	}
	if inv.SubscriptionID == "" {
		r.skip(ctx, "Invoice belongs to no subscription")
		return "", gateway.ErrEventIgnored
	}

	sub, err := o.Subscriptions.GetByGatewaySubscriptionID(ctx, inv.SubscriptionID)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	if sub == nil {
		return "", r.fail(ctx, extErrors.Wrapf(ErrNotFound, "no subscription for gateway subscription %s", inv.SubscriptionID))
	}
	if sub.ERPCustomerCode == "" {
		return "", r.fail(ctx, extErrors.Wrapf(ErrInvalidState, "subscription %s has no ERP customer", sub.ID))
	}

	code, err := r.linkedInvoice(ctx, inv.ID)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	if code == "" {
		if code, err = r.createInvoice(ctx, inv, sub); err != nil {
			return "", r.fail(ctx, err)
		}
	}

	if err := r.step(ctx, StepGatewayTagInvoice, SystemGateway, func(ctx context.Context) error {
		return o.Gateway.TagInvoice(ctx, inv.ID, map[string]string{
			gateway.MetadataERPInvoiceCode: code,
		})
	}); err != nil {
		return "", r.fail(ctx, err)
	}

	r.complete(ctx, event.InvoiceRegistered, map[string]interface{}{
		"erpInvoiceId":   code,
		"subscriptionId": sub.ID,
	})
	return code, nil
}

// linkedInvoice returns the ERP code stored for a gateway invoice, once the ERP confirms it still has it.
// An empty code means the invoice must be created
func (r *run) linkedInvoice(ctx context.Context, gatewayInvoiceID string) (string, error) {
	link, err := r.o.Subscriptions.GetInvoiceLink(ctx, gatewayInvoiceID)
	if err != nil {
		return "", &StepError{
			Operation: r.operation,
			Step:      StepERPInvoiceLookup,
			System:    SystemStore,
			Cause:     err,
		}
	}
	if link == nil {
		return "", nil
	}

	gone := false
	if err := r.step(ctx, StepERPInvoiceLookup, SystemERP, func(ctx context.Context) error {
		_, err := r.o.ERP.GetInvoice(ctx, link.ERPInvoiceID)
		var apiErr *erp.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			gone = true
			return nil
		}
		return err
	}); err != nil {
		return "", err
	}
	if gone {
		r.logger.Warn("Linked ERP invoice no longer exists", zap.String("ERPInvoiceID", link.ERPInvoiceID))
		if err := r.o.Subscriptions.UnlinkInvoice(ctx, gatewayInvoiceID); err != nil {
			return "", &StepError{
				Operation: r.operation,
				Step:      StepPersist,
				System:    SystemStore,
				Cause:     err,
			}
		}
		return "", nil
	}
	r.logger.Info("Reusing linked ERP invoice", zap.String("ERPInvoiceID", link.ERPInvoiceID))
	return link.ERPInvoiceID, nil
}

// createInvoice issues the ERP invoice and links its code to the gateway invoice
func (r *run) createInvoice(ctx context.Context, inv *gateway.Invoice, sub *subscription.Subscription) (string, error) {
	now := time.Now()
	due := now
	if inv.DueDate != nil {
		due = *inv.DueDate
	}
	currency := inv.Currency
	if currency == "" {
		currency = sub.Currency
	}

	var code string
	if err := r.step(ctx, StepERPInvoice, SystemERP, func(ctx context.Context) error {
		var err error
		code, err = r.o.ERP.CreateInvoice(ctx, erp.Invoice{
			CustomerCode:          sub.ERPCustomerCode,
			Date:                  now,
			DueDate:               due,
			Amount:                inv.Amount,
			Currency:              strings.ToUpper(currency),
			GatewayInvoiceID:      inv.ID,
			GatewaySubscriptionID: inv.SubscriptionID,
			Status:                erp.InvoiceOpen,
		})
		if err == nil && code == "" {
			err = fmt.Errorf("ERP returned an empty invoice code")
		}
		return err
	}); err != nil {
		return "", err
	}

	if err := r.o.Subscriptions.LinkInvoice(ctx, &subscription.InvoiceLink{
		GatewayInvoiceID: inv.ID,
		ERPInvoiceID:     code,
		SubscriptionID:   sub.ID,
	}); err != nil {
		return "", &StepError{
			Operation: r.operation,
			Step:      StepPersist,
			System:    SystemStore,
			Cause:     err,
		}
	}
	return code, nil
}

// HandleWebhook routes a verified invoice event to its saga.
// A payment notification for an invoice that was never registered registers it first
func (o *Orchestrator) HandleWebhook(ctx context.Context, e *gateway.InvoiceEvent) error {
	if e == nil || e.Invoice == nil {
		return fmt.Errorf("event carries no invoice")
	}
	logger := o.Logger.With(
		zap.String("EventID", e.EventID),
		zap.String("Kind", string(e.Kind)),
		zap.String("GatewayInvoiceID", e.Invoice.ID),
	)

	if e.Kind == gateway.InvoiceFinalized {
		_, err := o.RegisterInvoice(ctx, e.Invoice.ID)
		return err
	}

	erpInvoiceID := e.ERPInvoiceCode()
	if erpInvoiceID == "" {
		logger.Info("Payment notification for an unregistered invoice")
		code, err := o.RegisterInvoice(ctx, e.Invoice.ID)
		if err != nil {
			return err
		}
		erpInvoiceID = code
	}

	switch e.Kind {
	case gateway.InvoicePaymentPassed:
		return o.PaymentSucceeded(ctx, e.Invoice.ID, erpInvoiceID)
	case gateway.InvoicePaymentFailed:
		return o.PaymentFailed(ctx, e.Invoice.ID, erpInvoiceID)
	default:
		return gateway.ErrEventIgnored
	}
}

// CreatePaymentIntent asks the gateway for a card payment intent of amount
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*gateway.PaymentIntent, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	if currency == "" {
		return nil, fmt.Errorf("empty currency is invalid")
	}

	var intent *gateway.PaymentIntent
	if err := o.call(ctx, OpPaymentIntent, StepGatewayIntent, SystemGateway, func(ctx context.Context) error {
		var err error
		intent, err = o.Gateway.CreatePaymentIntent(ctx, amount, currency)
		return err
	}); err != nil {
		o.Logger.Error("Unable to create payment intent",
			zap.String("Amount", amount.StringFixed(2)),
			zap.String("Currency", currency),
			zap.Error(err),
		)
		return nil, err
	}
	return intent, nil
}
