package orchestrator

import (
	"context"
	"fmt"

	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	"github.com/zllovesuki/billing-orchestrator/subscription"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Create registers sub in the ERP, subscribes it in the gateway, then starts its billing process.
// Each external id is persisted as soon as its call succeeds, so a failure leaves a record whose Stage tells how far it got.
// Nothing is compensated: an ERP customer without a gateway subscription, or a gateway subscription without a process
// instance, is left in place and reported through the returned *StepError
func (o *Orchestrator) Create(ctx context.Context, sub *subscription.Subscription) (*subscription.Subscription, error) {
	if sub.ERPCustomerCode != "" || sub.GatewayCustomerID != "" || sub.GatewaySubscriptionID != "" || sub.ProcessInstanceID != "" {
		return nil, extErrors.Wrap(ErrInvalidState, "new subscription must not carry external ids")
	}

	// find-or-create in the gateway is a read-then-write keyed by email
	unlockCustomer, err := o.lock(ctx, customerKey(sub.CustomerEmail))
	if err != nil {
		return nil, err
	}
	defer unlockCustomer()

	if err := o.Subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}

	unlock, err := o.lock(ctx, subscriptionKey(sub.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	r := o.begin(ctx, OpCreate, sub.ID,
		zap.String("SubscriptionID", sub.ID),
		zap.String("CustomerEmail", sub.CustomerEmail),
	)

	if err := o.registerCustomer(ctx, r, sub); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := o.subscribe(ctx, r, sub); err != nil {
		return nil, r.fail(ctx, err)
	}
	if err := o.startBilling(ctx, r, sub); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.complete(ctx, event.SubscriptionCreated, subscriptionAttributes(sub))
	return sub, nil
}

func (o *Orchestrator) registerCustomer(ctx context.Context, r *run, sub *subscription.Subscription) error {
	name := sub.CustomerName
	if name == "" {
		name = sub.CustomerEmail
	}
	var code string
	if err := r.step(ctx, StepERPCustomer, SystemERP, func(ctx context.Context) error {
		var err error
		code, err = o.ERP.CreateOrUpdateCustomer(ctx, erp.Customer{
			Name:   name,
			Email:  sub.CustomerEmail,
			Type:   erp.CustomerTypeCompany,
			Status: erp.CustomerActive,
		})
		if err == nil && code == "" {
			err = fmt.Errorf("ERP returned an empty customer code")
		}
		return err
	}); err != nil {
		return err
	}
	sub.ERPCustomerCode = code
	return r.persist(ctx, sub)
}

func (o *Orchestrator) subscribe(ctx context.Context, r *run, sub *subscription.Subscription) error {
	var customerID string
	if err := r.step(ctx, StepGatewayCustomer, SystemGateway, func(ctx context.Context) error {
		var err error
		customerID, err = o.Gateway.FindOrCreateCustomer(ctx, sub.CustomerEmail, map[string]string{
			gateway.MetadataERPCustomerCode: sub.ERPCustomerCode,
		})
		return err
	}); err != nil {
		return err
	}
	sub.GatewayCustomerID = customerID
	if err := r.persist(ctx, sub); err != nil {
		return err
	}

	var gs *gateway.Subscription
	if err := r.step(ctx, StepGatewaySubscription, SystemGateway, func(ctx context.Context) error {
		var err error
		gs, err = o.Gateway.CreateSubscription(ctx, gateway.CreateSubscriptionParams{
			CustomerRef:      customerID,
			PlanRef:          sub.PlanID,
			PaymentMethodRef: sub.PaymentMethodID,
		})
		if err == nil && (gs == nil || gs.ID == "") {
			err = fmt.Errorf("gateway returned no subscription id")
		}
		return err
	}); err != nil {
		return err
	}
	sub.GatewaySubscriptionID = gs.ID
	applyGatewayState(sub, gs)
	return r.persist(ctx, sub)
}

func (o *Orchestrator) startBilling(ctx context.Context, r *run, sub *subscription.Subscription) error {
	var instanceID string
	if err := r.step(ctx, StepWorkflowStart, SystemWorkflow, func(ctx context.Context) error {
		var err error
		instanceID, err = o.Workflow.StartProcess(ctx, workflow.ProcessBilling, billingVariables(sub))
		if err == nil && instanceID == "" {
			err = fmt.Errorf("workflow engine returned an empty process instance id")
		}
		return err
	}); err != nil {
		return err
	}
	sub.ProcessInstanceID = instanceID
	return r.persist(ctx, sub)
}

func applyGatewayState(sub *subscription.Subscription, gs *gateway.Subscription) {
	if gs.Status != "" {
		sub.Status = subscription.Status(gs.Status)
	}
	if !gs.StartDate.IsZero() && sub.StartDate == nil {
		start := gs.StartDate
		sub.StartDate = &start
	}
	if !gs.PeriodEnd.IsZero() {
		next := gs.PeriodEnd
		sub.NextBillingDate = &next
	}
	if gs.EndedAt != nil {
		end := *gs.EndedAt
		sub.EndDate = &end
	}
}

func billingVariables(sub *subscription.Subscription) workflow.Variables {
	return workflow.Variables{
		"subscriptionId":        sub.ID,
		"customerEmail":         sub.CustomerEmail,
		"erpCustomerCode":       sub.ERPCustomerCode,
		"gatewayCustomerId":     sub.GatewayCustomerID,
		"gatewaySubscriptionId": sub.GatewaySubscriptionID,
		"planId":                sub.PlanID,
		"amount":                sub.Amount.StringFixed(2),
		"currency":              sub.Currency,
		"billingCycle":          sub.BillingCycle,
		"status":                string(sub.Status),
	}
}

func subscriptionAttributes(sub *subscription.Subscription) map[string]interface{} {
	return map[string]interface{}{
		"status":                string(sub.Status),
		"erpCustomerCode":       sub.ERPCustomerCode,
		"gatewaySubscriptionId": sub.GatewaySubscriptionID,
		"processInstanceId":     sub.ProcessInstanceID,
	}
}
