package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	"github.com/zllovesuki/billing-orchestrator/subscription"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Get returns ErrNotFound if no Subscription has the id
func (o *Orchestrator) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := o.Subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, extErrors.Wrapf(ErrNotFound, "subscription %s", id)
	}
	return sub, nil
}

// correlated loads id and checks it completed creation, before any remote call is made
func (o *Orchestrator) correlated(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.Correlated() {
		return nil, extErrors.Wrapf(ErrInvalidState, "subscription %s stopped at stage %s", id, sub.Stage())
	}
	return sub, nil
}

// Update moves the subscription to planID with immediate proration, mirrors the resulting status onto the ERP customer,
// then tells the billing process through "subscription-updated"
func (o *Orchestrator) Update(ctx context.Context, id, planID string) (*subscription.Subscription, error) {
	if planID == "" {
		return nil, fmt.Errorf("empty plan is invalid")
	}
	unlock, err := o.lock(ctx, subscriptionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := o.correlated(ctx, id)
	if err != nil {
		return nil, err
	}

	r := o.begin(ctx, OpUpdate, sub.ID,
		zap.String("SubscriptionID", sub.ID),
		zap.String("PlanID", planID),
	)

	var current *gateway.Subscription
	if err := r.step(ctx, StepGatewayRetrieve, SystemGateway, func(ctx context.Context) error {
		current, err = o.Gateway.RetrieveSubscription(ctx, sub.GatewaySubscriptionID)
		return err
	}); err != nil {
		return nil, r.fail(ctx, err)
	}

	var updated *gateway.Subscription
	if err := r.step(ctx, StepGatewayUpdate, SystemGateway, func(ctx context.Context) error {
		updated, err = o.Gateway.UpdateSubscription(ctx, current, planID)
		return err
	}); err != nil {
		return nil, r.fail(ctx, err)
	}
	sub.PlanID = planID
	applyGatewayState(sub, updated)
	if err := r.persist(ctx, sub); err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.step(ctx, StepERPCustomerStatus, SystemERP, func(ctx context.Context) error {
		return o.ERP.UpdateCustomerStatus(ctx, sub.ERPCustomerCode, erp.CustomerStatusFor(string(sub.Status)))
	}); err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.publish(ctx, workflow.MessageSubscriptionUpdated, sub.ProcessInstanceID, workflow.Variables{
		"subscriptionId": sub.ID,
		"planId":         sub.PlanID,
		"status":         string(sub.Status),
	}); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.complete(ctx, event.SubscriptionUpdated, subscriptionAttributes(sub))
	return sub, nil
}

// Cancel cancels in the gateway, terminates the ERP customer, then tells the billing process through "subscription-cancelled"
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*subscription.Subscription, error) {
	unlock, err := o.lock(ctx, subscriptionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := o.correlated(ctx, id)
	if err != nil {
		return nil, err
	}

	r := o.begin(ctx, OpCancel, sub.ID, zap.String("SubscriptionID", sub.ID))

	var cancelled *gateway.Subscription
	if err := r.step(ctx, StepGatewayCancel, SystemGateway, func(ctx context.Context) error {
		cancelled, err = o.Gateway.CancelSubscription(ctx, sub.GatewaySubscriptionID)
		return err
	}); err != nil {
		return nil, r.fail(ctx, err)
	}
	sub.Status = subscription.StatusCanceled
	if cancelled != nil {
		applyGatewayState(sub, cancelled)
	}
	if sub.EndDate == nil {
		now := time.Now()
		sub.EndDate = &now
	}
	if err := r.persist(ctx, sub); err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.step(ctx, StepERPCustomerStatus, SystemERP, func(ctx context.Context) error {
		return o.ERP.UpdateCustomerStatus(ctx, sub.ERPCustomerCode, erp.CustomerTerminated)
	}); err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.publish(ctx, workflow.MessageSubscriptionCancelled, sub.ProcessInstanceID, workflow.Variables{
		"subscriptionId": sub.ID,
		"status":         string(sub.Status),
	}); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.complete(ctx, event.SubscriptionCancelled, subscriptionAttributes(sub))
	return sub, nil
}

// Reactivate resumes the subscription in the gateway only
func (o *Orchestrator) Reactivate(ctx context.Context, id string) (*subscription.Subscription, error) {
	unlock, err := o.lock(ctx, subscriptionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := o.correlated(ctx, id)
	if err != nil {
		return nil, err
	}

	r := o.begin(ctx, OpReactivate, sub.ID, zap.String("SubscriptionID", sub.ID))

	var resumed *gateway.Subscription
	if err := r.step(ctx, StepGatewayResume, SystemGateway, func(ctx context.Context) error {
		resumed, err = o.Gateway.ResumeSubscription(ctx, sub.GatewaySubscriptionID)
		return err
	}); err != nil {
		return nil, r.fail(ctx, err)
	}
	if resumed != nil {
		applyGatewayState(sub, resumed)
	}
	if err := r.persist(ctx, sub); err != nil {
		return nil, r.fail(ctx, err)
	}

	r.complete(ctx, event.SubscriptionReactivated, subscriptionAttributes(sub))
	return sub, nil
}
