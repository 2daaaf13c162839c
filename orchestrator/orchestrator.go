package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	"github.com/zllovesuki/billing-orchestrator/lock"
	"github.com/zllovesuki/billing-orchestrator/metrics"
	"github.com/zllovesuki/billing-orchestrator/saga"
	"github.com/zllovesuki/billing-orchestrator/subscription"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Saga operation names
const (
	OpCreate           = "create"
	OpUpdate           = "update"
	OpCancel           = "cancel"
	OpReactivate       = "reactivate"
	OpPaymentSucceeded = "payment_succeeded"
	OpPaymentFailed    = "payment_failed"
	OpRegisterInvoice  = "register_invoice"
	OpPaymentIntent    = "payment_intent"
	OpResumeCreation   = "resume_creation"
)

// Saga step names
const (
	StepERPCustomer         = "erp_customer"
	StepGatewayCustomer     = "gateway_customer"
	StepGatewaySubscription = "gateway_subscription"
	StepWorkflowStart       = "workflow_start"
	StepGatewayRetrieve     = "gateway_retrieve"
	StepGatewayUpdate       = "gateway_update"
	StepGatewayCancel       = "gateway_cancel"
	StepGatewayResume       = "gateway_resume"
	StepERPCustomerStatus   = "erp_customer_status"
	StepERPInvoiceStatus    = "erp_invoice_status"
	StepERPInvoice          = "erp_invoice"
	StepERPInvoiceLookup    = "erp_invoice_lookup"
	StepGatewayInvoice      = "gateway_invoice"
	StepGatewayTagInvoice   = "gateway_tag_invoice"
	StepGatewayIntent       = "gateway_payment_intent"
	StepPublish             = "workflow_publish"
	StepPersist             = "persist"
)

const defaultCallTimeout = 10 * time.Second

// Options contains the collaborators of Orchestrator. Recorder, Producer and Metrics are optional
type Options struct {
	Subscriptions *subscription.Manager
	Gateway       gateway.Gateway
	ERP           erp.Client
	Workflow      workflow.Engine
	Locker        lock.Locker
	Recorder      *saga.Recorder
	Producer      event.Producer
	Metrics       *metrics.Saga
	Logger        *zap.Logger
	// CallTimeout bounds every remote call
	CallTimeout time.Duration
}

// Orchestrator sequences the calls across the gateway, the ERP and the workflow engine for a subscription
type Orchestrator struct {
	Options
}

// New returns an Orchestrator
func New(option Options) (*Orchestrator, error) {
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Gateway == nil {
		return nil, fmt.Errorf("nil Gateway is invalid")
	}
	if option.ERP == nil {
		return nil, fmt.Errorf("nil ERP is invalid")
	}
	if option.Workflow == nil {
		return nil, fmt.Errorf("nil Workflow is invalid")
	}
	if option.Locker == nil {
		return nil, fmt.Errorf("nil Locker is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.CallTimeout <= 0 {
		option.CallTimeout = defaultCallTimeout
	}
	return &Orchestrator{
		Options: option,
	}, nil
}

// run tracks a single saga execution
type run struct {
	o         *Orchestrator
	operation string
	entityID  string
	sagaID    string
	logger    *zap.Logger
}

func (o *Orchestrator) begin(ctx context.Context, operation, entityID string, fields ...zap.Field) *run {
	r := &run{
		o:         o,
		operation: operation,
		entityID:  entityID,
		logger:    o.Logger.With(append(fields, zap.String("Operation", operation))...),
	}
	if o.Recorder != nil {
		id, err := o.Recorder.Begin(ctx, operation, entityID)
		if err != nil {
			r.logger.Warn("Saga will not be recorded", zap.Error(err))
		}
		r.sagaID = id
		r.logger = r.logger.With(zap.String("SagaID", id))
	}
	return r
}

// call runs fn under the per-call deadline
func (o *Orchestrator) call(ctx context.Context, operation, step string, system System, fn func(ctx context.Context) error) error {
	return Call(ctx, o.CallTimeout, o.Metrics, operation, step, system, fn)
}

// Call runs one remote step of operation bounded by timeout, observing it on m (which may be nil).
// A failure is returned as a *StepError
func Call(ctx context.Context, timeout time.Duration, m *metrics.Saga, operation, step string, system System, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := fn(cctx)
	m.ObserveStep(operation, string(system), started, err)
	if err != nil {
		return &StepError{
			Operation: operation,
			Step:      step,
			System:    system,
			Cause:     err,
		}
	}
	return nil
}

// step is call, recorded on success
func (r *run) step(ctx context.Context, step string, system System, fn func(ctx context.Context) error) error {
	if err := r.o.call(ctx, r.operation, step, system, fn); err != nil {
		return err
	}
	r.recordStep(ctx, step)
	return nil
}

// persist saves sub after a remote step succeeded
func (r *run) persist(ctx context.Context, sub *subscription.Subscription) error {
	if err := r.o.Subscriptions.Save(ctx, sub); err != nil {
		return &StepError{
			Operation: r.operation,
			Step:      StepPersist,
			System:    SystemStore,
			Cause:     err,
		}
	}
	return nil
}

// publish sends a correlated workflow message as a saga step
func (r *run) publish(ctx context.Context, name, correlationKey string, vars workflow.Variables) error {
	err := r.step(ctx, StepPublish, SystemWorkflow, func(ctx context.Context) error {
		return r.o.Workflow.PublishMessage(ctx, name, correlationKey, vars)
	})
	r.o.Metrics.ObservePublish(name, err)
	return err
}

func (r *run) recordStep(ctx context.Context, step string) {
	if r.o.Recorder == nil || r.sagaID == "" {
		return
	}
	if err := r.o.Recorder.StepCompleted(ctx, r.sagaID, step); err != nil {
		r.logger.Warn("Unable to record saga step", zap.String("Step", step), zap.Error(err))
	}
}

// fail logs err once at the saga boundary and returns it unchanged
func (r *run) fail(ctx context.Context, err error) error {
	step := ""
	attrs := map[string]interface{}{
		"operation": r.operation,
		"error":     err.Error(),
	}
	if se, ok := AsStepError(err); ok {
		step = se.Step
		attrs["step"] = se.Step
		attrs["system"] = string(se.System)
		attrs["retryable"] = se.Retryable()
	}
	r.logger.Error("Saga failed",
		zap.String("Step", step),
		zap.Error(err),
	)
	if r.o.Recorder != nil && r.sagaID != "" {
		if rerr := r.o.Recorder.Fail(ctx, r.sagaID, step, err); rerr != nil {
			r.logger.Warn("Unable to record saga failure", zap.Error(rerr))
		}
	}
	r.o.emit(ctx, event.New(event.SagaFailed, r.entityID, attrs))
	return err
}

func (r *run) complete(ctx context.Context, name string, attrs map[string]interface{}) {
	if r.o.Recorder != nil && r.sagaID != "" {
		if err := r.o.Recorder.Complete(ctx, r.sagaID); err != nil {
			r.logger.Warn("Unable to record saga completion", zap.Error(err))
		}
	}
	r.logger.Info("Saga completed")
	r.o.emit(ctx, event.New(name, r.entityID, attrs))
}

// skip closes a saga that had nothing to do
func (r *run) skip(ctx context.Context, reason string) {
	if r.o.Recorder != nil && r.sagaID != "" {
		if err := r.o.Recorder.Complete(ctx, r.sagaID); err != nil {
			r.logger.Warn("Unable to record saga completion", zap.Error(err))
		}
	}
	r.logger.Info("Saga skipped", zap.String("Reason", reason))
}

// emit is best effort, the saga outcome does not depend on it
func (o *Orchestrator) emit(ctx context.Context, e event.SagaEvent) {
	if o.Producer == nil {
		return
	}
	if err := o.Producer.Publish(ctx, e); err != nil {
		o.Logger.Warn("Unable to publish saga event",
			zap.String("Event", e.Name),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) lock(ctx context.Context, key string) (lock.Unlock, error) {
	return Lock(ctx, o.Locker, key, o.CallTimeout)
}

// Lock acquires key on l, waiting at most wait. Giving up on the wait returns ErrBusy
func Lock(ctx context.Context, l lock.Locker, key string, wait time.Duration) (lock.Unlock, error) {
	cctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	unlock, err := l.Lock(cctx, key)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, extErrors.Wrap(ErrBusy, err.Error())
	}
	return unlock, nil
}

func subscriptionKey(id string) string {
	return "subscription:" + id
}

func customerKey(email string) string {
	return "customer:" + email
}

func invoiceKey(id string) string {
	return "invoice:" + id
}
