package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ResumeCreation starts the missing billing process of a subscription that exists in the gateway but never got a
// process instance. A subscription that already has one is returned untouched
func (o *Orchestrator) ResumeCreation(ctx context.Context, id string) (*subscription.Subscription, error) {
	unlock, err := o.lock(ctx, subscriptionKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sub.Stage() {
	case subscription.StageComplete:
		return sub, nil
	case subscription.StageGateway:
	default:
		return nil, extErrors.Wrapf(ErrInvalidState, "subscription %s stopped at stage %s", id, sub.Stage())
	}

	r := o.begin(ctx, OpResumeCreation, sub.ID, zap.String("SubscriptionID", sub.ID))
	if err := o.startBilling(ctx, r, sub); err != nil {
		return nil, r.fail(ctx, err)
	}
	r.complete(ctx, event.SubscriptionCreated, subscriptionAttributes(sub))
	return sub, nil
}

// TaskOptions contains the configuration of Task
type TaskOptions struct {
	Orchestrator *Orchestrator
	Logger       *zap.Logger
	// Interval between sweeps
	Interval time.Duration
	// Grace is how long a creation may stay without a process instance before it is considered stalled
	Grace time.Duration
	// BatchSize caps how many subscriptions one sweep resumes
	BatchSize int
}

// Task periodically resumes stalled creations
type Task struct {
	TaskOptions
}

// NewTask returns a recovery Task
func NewTask(option TaskOptions) (*Task, error) {
	if option.Orchestrator == nil {
		return nil, fmt.Errorf("nil Orchestrator is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Interval <= 0 {
		return nil, fmt.Errorf("Interval must be positive")
	}
	if option.BatchSize <= 0 {
		option.BatchSize = 50
	}
	return &Task{
		TaskOptions: option,
	}, nil
}

// Sweep runs a single recovery pass and returns how many subscriptions were resumed
func (t *Task) Sweep(ctx context.Context) (int, error) {
	stalled, err := t.Orchestrator.Subscriptions.ListStalled(ctx, subscription.StalledOption{
		Before: time.Now().Add(-t.Grace),
		Limit:  t.BatchSize,
	})
	if err != nil {
		return 0, extErrors.Wrap(err, "Cannot list stalled subscriptions")
	}
	resumed := 0
	for _, sub := range stalled {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		if _, err := t.Orchestrator.ResumeCreation(ctx, sub.ID); err != nil {
			t.Logger.Warn("Unable to resume subscription creation",
				zap.String("SubscriptionID", sub.ID),
				zap.Error(err),
			)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// Run sweeps every Interval until ctx is done
func (t *Task) Run(ctx context.Context) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		n, err := t.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			t.Logger.Error("Recovery sweep failed",
				zap.Error(err),
			)
		} else if n > 0 {
			t.Logger.Info("Recovery sweep resumed subscriptions",
				zap.Int("Resumed", n),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
