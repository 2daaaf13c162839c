package proposal

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/lock"
	"github.com/zllovesuki/billing-orchestrator/metrics"
	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Saga operation names
const (
	OpStart   = "proposal_start"
	OpApprove = "proposal_approve"
	OpReject  = "proposal_reject"
)

const defaultCallTimeout = 10 * time.Second

// ProcessOptions contains the collaborators of Process. Producer and Metrics are optional
type ProcessOptions struct {
	Proposals   *Manager
	Workflow    workflow.Engine
	Locker      lock.Locker
	Producer    event.Producer
	Metrics     *metrics.Saga
	Logger      *zap.Logger
	CallTimeout time.Duration
}

// Process drives a Proposal through the commercial-proposal workflow
type Process struct {
	ProcessOptions
}

// NewProcess returns a Process
func NewProcess(option ProcessOptions) (*Process, error) {
	if option.Proposals == nil {
		return nil, fmt.Errorf("nil Proposals is invalid")
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
	return &Process{
		ProcessOptions: option,
	}, nil
}

func (p *Process) persist(ctx context.Context, operation string, prop *Proposal) error {
	if err := p.Proposals.Save(ctx, prop); err != nil {
		return &orchestrator.StepError{
			Operation: operation,
			Step:      orchestrator.StepPersist,
			System:    orchestrator.SystemStore,
			Cause:     err,
		}
	}
	return nil
}

func (p *Process) emit(ctx context.Context, e event.SagaEvent) {
	if p.Producer == nil {
		return
	}
	if err := p.Producer.Publish(ctx, e); err != nil {
		p.Logger.Warn("Unable to publish saga event",
			zap.String("Event", e.Name),
			zap.Error(err),
		)
	}
}

// Start persists prop in review and starts its workflow instance
func (p *Process) Start(ctx context.Context, prop *Proposal) (*Proposal, error) {
	if err := p.Proposals.Create(ctx, prop); err != nil {
		return nil, err
	}
	logger := p.Logger.With(
		zap.String("ProposalID", prop.ID),
		zap.String("Number", prop.Number),
	)

	var instanceID string
	err := orchestrator.Call(ctx, p.CallTimeout, p.Metrics, OpStart, orchestrator.StepWorkflowStart, orchestrator.SystemWorkflow, func(ctx context.Context) (err error) {
		instanceID, err = p.Workflow.StartProcess(ctx, workflow.ProcessCommercialProposal, workflow.Variables{
			"proposalId": prop.ID,
			"number":     prop.Number,
			"client":     prop.Client,
			"totalValue": prop.TotalValue.StringFixed(2),
		})
		return
	})
	if err != nil {
		logger.Error("Unable to start proposal process", zap.Error(err))
		return nil, err
	}

	prop.ProcessInstanceID = instanceID
	if err := p.persist(ctx, OpStart, prop); err != nil {
		logger.Error("Process started but proposal was not updated",
			zap.String("ProcessInstanceID", instanceID),
			zap.Error(err),
		)
		return nil, err
	}
	logger.Info("Proposal process started", zap.String("ProcessInstanceID", instanceID))
	return prop, nil
}

func lockKey(id string) string {
	return "proposal:" + id
}

// pending loads the proposal under its lock. The caller releases the lock once the decision is saved
func (p *Process) pending(ctx context.Context, id string) (*Proposal, lock.Unlock, error) {
	unlock, err := orchestrator.Lock(ctx, p.Locker, lockKey(id), p.CallTimeout)
	if err != nil {
		return nil, nil, err
	}
	prop, err := p.load(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return prop, unlock, nil
}

func (p *Process) load(ctx context.Context, id string) (*Proposal, error) {
	prop, err := p.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, extErrors.Wrap(ErrNotFound, id)
	}
	if !prop.Pending() {
		return nil, extErrors.Wrapf(ErrInvalidState, "proposal %s is %s", id, prop.Status)
	}
	return prop, nil
}

// decide publishes the reviewers' decision to the waiting instance, then saves prop
func (p *Process) decide(ctx context.Context, operation, message, name string, prop *Proposal, vars workflow.Variables) (*Proposal, error) {
	logger := p.Logger.With(
		zap.String("ProposalID", prop.ID),
		zap.String("ProcessInstanceID", prop.ProcessInstanceID),
		zap.String("Operation", operation),
	)

	err := orchestrator.Call(ctx, p.CallTimeout, p.Metrics, operation, orchestrator.StepPublish, orchestrator.SystemWorkflow, func(ctx context.Context) error {
		return p.Workflow.PublishMessage(ctx, message, prop.ProcessInstanceID, vars)
	})
	p.Metrics.ObservePublish(message, err)
	if err != nil {
		logger.Error("Unable to publish proposal decision", zap.Error(err))
		return nil, err
	}

	if err := p.persist(ctx, operation, prop); err != nil {
		logger.Error("Decision published but proposal was not updated", zap.Error(err))
		return nil, err
	}

	logger.Info("Proposal decided", zap.String("Status", string(prop.Status)))
	p.emit(ctx, event.New(name, prop.ID, map[string]interface{}{
		"number":            prop.Number,
		"processInstanceId": prop.ProcessInstanceID,
	}))
	return prop, nil
}

// Approve records the approval and releases the waiting instance
func (p *Process) Approve(ctx context.Context, id string) (*Proposal, error) {
	prop, unlock, err := p.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	now := time.Now()
	prop.Status = StatusApproved
	prop.ApprovedAt = &now
	return p.decide(ctx, OpApprove, workflow.MessageProposalApproved, event.ProposalApproved, prop, workflow.Variables{
		"approved": true,
	})
}

// Reject records the rejection with the reviewers' notes
func (p *Process) Reject(ctx context.Context, id, notes string) (*Proposal, error) {
	prop, unlock, err := p.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	prop.Status = StatusRejected
	prop.Notes = notes
	return p.decide(ctx, OpReject, workflow.MessageProposalRejected, event.ProposalRejected, prop, workflow.Variables{
		"approved": false,
		"notes":    notes,
	})
}
