package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/enrichment"
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
	OpStart  = "lead_start"
	OpEnrich = "lead_enrich"
)

// StepEnrich is the provider lookup step
const StepEnrich = "enrich"

const (
	defaultCallTimeout   = 10 * time.Second
	defaultEnrichTimeout = 30 * time.Second
)

// ProcessOptions contains the collaborators of Process. Producer and Metrics are optional
type ProcessOptions struct {
	Leads       *Manager
	Enricher    *enrichment.Enricher
	Workflow    workflow.Engine
	Locker      lock.Locker
	Producer    event.Producer
	Metrics     *metrics.Saga
	Logger      *zap.Logger
	CallTimeout time.Duration
	// EnrichTimeout bounds one attempt across all providers
	EnrichTimeout time.Duration
}

// Process drives a Lead through the lead-enrichment workflow
type Process struct {
	ProcessOptions
}

// NewProcess returns a Process
func NewProcess(option ProcessOptions) (*Process, error) {
	if option.Leads == nil {
		return nil, fmt.Errorf("nil Leads is invalid")
	}
	if option.Enricher == nil {
		return nil, fmt.Errorf("nil Enricher is invalid")
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
	if option.EnrichTimeout <= 0 {
		option.EnrichTimeout = defaultEnrichTimeout
	}
	return &Process{
		ProcessOptions: option,
	}, nil
}

func (p *Process) persist(ctx context.Context, operation string, l *Lead) error {
	if err := p.Leads.Save(ctx, l); err != nil {
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

// Start persists l as processing and starts its enrichment instance
func (p *Process) Start(ctx context.Context, l *Lead) (*Lead, error) {
	if err := p.Leads.Create(ctx, l); err != nil {
		return nil, err
	}
	logger := p.Logger.With(zap.String("LeadID", l.ID))

	var instanceID string
	err := orchestrator.Call(ctx, p.CallTimeout, p.Metrics, OpStart, orchestrator.StepWorkflowStart, orchestrator.SystemWorkflow, func(ctx context.Context) (err error) {
		instanceID, err = p.Workflow.StartProcess(ctx, workflow.ProcessLeadEnrichment, workflow.Variables{
			"leadId":  l.ID,
			"name":    l.Name,
			"email":   l.Email,
			"company": l.Company,
		})
		return
	})
	if err != nil {
		logger.Error("Unable to start lead process", zap.Error(err))
		return nil, err
	}

	l.ProcessInstanceID = instanceID
	if err := p.persist(ctx, OpStart, l); err != nil {
		logger.Error("Process started but lead was not updated",
			zap.String("ProcessInstanceID", instanceID),
			zap.Error(err),
		)
		return nil, err
	}
	logger.Info("Lead process started", zap.String("ProcessInstanceID", instanceID))
	return l, nil
}

func lockKey(id string) string {
	return "lead:" + id
}

// Enrich queries the providers for the lead and reports the outcome to its instance.
// A provider failure is an outcome, not an error: the lead moves to ERROR with the message in Notes
func (p *Process) Enrich(ctx context.Context, id string) (*Lead, error) {
	unlock, err := orchestrator.Lock(ctx, p.Locker, lockKey(id), p.CallTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	l, err := p.Leads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, extErrors.Wrap(ErrNotFound, id)
	}
	if !l.Pending() {
		return nil, extErrors.Wrapf(ErrInvalidState, "lead %s is %s", id, l.Status)
	}
	logger := p.Logger.With(
		zap.String("LeadID", l.ID),
		zap.String("ProcessInstanceID", l.ProcessInstanceID),
	)

	var data map[string]interface{}
	lookupErr := orchestrator.Call(ctx, p.EnrichTimeout, p.Metrics, OpEnrich, StepEnrich, orchestrator.SystemEnrichment, func(ctx context.Context) (err error) {
		data, err = p.Enricher.Enrich(ctx, l.Identity())
		return
	})

	message := workflow.MessageLeadEnriched
	name := event.LeadEnriched
	vars := workflow.Variables{"enriched": true}
	if lookupErr != nil {
		cause := lookupErr.(*orchestrator.StepError).Cause.Error()
		logger.Warn("Lead enrichment failed", zap.String("Cause", cause))
		l.Status = StatusError
		l.Notes = "Error enriching lead: " + cause
		message = workflow.MessageLeadError
		name = event.LeadFailed
		vars = workflow.Variables{"enriched": false, "error": cause}
	} else {
		now := time.Now()
		l.Status = StatusEnriched
		l.EnrichedData = data
		l.EnrichedAt = &now
	}

	err = orchestrator.Call(ctx, p.CallTimeout, p.Metrics, OpEnrich, orchestrator.StepPublish, orchestrator.SystemWorkflow, func(ctx context.Context) error {
		return p.Workflow.PublishMessage(ctx, message, l.ProcessInstanceID, vars)
	})
	p.Metrics.ObservePublish(message, err)
	if err != nil {
		logger.Error("Unable to publish enrichment outcome", zap.Error(err))
		return nil, err
	}

	if err := p.persist(ctx, OpEnrich, l); err != nil {
		logger.Error("Outcome published but lead was not updated", zap.Error(err))
		return nil, err
	}

	logger.Info("Lead enrichment finished", zap.String("Status", string(l.Status)))
	p.emit(ctx, event.New(name, l.ID, map[string]interface{}{
		"processInstanceId": l.ProcessInstanceID,
		"status":            string(l.Status),
	}))
	return l, nil
}
