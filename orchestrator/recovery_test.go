package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/zllovesuki/billing-orchestrator/subscription"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (f *fixture) seedStalled(t *testing.T) *subscription.Subscription {
	return f.seed(t, &subscription.Subscription{
		ERPCustomerCode:       "C100",
		GatewayCustomerID:     "cus_1",
		GatewaySubscriptionID: "sub_1",
		PlanID:                "P1",
		Status:                subscription.StatusActive,
	})
}

func TestResumeCreation(t *testing.T) {
	f := newFixture(t)
	sub := f.seedStalled(t)

	f.wf.On("StartProcess", mock.Anything, workflow.ProcessBilling, mock.MatchedBy(func(v workflow.Variables) bool {
		return v["subscriptionId"] == sub.ID && v["gatewaySubscriptionId"] == "sub_1"
	})).Return("inst_77", nil).Once()

	got, err := f.o.ResumeCreation(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "inst_77", got.ProcessInstanceID)
	assert.True(t, f.reload(t, sub.ID).IsFullyCreated())
	assert.Empty(t, f.gw.Calls)
	assert.Empty(t, f.erp.Calls)
}

func TestResumeCreationStates(t *testing.T) {
	f := newFixture(t)

	complete := f.seedCorrelated(t)
	got, err := f.o.ResumeCreation(context.Background(), complete.ID)
	require.NoError(t, err)
	assert.Equal(t, "inst_55", got.ProcessInstanceID)

	erpOnly := f.seed(t, &subscription.Subscription{ERPCustomerCode: "C100"})
	_, err = f.o.ResumeCreation(context.Background(), erpOnly.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.o.ResumeCreation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	f.assertNoRemoteCalls(t)
}

func TestTaskSweep(t *testing.T) {
	f := newFixture(t)
	first := f.seedStalled(t)
	second := f.seedStalled(t)
	f.seedCorrelated(t)

	f.wf.On("StartProcess", mock.Anything, workflow.ProcessBilling, mock.MatchedBy(func(v workflow.Variables) bool {
		return v["subscriptionId"] == first.ID
	})).Return("inst_1", nil).Once()
	f.wf.On("StartProcess", mock.Anything, workflow.ProcessBilling, mock.MatchedBy(func(v workflow.Variables) bool {
		return v["subscriptionId"] == second.ID
	})).Return("", fmt.Errorf("unavailable")).Once()

	task, err := NewTask(TaskOptions{
		Orchestrator: f.o,
		Logger:       zap.NewNop(),
		Interval:     time.Minute,
		Grace:        -time.Minute,
	})
	require.NoError(t, err)

	n, err := task.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.wf.AssertNumberOfCalls(t, "StartProcess", 2)

	assert.Equal(t, "inst_1", f.reload(t, first.ID).ProcessInstanceID)
	assert.Empty(t, f.reload(t, second.ID).ProcessInstanceID)
}

func TestTaskSweepRespectsGrace(t *testing.T) {
	f := newFixture(t)
	f.seedStalled(t)

	task, err := NewTask(TaskOptions{
		Orchestrator: f.o,
		Logger:       zap.NewNop(),
		Interval:     time.Minute,
		Grace:        time.Hour,
	})
	require.NoError(t, err)

	n, err := task.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.wf.Calls)
}

func TestTaskRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	task, err := NewTask(TaskOptions{
		Orchestrator: f.o,
		Logger:       zap.NewNop(),
		Interval:     5 * time.Millisecond,
		Grace:        time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
