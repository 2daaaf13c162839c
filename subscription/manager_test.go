package subscription

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zllovesuki/billing-orchestrator/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	gdb, err := db.New(db.Options{
		URI:    "sqlite://" + filepath.Join(t.TempDir(), "subscription.db"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	m, err := NewManager(ManagerOptions{DB: gdb, Logger: zap.NewNop()})
	require.NoError(t, err)
	return m
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(ManagerOptions{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sub := &Subscription{
		CustomerEmail: "a@x.com",
		PlanID:        "P1",
		Amount:        decimal.RequireFromString("29.90"),
		Currency:      "usd",
		BillingCycle:  "month",
	}
	require.NoError(t, m.Create(ctx, sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, StatusPending, sub.Status)
	assert.False(t, sub.CreatedAt.IsZero())

	got, err := m.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a@x.com", got.CustomerEmail)
	assert.True(t, decimal.RequireFromString("29.90").Equal(got.Amount))

	missing, err := m.GetByID(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveAndLookupByGatewayID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	sub := &Subscription{CustomerEmail: "a@x.com"}
	require.NoError(t, m.Create(ctx, sub))

	sub.ERPCustomerCode = "C100"
	sub.GatewaySubscriptionID = "sub_1"
	sub.Status = StatusActive
	require.NoError(t, m.Save(ctx, sub))

	got, err := m.GetByGatewaySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, StageGateway, got.Stage())
}

func TestStage(t *testing.T) {
	sub := &Subscription{}
	assert.Equal(t, StageNew, sub.Stage())

	sub.ERPCustomerCode = "C100"
	assert.Equal(t, StageERP, sub.Stage())

	sub.GatewaySubscriptionID = "sub_1"
	assert.Equal(t, StageGateway, sub.Stage())
	assert.False(t, sub.IsFullyCreated())
	assert.False(t, sub.Correlated())

	sub.ProcessInstanceID = "inst_55"
	assert.Equal(t, StageComplete, sub.Stage())
	assert.True(t, sub.IsFullyCreated())
	assert.True(t, sub.Correlated())
	assert.Equal(t, "Complete", sub.Stage().String())
}

func TestListStalled(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	stalled := &Subscription{ERPCustomerCode: "C1", GatewaySubscriptionID: "sub_1"}
	complete := &Subscription{ERPCustomerCode: "C2", GatewaySubscriptionID: "sub_2", ProcessInstanceID: "inst_2"}
	erpOnly := &Subscription{ERPCustomerCode: "C3"}
	for _, s := range []*Subscription{stalled, complete, erpOnly} {
		require.NoError(t, m.Create(ctx, s))
	}

	results, err := m.ListStalled(ctx, StalledOption{Before: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stalled.ID, results[0].ID)

	results, err = m.ListStalled(ctx, StalledOption{Before: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestLookupByEmptyGatewayID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, &Subscription{CustomerEmail: "a@x.com", ERPCustomerCode: "C999"}))

	got, err := m.GetByGatewaySubscriptionID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = m.GetByID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInvoiceLink(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	missing, err := m.GetInvoiceLink(ctx, "in_1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, m.LinkInvoice(ctx, &InvoiceLink{GatewayInvoiceID: "in_1", ERPInvoiceID: "INV1", SubscriptionID: "s1"}))
	got, err := m.GetInvoiceLink(ctx, "in_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "INV1", got.ERPInvoiceID)

	require.NoError(t, m.LinkInvoice(ctx, &InvoiceLink{GatewayInvoiceID: "in_1", ERPInvoiceID: "INV2", SubscriptionID: "s1"}))
	got, err = m.GetInvoiceLink(ctx, "in_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "INV2", got.ERPInvoiceID)

	require.NoError(t, m.UnlinkInvoice(ctx, "in_1"))
	got, err = m.GetInvoiceLink(ctx, "in_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
