package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/zllovesuki/billing-orchestrator/db"
	"github.com/zllovesuki/billing-orchestrator/enrichment"
	"github.com/zllovesuki/billing-orchestrator/event"
	"github.com/zllovesuki/billing-orchestrator/lock"
	"github.com/zllovesuki/billing-orchestrator/mocks"
	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	p        *Process
	wf       *mocks.Engine
	producer *mocks.Producer
	linkedin *mocks.Provider
	clearbit *mocks.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.New(db.Options{
		URI:    "sqlite://" + filepath.Join(t.TempDir(), "lead.db"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	leads, err := NewManager(ManagerOptions{DB: gdb, Logger: zap.NewNop()})
	require.NoError(t, err)

	f := &fixture{
		wf:       &mocks.Engine{},
		producer: &mocks.Producer{},
		linkedin: &mocks.Provider{},
		clearbit: &mocks.Provider{},
	}
	f.linkedin.On("Name").Return(enrichment.LinkedIn)
	f.clearbit.On("Name").Return(enrichment.Clearbit)
	f.producer.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	enricher, err := enrichment.NewEnricher(enrichment.EnricherOptions{
		Providers: []enrichment.Provider{f.linkedin, f.clearbit},
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	f.p, err = NewProcess(ProcessOptions{
		Leads:    leads,
		Enricher: enricher,
		Workflow: f.wf,
		Locker:   lock.NewLocal(),
		Producer: f.producer,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return f
}

func newLead() *Lead {
	return &Lead{
		Name:    "Ana Silva",
		Email:   "ana@acme.com",
		Company: "Acme",
	}
}

func (f *fixture) start(t *testing.T) *Lead {
	t.Helper()
	f.wf.On("StartProcess", mock.Anything, workflow.ProcessLeadEnrichment, mock.MatchedBy(func(v workflow.Variables) bool {
		return v["leadId"] != "" && v["name"] == "Ana Silva" && v["email"] == "ana@acme.com" && v["company"] == "Acme"
	})).Return("inst_7", nil).Once()
	l, err := f.p.Start(context.Background(), newLead())
	require.NoError(t, err)
	return l
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	l := f.start(t)

	assert.Equal(t, StatusProcessing, l.Status)
	assert.Equal(t, "inst_7", l.ProcessInstanceID)

	stored, err := f.p.Leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "inst_7", stored.ProcessInstanceID)
}

func TestStartWorkflowFailure(t *testing.T) {
	f := newFixture(t)
	f.wf.On("StartProcess", mock.Anything, workflow.ProcessLeadEnrichment, mock.Anything).
		Return("", fmt.Errorf("unavailable")).Once()

	_, err := f.p.Start(context.Background(), newLead())
	se, ok := orchestrator.AsStepError(err)
	require.True(t, ok)
	assert.Equal(t, orchestrator.StepWorkflowStart, se.Step)
}

func TestEnrich(t *testing.T) {
	f := newFixture(t)
	l := f.start(t)

	id := l.Identity()
	f.linkedin.On("Lookup", mock.Anything, id).Return(map[string]interface{}{"headline": "CTO"}, nil).Once()
	f.clearbit.On("Lookup", mock.Anything, id).Return(map[string]interface{}{"seniority": "executive"}, nil).Once()
	f.wf.On("PublishMessage", mock.Anything, workflow.MessageLeadEnriched, "inst_7", workflow.Variables{
		"enriched": true,
	}).Return(nil).Once()

	got, err := f.p.Enrich(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnriched, got.Status)
	assert.NotNil(t, got.EnrichedAt)
	assert.Empty(t, got.Notes)

	stored, err := f.p.Leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnriched, stored.Status)
	require.Contains(t, stored.EnrichedData, enrichment.LinkedIn)
	require.Contains(t, stored.EnrichedData, enrichment.Clearbit)

	f.wf.AssertExpectations(t)
	f.producer.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(e event.SagaEvent) bool {
		return e.Name == event.LeadEnriched && e.EntityID == l.ID
	}))
}

func TestEnrichProviderFailure(t *testing.T) {
	f := newFixture(t)
	l := f.start(t)

	f.linkedin.On("Lookup", mock.Anything, mock.Anything).Return(map[string]interface{}{"headline": "CTO"}, nil).Maybe()
	f.clearbit.On("Lookup", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("clearbit returned status 429: slow down")).Once()
	f.wf.On("PublishMessage", mock.Anything, workflow.MessageLeadError, "inst_7", workflow.Variables{
		"enriched": false,
		"error":    "clearbit returned status 429: slow down",
	}).Return(nil).Once()

	got, err := f.p.Enrich(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "Error enriching lead: clearbit returned status 429: slow down", got.Notes)
	assert.Nil(t, got.EnrichedAt)

	stored, err := f.p.Leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, stored.Status)
	assert.Empty(t, stored.EnrichedData)
	f.wf.AssertExpectations(t)
}

func TestEnrichPublishFailure(t *testing.T) {
	f := newFixture(t)
	l := f.start(t)

	f.linkedin.On("Lookup", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil).Once()
	f.clearbit.On("Lookup", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil).Once()
	f.wf.On("PublishMessage", mock.Anything, workflow.MessageLeadEnriched, "inst_7", mock.Anything).
		Return(fmt.Errorf("unavailable")).Once()

	_, err := f.p.Enrich(context.Background(), l.ID)
	se, ok := orchestrator.AsStepError(err)
	require.True(t, ok)
	assert.Equal(t, orchestrator.StepPublish, se.Step)

	stored, err := f.p.Leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status)
}

func TestEnrichPreconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.Enrich(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	l := newLead()
	require.NoError(t, f.p.Leads.Create(context.Background(), l))
	_, err = f.p.Enrich(context.Background(), l.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	f.linkedin.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	assert.Empty(t, f.wf.Calls)
}

func TestBusyLead(t *testing.T) {
	f := newFixture(t)
	l := f.start(t)
	f.p.CallTimeout = 20 * time.Millisecond

	unlock, err := f.p.Locker.Lock(context.Background(), lockKey(l.ID))
	require.NoError(t, err)
	defer unlock()

	_, err = f.p.Enrich(context.Background(), l.ID)
	assert.ErrorIs(t, err, orchestrator.ErrBusy)
	f.linkedin.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	f.wf.AssertNumberOfCalls(t, "PublishMessage", 0)

	stored, err := f.p.Leads.GetByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status)
}

func TestService(t *testing.T) {
	f := newFixture(t)
	svc, err := NewService(ServiceOptions{Process: f.p, Logger: zap.NewNop()})
	require.NoError(t, err)
	h := svc.Router()

	post := func(path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
		return rec
	}

	assert.Equal(t, http.StatusUnprocessableEntity, post("/", CreateRequest{Name: "Ana", Email: "nope", Company: "Acme"}).Code)
	assert.Equal(t, http.StatusNotFound, post("/missing/enrich", nil).Code)

	f.wf.On("StartProcess", mock.Anything, workflow.ProcessLeadEnrichment, mock.Anything).Return("inst_7", nil).Once()
	rec := post("/", CreateRequest{Name: "Ana Silva", Email: "ana@acme.com", Company: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Result Lead `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "inst_7", created.Result.ProcessInstanceID)

	f.linkedin.On("Lookup", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil).Once()
	f.clearbit.On("Lookup", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil).Once()
	f.wf.On("PublishMessage", mock.Anything, workflow.MessageLeadEnriched, "inst_7", mock.Anything).Return(nil).Once()
	assert.Equal(t, http.StatusOK, post("/"+created.Result.ID+"/enrich", nil).Code)
	assert.Equal(t, http.StatusConflict, post("/"+created.Result.ID+"/enrich", nil).Code)
}
