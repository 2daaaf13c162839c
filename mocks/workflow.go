package mocks

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/workflow"

	"github.com/stretchr/testify/mock"
)

var _ workflow.Engine = &Engine{}

// Engine is a mock type for the workflow.Engine type
type Engine struct {
	mock.Mock
}

// StartProcess provides a mock function with given fields: ctx, processID, vars
func (_m *Engine) StartProcess(ctx context.Context, processID string, vars workflow.Variables) (string, error) {
	ret := _m.Called(ctx, processID, vars)
	return ret.String(0), ret.Error(1)
}

// PublishMessage provides a mock function with given fields: ctx, name, correlationKey, vars
func (_m *Engine) PublishMessage(ctx context.Context, name string, correlationKey string, vars workflow.Variables) error {
	ret := _m.Called(ctx, name, correlationKey, vars)
	return ret.Error(0)
}
