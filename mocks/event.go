package mocks

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/event"

	"github.com/stretchr/testify/mock"
)

var _ event.Producer = &Producer{}

// Producer is a mock type for the event.Producer type
type Producer struct {
	mock.Mock
}

// Close provides a mock function with given fields:
func (_m *Producer) Close() {
	_m.Called()
}

// Publish provides a mock function with given fields: ctx, e
func (_m *Producer) Publish(ctx context.Context, e event.SagaEvent) error {
	ret := _m.Called(ctx, e)
	return ret.Error(0)
}
