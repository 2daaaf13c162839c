package mocks

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/enrichment"

	"github.com/stretchr/testify/mock"
)

var _ enrichment.Provider = &Provider{}

// Provider is a mock type for the enrichment.Provider type
type Provider struct {
	mock.Mock
}

// Name provides a mock function with given fields:
func (_m *Provider) Name() string {
	ret := _m.Called()
	return ret.String(0)
}

// Lookup provides a mock function with given fields: ctx, id
func (_m *Provider) Lookup(ctx context.Context, id enrichment.Identity) (map[string]interface{}, error) {
	ret := _m.Called(ctx, id)
	var r0 map[string]interface{}
	if v := ret.Get(0); v != nil {
		r0 = v.(map[string]interface{})
	}
	return r0, ret.Error(1)
}
