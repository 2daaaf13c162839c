package mocks

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/gateway"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var _ gateway.Gateway = &Gateway{}

// Gateway is a mock type for the gateway.Gateway type
type Gateway struct {
	mock.Mock
}

func (_m *Gateway) subscription(ret mock.Arguments) (*gateway.Subscription, error) {
	var r0 *gateway.Subscription
	if v := ret.Get(0); v != nil {
		r0 = v.(*gateway.Subscription)
	}
	return r0, ret.Error(1)
}

// FindOrCreateCustomer provides a mock function with given fields: ctx, email, metadata
func (_m *Gateway) FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	ret := _m.Called(ctx, email, metadata)
	return ret.String(0), ret.Error(1)
}

// CreateSubscription provides a mock function with given fields: ctx, params
func (_m *Gateway) CreateSubscription(ctx context.Context, params gateway.CreateSubscriptionParams) (*gateway.Subscription, error) {
	return _m.subscription(_m.Called(ctx, params))
}

// RetrieveSubscription provides a mock function with given fields: ctx, id
func (_m *Gateway) RetrieveSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	return _m.subscription(_m.Called(ctx, id))
}

// UpdateSubscription provides a mock function with given fields: ctx, current, planRef
func (_m *Gateway) UpdateSubscription(ctx context.Context, current *gateway.Subscription, planRef string) (*gateway.Subscription, error) {
	return _m.subscription(_m.Called(ctx, current, planRef))
}

// CancelSubscription provides a mock function with given fields: ctx, id
func (_m *Gateway) CancelSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	return _m.subscription(_m.Called(ctx, id))
}

// ResumeSubscription provides a mock function with given fields: ctx, id
func (_m *Gateway) ResumeSubscription(ctx context.Context, id string) (*gateway.Subscription, error) {
	return _m.subscription(_m.Called(ctx, id))
}

// CreatePaymentIntent provides a mock function with given fields: ctx, amount, currency
func (_m *Gateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*gateway.PaymentIntent, error) {
	ret := _m.Called(ctx, amount, currency)
	var r0 *gateway.PaymentIntent
	if v := ret.Get(0); v != nil {
		r0 = v.(*gateway.PaymentIntent)
	}
	return r0, ret.Error(1)
}

// RetrieveInvoice provides a mock function with given fields: ctx, id
func (_m *Gateway) RetrieveInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	ret := _m.Called(ctx, id)
	var r0 *gateway.Invoice
	if v := ret.Get(0); v != nil {
		r0 = v.(*gateway.Invoice)
	}
	return r0, ret.Error(1)
}

// TagInvoice provides a mock function with given fields: ctx, id, metadata
func (_m *Gateway) TagInvoice(ctx context.Context, id string, metadata map[string]string) error {
	ret := _m.Called(ctx, id, metadata)
	return ret.Error(0)
}
