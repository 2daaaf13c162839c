package mocks

import (
	"context"

	"github.com/zllovesuki/billing-orchestrator/erp"

	"github.com/stretchr/testify/mock"
)

var _ erp.Client = &ERP{}

// ERP is a mock type for the erp.Client type
type ERP struct {
	mock.Mock
}

// CreateOrUpdateCustomer provides a mock function with given fields: ctx, c
func (_m *ERP) CreateOrUpdateCustomer(ctx context.Context, c erp.Customer) (string, error) {
	ret := _m.Called(ctx, c)
	return ret.String(0), ret.Error(1)
}

// CreateInvoice provides a mock function with given fields: ctx, inv
func (_m *ERP) CreateInvoice(ctx context.Context, inv erp.Invoice) (string, error) {
	ret := _m.Called(ctx, inv)
	return ret.String(0), ret.Error(1)
}

// UpdateInvoiceStatus provides a mock function with given fields: ctx, code, status
func (_m *ERP) UpdateInvoiceStatus(ctx context.Context, code string, status erp.InvoiceStatus) error {
	ret := _m.Called(ctx, code, status)
	return ret.Error(0)
}

// UpdateCustomerStatus provides a mock function with given fields: ctx, code, status
func (_m *ERP) UpdateCustomerStatus(ctx context.Context, code string, status erp.CustomerStatus) error {
	ret := _m.Called(ctx, code, status)
	return ret.Error(0)
}

// GetCustomer provides a mock function with given fields: ctx, code
func (_m *ERP) GetCustomer(ctx context.Context, code string) (map[string]interface{}, error) {
	ret := _m.Called(ctx, code)
	var r0 map[string]interface{}
	if v := ret.Get(0); v != nil {
		r0 = v.(map[string]interface{})
	}
	return r0, ret.Error(1)
}

// GetInvoice provides a mock function with given fields: ctx, code
func (_m *ERP) GetInvoice(ctx context.Context, code string) (map[string]interface{}, error) {
	ret := _m.Called(ctx, code)
	var r0 map[string]interface{}
	if v := ret.Get(0); v != nil {
		r0 = v.(map[string]interface{})
	}
	return r0, ret.Error(1)
}
