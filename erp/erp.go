package erp

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CustomerStatus is the ERP's short code for a customer state
type CustomerStatus string

// Defining CustomerStatus codes
const (
	CustomerActive     CustomerStatus = "A"
	CustomerSuspended  CustomerStatus = "S"
	CustomerTerminated CustomerStatus = "C"
)

// InvoiceStatus is the ERP's short code for an invoice state
type InvoiceStatus string

// Defining InvoiceStatus codes
const (
	InvoiceOpen    InvoiceStatus = "O"
	InvoicePaid    InvoiceStatus = "P"
	InvoiceNotPaid InvoiceStatus = "N"
)

// CustomerTypeCompany is the only customer type registered by the sagas
const CustomerTypeCompany = "J"

const dateLayout = "20060102"

// FormatDate renders t the way the ERP expects dates (yyyyMMdd)
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// CustomerStatusFor maps a gateway subscription status to the customer code the ERP should carry
func CustomerStatusFor(gatewayStatus string) CustomerStatus {
	switch gatewayStatus {
	case "active", "trialing":
		return CustomerActive
	case "canceled", "incomplete_expired":
		return CustomerTerminated
	default:
		return CustomerSuspended
	}
}

// Customer is the payload of CreateOrUpdateCustomer. An empty Code asks the ERP to allocate one
type Customer struct {
	Code              string         `json:"code,omitempty"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Type              string         `json:"type"`
	Status            CustomerStatus `json:"status"`
	GatewayCustomerID string         `json:"stripe_customer_id,omitempty"`
}

// Invoice is the payload of CreateInvoice
type Invoice struct {
	CustomerCode          string
	Date                  time.Time
	DueDate               time.Time
	Amount                decimal.Decimal
	Currency              string
	GatewayInvoiceID      string
	GatewaySubscriptionID string
	Status                InvoiceStatus
}

// Client is the back-office system as seen by the sagas
type Client interface {
	CreateOrUpdateCustomer(ctx context.Context, c Customer) (string, error)
	CreateInvoice(ctx context.Context, inv Invoice) (string, error)
	UpdateInvoiceStatus(ctx context.Context, code string, status InvoiceStatus) error
	UpdateCustomerStatus(ctx context.Context, code string, status CustomerStatus) error
	GetCustomer(ctx context.Context, code string) (map[string]interface{}, error)
	GetInvoice(ctx context.Context, code string) (map[string]interface{}, error)
}

// APIError is a non-2xx answer from the ERP
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ERP returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Temporary is true for server side failures
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
