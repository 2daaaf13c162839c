package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MetadataERPCustomerCode and MetadataERPInvoiceCode are the metadata keys cross-referencing gateway objects with the ERP
const (
	MetadataERPCustomerCode = "erp_customer_code"
	MetadataERPInvoiceCode  = "erp_invoice_code"
)

// Subscription is the gateway's view of a subscription
type Subscription struct {
	ID         string
	CustomerID string
	// ItemID is the single subscription item carrying the plan price
	ItemID    string
	Status    string
	StartDate time.Time
	PeriodEnd time.Time
	EndedAt   *time.Time
}

// Invoice is the gateway's view of an invoice
type Invoice struct {
	ID             string
	Number         string
	CustomerID     string
	SubscriptionID string
	Amount         decimal.Decimal
	Currency       string
	DueDate        *time.Time
	Metadata       map[string]string
}

// PaymentIntent is the result of CreatePaymentIntent
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// CreateSubscriptionParams identifies the billing party, the plan and how to charge
type CreateSubscriptionParams struct {
	CustomerRef      string
	PlanRef          string
	PaymentMethodRef string
}

// Gateway is the payment provider as seen by the sagas
type Gateway interface {
	// FindOrCreateCustomer is a non-atomic read-then-write: concurrent calls for the same email may both create
	FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, current *Subscription, planRef string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*Subscription, error)
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*PaymentIntent, error)
	RetrieveInvoice(ctx context.Context, id string) (*Invoice, error)
	TagInvoice(ctx context.Context, id string, metadata map[string]string) error
}

// ToMinorUnits converts an amount into the smallest currency unit, assuming two decimal places
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
