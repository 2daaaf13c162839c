package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

var _ Gateway = &Stripe{}

const (
	paymentBehaviorErrorIfIncomplete = "error_if_incomplete"
	prorationAlwaysInvoice           = "always_invoice"
)

// APIError is a request the Stripe API answered with an error status
type APIError struct {
	StatusCode int
	Cause      *stripe.Error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Stripe returned HTTP %d: %s", e.StatusCode, e.Cause.Msg)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Temporary is true when the same request may succeed later
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func wrapStripe(err error, message string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return extErrors.Wrap(&APIError{StatusCode: se.HTTPStatusCode, Cause: se}, message)
	}
	return extErrors.Wrap(err, message)
}

// StripeOptions contains the dependencies of Stripe
type StripeOptions struct {
	Client *client.API
	Logger *zap.Logger
}

// Stripe implements Gateway on top of the Stripe API
type Stripe struct {
	StripeOptions
}

// NewStripe returns a Gateway backed by the given Stripe client
func NewStripe(option StripeOptions) (*Stripe, error) {
	if option.Client == nil {
		return nil, fmt.Errorf("nil Client is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Stripe{
		StripeOptions: option,
	}, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	s := &Subscription{
		ID:        sub.ID,
		Status:    string(sub.Status),
		StartDate: time.Unix(sub.StartDate, 0),
		PeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0),
	}
	if sub.Customer != nil {
		s.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		s.ItemID = sub.Items.Data[0].ID
	}
	if sub.EndedAt > 0 {
		ended := time.Unix(sub.EndedAt, 0)
		s.EndedAt = &ended
	}
	return s
}

func fromStripeInvoice(inv *stripe.Invoice) *Invoice {
	i := &Invoice{
		ID:       inv.ID,
		Number:   inv.Number,
		Amount:   FromMinorUnits(inv.AmountDue),
		Currency: string(inv.Currency),
		Metadata: inv.Metadata,
	}
	if inv.Customer != nil {
		i.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		i.SubscriptionID = inv.Subscription.ID
	}
	if inv.DueDate > 0 {
		due := time.Unix(inv.DueDate, 0)
		i.DueDate = &due
	}
	return i
}

// FindOrCreateCustomer searches customers by exact email. The first match has its metadata updated and is reused, otherwise a new customer is created
func (s *Stripe) FindOrCreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	listParams := &stripe.CustomerListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Limit:   stripe.Int64(1),
		},
		Email: stripe.String(email),
	}

	var existing *stripe.Customer
	iter := s.Client.Customers.List(listParams)
	if iter.Next() {
		existing = iter.Customer()
	}
	if err := iter.Err(); err != nil {
		return "", wrapStripe(err, "Cannot search customers on Stripe")
	}

	params := &stripe.CustomerParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	if existing != nil {
		s.Logger.Debug("Reusing existing customer on Stripe",
			zap.String("CustomerID", existing.ID),
		)
		cus, err := s.Client.Customers.Update(existing.ID, params)
		if err != nil {
			return "", wrapStripe(err, "Cannot update customer on Stripe")
		}
		return cus.ID, nil
	}

	params.Email = stripe.String(email)
	cus, err := s.Client.Customers.New(params)
	if err != nil {
		return "", wrapStripe(err, "Cannot create customer on Stripe")
	}
	return cus.ID, nil
}

// CreateSubscription charges the payment method off-session and fails instead of leaving an incomplete subscription behind
func (s *Stripe) CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (*Subscription, error) {
	if p.CustomerRef == "" || p.PlanRef == "" {
		return nil, fmt.Errorf("CustomerRef and PlanRef are required")
	}
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Customer: stripe.String(p.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price: stripe.String(p.PlanRef),
			},
		},
		PaymentBehavior: stripe.String(paymentBehaviorErrorIfIncomplete),
		OffSession:      stripe.Bool(true),
	}
	if p.PaymentMethodRef != "" {
		params.DefaultPaymentMethod = stripe.String(p.PaymentMethodRef)
	}

	sub, err := s.Client.Subscriptions.New(params)
	if err != nil {
		return nil, wrapStripe(err, "Cannot create subscription on Stripe")
	}
	return fromStripeSubscription(sub), nil
}

// RetrieveSubscription fetches the current state of a subscription
func (s *Stripe) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.Client.Subscriptions.Get(id, &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	if err != nil {
		return nil, wrapStripe(err, "Cannot retrieve subscription from Stripe")
	}
	return fromStripeSubscription(sub), nil
}

// UpdateSubscription swaps the price of the subscription item and invoices the proration immediately
func (s *Stripe) UpdateSubscription(ctx context.Context, current *Subscription, planRef string) (*Subscription, error) {
	if current == nil || current.ItemID == "" {
		return nil, fmt.Errorf("current subscription has no item to update")
	}
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.ItemID),
				Price: stripe.String(planRef),
			},
		},
		ProrationBehavior: stripe.String(prorationAlwaysInvoice),
	}
	sub, err := s.Client.Subscriptions.Update(current.ID, params)
	if err != nil {
		return nil, wrapStripe(err, "Cannot update subscription on Stripe")
	}
	return fromStripeSubscription(sub), nil
}

// CancelSubscription cancels immediately
func (s *Stripe) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.Client.Subscriptions.Cancel(id, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	if err != nil {
		return nil, wrapStripe(err, "Cannot cancel subscription on Stripe")
	}
	return fromStripeSubscription(sub), nil
}

// ResumeSubscription undoes a scheduled cancellation and a paused collection
func (s *Stripe) ResumeSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.AddExtra("pause_collection", "")
	sub, err := s.Client.Subscriptions.Update(id, params)
	if err != nil {
		return nil, wrapStripe(err, "Cannot resume subscription on Stripe")
	}
	return fromStripeSubscription(sub), nil
}

// CreatePaymentIntent creates a card payment intent for amount in currency
func (s *Stripe) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*PaymentIntent, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	pi, err := s.Client.PaymentIntents.New(&stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
		},
		Amount:             stripe.Int64(ToMinorUnits(amount)),
		Currency:           stripe.String(strings.ToLower(currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	})
	if err != nil {
		return nil, wrapStripe(err, "Cannot create payment intent on Stripe")
	}
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// RetrieveInvoice fetches an invoice
func (s *Stripe) RetrieveInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.Client.Invoices.Get(id, &stripe.InvoiceParams{
		Params: stripe.Params{
			Context: ctx,
		},
	})
	if err != nil {
		return nil, wrapStripe(err, "Cannot retrieve invoice from Stripe")
	}
	return fromStripeInvoice(inv), nil
}

// TagInvoice merges metadata into the invoice
func (s *Stripe) TagInvoice(ctx context.Context, id string, metadata map[string]string) error {
	params := &stripe.InvoiceParams{
		Params: stripe.Params{
			Context: ctx,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if _, err := s.Client.Invoices.Update(id, params); err != nil {
		return wrapStripe(err, "Cannot update invoice metadata on Stripe")
	}
	return nil
}
