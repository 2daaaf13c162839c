package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/zllovesuki/billing-orchestrator/external"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	Method string
	Path   string
	Form   url.Values
}

type fakeStripe struct {
	mu       sync.Mutex
	calls    []recordedCall
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Form: r.Form})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"no such route"}}`)
		return
	}
	h(w, r)
}

func (f *fakeStripe) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (f *fakeStripe) last(method, path string) *recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method && f.calls[i].Path == path {
			c := f.calls[i]
			return &c
		}
	}
	return nil
}

func jsonHandler(status int, body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

const subscriptionJSON = `{
	"id": "sub_1",
	"object": "subscription",
	"status": "active",
	"customer": "cus_1",
	"start_date": 1600000000,
	"current_period_end": 1602592000,
	"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item"}], "has_more": false, "url": "/v1/subscription_items"}
}`

func newTestStripe(t *testing.T, handlers map[string]func(w http.ResponseWriter, r *http.Request)) (*Stripe, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{handlers: handlers}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	sc := external.NewStripeClient(external.StripeOptions{
		Key:    "sk_test_123",
		URL:    srv.URL,
		Logger: zap.NewNop(),
	})
	gw, err := NewStripe(StripeOptions{Client: sc, Logger: zap.NewNop()})
	require.NoError(t, err)
	return gw, fake
}

func TestNewStripeValidation(t *testing.T) {
	_, err := NewStripe(StripeOptions{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestFindOrCreateCustomer(t *testing.T) {
	tests := []struct {
		name         string
		listBody     string
		expectCreate int
		expectUpdate int
		expectedRef  string
	}{
		{
			name:         "no existing customer creates one",
			listBody:     `{"object":"list","data":[],"has_more":false,"url":"/v1/customers"}`,
			expectCreate: 1,
			expectUpdate: 0,
			expectedRef:  "cus_new",
		},
		{
			name:         "existing customer is updated and reused",
			listBody:     `{"object":"list","data":[{"id":"cus_1","object":"customer","email":"a@x.com"}],"has_more":false,"url":"/v1/customers"}`,
			expectCreate: 0,
			expectUpdate: 1,
			expectedRef:  "cus_1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
				"GET /v1/customers":        jsonHandler(200, tt.listBody),
				"POST /v1/customers":       jsonHandler(200, `{"id":"cus_new","object":"customer"}`),
				"POST /v1/customers/cus_1": jsonHandler(200, `{"id":"cus_1","object":"customer"}`),
			})

			ref, err := gw.FindOrCreateCustomer(context.Background(), "a@x.com", map[string]string{
				MetadataERPCustomerCode: "C100",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expectedRef, ref)

			assert.Equal(t, tt.expectCreate, fake.count("POST", "/v1/customers"))
			assert.Equal(t, tt.expectUpdate, fake.count("POST", "/v1/customers/cus_1"))

			search := fake.last("GET", "/v1/customers")
			require.NotNil(t, search)
			assert.Equal(t, "a@x.com", search.Form.Get("email"))

			var write *recordedCall
			if tt.expectCreate > 0 {
				write = fake.last("POST", "/v1/customers")
				assert.Equal(t, "a@x.com", write.Form.Get("email"))
			} else {
				write = fake.last("POST", "/v1/customers/cus_1")
			}
			assert.Equal(t, "C100", write.Form.Get("metadata[erp_customer_code]"))
		})
	}
}

func TestCreateSubscription(t *testing.T) {
	gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /v1/subscriptions": jsonHandler(200, subscriptionJSON),
	})

	sub, err := gw.CreateSubscription(context.Background(), CreateSubscriptionParams{
		CustomerRef:      "cus_1",
		PlanRef:          "P1",
		PaymentMethodRef: "pm_1",
	})
	require.NoError(t, err)

	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "si_1", sub.ItemID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, int64(1600000000), sub.StartDate.Unix())
	assert.Equal(t, int64(1602592000), sub.PeriodEnd.Unix())

	call := fake.last("POST", "/v1/subscriptions")
	require.NotNil(t, call)
	assert.Equal(t, "cus_1", call.Form.Get("customer"))
	assert.Equal(t, "P1", call.Form.Get("items[0][price]"))
	assert.Equal(t, "error_if_incomplete", call.Form.Get("payment_behavior"))
	assert.Equal(t, "true", call.Form.Get("off_session"))
	assert.Equal(t, "pm_1", call.Form.Get("default_payment_method"))
}

func TestCreateSubscriptionDeclined(t *testing.T) {
	gw, _ := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /v1/subscriptions": jsonHandler(402, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`),
	})

	sub, err := gw.CreateSubscription(context.Background(), CreateSubscriptionParams{
		CustomerRef: "cus_1",
		PlanRef:     "P1",
	})
	assert.Nil(t, sub)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot create subscription on Stripe")
}

func TestUpdateSubscription(t *testing.T) {
	gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /v1/subscriptions/sub_1":  jsonHandler(200, subscriptionJSON),
		"POST /v1/subscriptions/sub_1": jsonHandler(200, subscriptionJSON),
	})
	ctx := context.Background()

	current, err := gw.RetrieveSubscription(ctx, "sub_1")
	require.NoError(t, err)

	updated, err := gw.UpdateSubscription(ctx, current, "P2")
	require.NoError(t, err)
	assert.Equal(t, "active", updated.Status)

	call := fake.last("POST", "/v1/subscriptions/sub_1")
	require.NotNil(t, call)
	assert.Equal(t, "si_1", call.Form.Get("items[0][id]"))
	assert.Equal(t, "P2", call.Form.Get("items[0][price]"))
	assert.Equal(t, "always_invoice", call.Form.Get("proration_behavior"))

	_, err = gw.UpdateSubscription(ctx, &Subscription{ID: "sub_1"}, "P2")
	assert.Error(t, err)
}

func TestCancelAndResumeSubscription(t *testing.T) {
	gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"DELETE /v1/subscriptions/sub_1": jsonHandler(200, `{"id":"sub_1","object":"subscription","status":"canceled","ended_at":1601000000}`),
		"POST /v1/subscriptions/sub_1":   jsonHandler(200, subscriptionJSON),
	})
	ctx := context.Background()

	canceled, err := gw.CancelSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status)
	require.NotNil(t, canceled.EndedAt)
	assert.Equal(t, int64(1601000000), canceled.EndedAt.Unix())
	assert.Equal(t, 1, fake.count("DELETE", "/v1/subscriptions/sub_1"))

	resumed, err := gw.ResumeSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "active", resumed.Status)

	call := fake.last("POST", "/v1/subscriptions/sub_1")
	require.NotNil(t, call)
	assert.Equal(t, "false", call.Form.Get("cancel_at_period_end"))
}

func TestCreatePaymentIntent(t *testing.T) {
	gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"POST /v1/payment_intents": jsonHandler(200, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method"}`),
	})

	pi, err := gw.CreatePaymentIntent(context.Background(), decimal.RequireFromString("29.90"), "USD")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret", pi.ClientSecret)

	call := fake.last("POST", "/v1/payment_intents")
	require.NotNil(t, call)
	assert.Equal(t, "2990", call.Form.Get("amount"))
	assert.Equal(t, "usd", call.Form.Get("currency"))
	assert.Equal(t, "card", call.Form.Get("payment_method_types[0]"))

	_, err = gw.CreatePaymentIntent(context.Background(), decimal.Zero, "usd")
	assert.Error(t, err)
}

func TestInvoices(t *testing.T) {
	gw, fake := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"GET /v1/invoices/in_1":  jsonHandler(200, `{"id":"in_1","object":"invoice","number":"INV-1","customer":"cus_1","subscription":"sub_1","amount_due":2990,"currency":"usd","due_date":1602592000,"metadata":{}}`),
		"POST /v1/invoices/in_1": jsonHandler(200, `{"id":"in_1","object":"invoice","metadata":{"erp_invoice_code":"F200"}}`),
	})
	ctx := context.Background()

	inv, err := gw.RetrieveInvoice(ctx, "in_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", inv.SubscriptionID)
	assert.Equal(t, "cus_1", inv.CustomerID)
	assert.True(t, decimal.RequireFromString("29.90").Equal(inv.Amount))
	require.NotNil(t, inv.DueDate)

	require.NoError(t, gw.TagInvoice(ctx, "in_1", map[string]string{MetadataERPInvoiceCode: "F200"}))
	call := fake.last("POST", "/v1/invoices/in_1")
	require.NotNil(t, call)
	assert.Equal(t, "F200", call.Form.Get("metadata[erp_invoice_code]"))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2990), ToMinorUnits(decimal.RequireFromString("29.90")))
	assert.Equal(t, int64(100), ToMinorUnits(decimal.RequireFromString("0.999")))
	assert.True(t, decimal.RequireFromString("12.34").Equal(FromMinorUnits(1234)))
}

func TestAPIErrorTemporary(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
	}{
		{name: "declined", status: 402, temporary: false},
		{name: "rate limited", status: 429, temporary: true},
		{name: "unavailable", status: 503, temporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newTestStripe(t, map[string]func(w http.ResponseWriter, r *http.Request){
				"GET /v1/subscriptions/sub_1": jsonHandler(tt.status, `{"error":{"type":"api_error","message":"nope"}}`),
			})

			_, err := gw.RetrieveSubscription(context.Background(), "sub_1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.temporary, apiErr.Temporary())
		})
	}
}
