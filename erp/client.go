package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ Client = &HTTPClient{}

const apiKeyHeader = "X-API-Key"

// HTTPClientOptions is the immutable configuration of HTTPClient
type HTTPClientOptions struct {
	BaseURL string
	APIKey  string
	// ReadRetries bounds the retries of idempotent GETs. Mutations are never retried
	ReadRetries uint64
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// HTTPClient talks JSON to the ERP REST API
type HTTPClient struct {
	HTTPClientOptions
	base *url.URL
}

// NewHTTPClient returns a Client for the ERP at option.BaseURL
func NewHTTPClient(option HTTPClientOptions) (*HTTPClient, error) {
	if option.BaseURL == "" {
		return nil, fmt.Errorf("empty BaseURL is invalid")
	}
	if option.APIKey == "" {
		return nil, fmt.Errorf("empty APIKey is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	base, err := url.Parse(strings.TrimSuffix(option.BaseURL, "/"))
	if err != nil {
		return nil, extErrors.Wrap(err, "Invalid BaseURL")
	}
	if option.HTTPClient == nil {
		option.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &HTTPClient{
		HTTPClientOptions: option,
		base:              base,
	}, nil
}

type codeResponse struct {
	Code string `json:"code"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type invoiceRequest struct {
	CustomerCode          string      `json:"customer_code"`
	Date                  string      `json:"date"`
	DueDate               string      `json:"due_date"`
	Amount                json.Number `json:"amount"`
	Currency              string      `json:"currency"`
	GatewayInvoiceID      string      `json:"stripe_invoice_id"`
	GatewaySubscriptionID string      `json:"subscription_id"`
	Status                string      `json:"status"`
}

func (c *HTTPClient) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.String() + "/api/v1/" + strings.Join(escaped, "/")
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return extErrors.Wrap(err, "Cannot encode request body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return extErrors.Wrap(err, "Cannot build request")
	}
	req.Header.Set(apiKeyHeader, c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return extErrors.Wrapf(err, "Cannot reach ERP at %s", endpoint)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &APIError{
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return extErrors.Wrap(err, "Cannot decode ERP response")
	}
	return nil
}

// get retries transport failures and 5xx with exponential backoff, 4xx answers are final
func (c *HTTPClient) get(ctx context.Context, endpoint string, out interface{}) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.ReadRetries),
		ctx,
	)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.do(ctx, http.MethodGet, endpoint, nil, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		c.Logger.Warn("ERP read failed",
			zap.String("Endpoint", endpoint),
			zap.Int("Attempt", attempt),
			zap.Error(err),
		)
		return err
	}, b)
}

// CreateOrUpdateCustomer registers the customer and returns the code the ERP assigned
func (c *HTTPClient) CreateOrUpdateCustomer(ctx context.Context, cus Customer) (string, error) {
	if cus.Type == "" {
		cus.Type = CustomerTypeCompany
	}
	if cus.Status == "" {
		cus.Status = CustomerActive
	}
	var res codeResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("customers"), cus, &res); err != nil {
		return "", extErrors.Wrap(err, "Cannot create or update customer in ERP")
	}
	if res.Code == "" {
		return "", fmt.Errorf("ERP returned an empty customer code")
	}
	return res.Code, nil
}

// CreateInvoice registers the invoice and returns the code the ERP assigned
func (c *HTTPClient) CreateInvoice(ctx context.Context, inv Invoice) (string, error) {
	if inv.Status == "" {
		inv.Status = InvoiceOpen
	}
	req := invoiceRequest{
		CustomerCode:          inv.CustomerCode,
		Date:                  FormatDate(inv.Date),
		DueDate:               FormatDate(inv.DueDate),
		Amount:                json.Number(inv.Amount.StringFixed(2)),
		Currency:              inv.Currency,
		GatewayInvoiceID:      inv.GatewayInvoiceID,
		GatewaySubscriptionID: inv.GatewaySubscriptionID,
		Status:                string(inv.Status),
	}
	var res codeResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint("invoices"), req, &res); err != nil {
		return "", extErrors.Wrap(err, "Cannot create invoice in ERP")
	}
	if res.Code == "" {
		return "", fmt.Errorf("ERP returned an empty invoice code")
	}
	return res.Code, nil
}

// UpdateInvoiceStatus sets the status code of an invoice
func (c *HTTPClient) UpdateInvoiceStatus(ctx context.Context, code string, status InvoiceStatus) error {
	if code == "" {
		return fmt.Errorf("empty invoice code is invalid")
	}
	if err := c.do(ctx, http.MethodPut, c.endpoint("invoices", code, "status"), statusRequest{Status: string(status)}, nil); err != nil {
		return extErrors.Wrap(err, "Cannot update invoice status in ERP")
	}
	return nil
}

// UpdateCustomerStatus sets the status code of a customer
func (c *HTTPClient) UpdateCustomerStatus(ctx context.Context, code string, status CustomerStatus) error {
	if code == "" {
		return fmt.Errorf("empty customer code is invalid")
	}
	if err := c.do(ctx, http.MethodPut, c.endpoint("customers", code, "status"), statusRequest{Status: string(status)}, nil); err != nil {
		return extErrors.Wrap(err, "Cannot update customer status in ERP")
	}
	return nil
}

// GetCustomer returns the ERP's record of the customer as-is
func (c *HTTPClient) GetCustomer(ctx context.Context, code string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := c.get(ctx, c.endpoint("customers", code), &out); err != nil {
		return nil, extErrors.Wrap(err, "Cannot get customer from ERP")
	}
	return out, nil
}

// GetInvoice returns the ERP's record of the invoice as-is
func (c *HTTPClient) GetInvoice(ctx context.Context, code string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := c.get(ctx, c.endpoint("invoices", code), &out); err != nil {
		return nil, extErrors.Wrap(err, "Cannot get invoice from ERP")
	}
	return out, nil
}
