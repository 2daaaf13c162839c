package external

import (
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// StripeOptions is the per-client configuration of the Stripe API client. Nothing is read from package globals
type StripeOptions struct {
	Key string
	// URL overrides the API base URL, used to point at a mock server
	URL               string
	Timeout           time.Duration
	MaxNetworkRetries int64
	Logger            *zap.Logger
}

// NewStripeClient returns a Stripe client whose credentials and backend are fixed at construction
func NewStripeClient(opt StripeOptions) *client.API {
	cfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout: opt.Timeout,
		},
		MaxNetworkRetries: stripe.Int64(opt.MaxNetworkRetries),
	}
	if opt.URL != "" {
		cfg.URL = stripe.String(opt.URL)
	}
	if opt.Logger != nil {
		cfg.LeveledLogger = opt.Logger.Sugar()
	}

	sc := &client.API{}
	sc.Init(opt.Key, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})
	return sc
}
