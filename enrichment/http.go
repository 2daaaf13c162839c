package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	extErrors "github.com/pkg/errors"
)

var _ Provider = &HTTPProvider{}

// Provider names, also the keys of the enriched data
const (
	LinkedIn = "linkedin"
	Clearbit = "clearbit"
	Hunter   = "hunter"
)

// HTTPProviderOptions is the immutable configuration of an HTTPProvider
type HTTPProviderOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPProvider is a bearer-authenticated JSON GET lookup
type HTTPProvider struct {
	HTTPProviderOptions
	name  string
	path  string
	query func(id Identity) url.Values
}

func newHTTPProvider(name, path string, query func(Identity) url.Values, option HTTPProviderOptions) (*HTTPProvider, error) {
	if option.BaseURL == "" {
		return nil, fmt.Errorf("empty BaseURL is invalid for %s", name)
	}
	if option.HTTPClient == nil {
		option.HTTPClient = &http.Client{
			Timeout: 15 * time.Second,
		}
	}
	option.BaseURL = strings.TrimSuffix(option.BaseURL, "/")
	return &HTTPProvider{
		HTTPProviderOptions: option,
		name:                name,
		path:                path,
		query:               query,
	}, nil
}

// NewLinkedIn searches people by name and company
func NewLinkedIn(option HTTPProviderOptions) (*HTTPProvider, error) {
	return newHTTPProvider(LinkedIn, "/people", func(id Identity) url.Values {
		return url.Values{"q": {strings.TrimSpace(id.Name + " " + id.Company)}}
	}, option)
}

// NewClearbit finds a person by email
func NewClearbit(option HTTPProviderOptions) (*HTTPProvider, error) {
	return newHTTPProvider(Clearbit, "/people/find", func(id Identity) url.Values {
		return url.Values{"email": {id.Email}}
	}, option)
}

// NewHunter finds the email of a person at a company
func NewHunter(option HTTPProviderOptions) (*HTTPProvider, error) {
	return newHTTPProvider(Hunter, "/email-finder", func(id Identity) url.Values {
		return url.Values{
			"full_name": {id.Name},
			"company":   {id.Company},
		}
	}, option)
}

// Name of the provider
func (h *HTTPProvider) Name() string {
	return h.name
}

// Lookup queries the provider for id
func (h *HTTPProvider) Lookup(ctx context.Context, id Identity) (map[string]interface{}, error) {
	u := h.BaseURL + h.path + "?" + h.query(id).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, extErrors.Wrapf(err, "Cannot build %s request", h.name)
	}
	req.Header.Set("Accept", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, extErrors.Wrapf(err, "%s lookup failed", h.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s returned status %d: %s", h.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data := make(map[string]interface{})
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil && err != io.EOF {
		return nil, extErrors.Wrapf(err, "Cannot decode %s response", h.name)
	}
	return data, nil
}
