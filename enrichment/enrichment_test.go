package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	name  string
	data  map[string]interface{}
	err   error
	calls int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Lookup(ctx context.Context, id Identity) (map[string]interface{}, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.data, s.err
}

type captured struct {
	path  string
	query map[string]string
	auth  string
}

func newProviderServer(t *testing.T, status int, body map[string]interface{}) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{query: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		for k := range r.URL.Query() {
			c.query[k] = r.URL.Query().Get(k)
		}
		c.auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestHTTPProviders(t *testing.T) {
	id := Identity{Name: "Ana Lima", Email: "ana@acme.com", Company: "Acme"}

	tests := []struct {
		name      string
		build     func(HTTPProviderOptions) (*HTTPProvider, error)
		wantPath  string
		wantQuery map[string]string
	}{
		{
			name:      LinkedIn,
			build:     NewLinkedIn,
			wantPath:  "/people",
			wantQuery: map[string]string{"q": "Ana Lima Acme"},
		},
		{
			name:      Clearbit,
			build:     NewClearbit,
			wantPath:  "/people/find",
			wantQuery: map[string]string{"email": "ana@acme.com"},
		},
		{
			name:      Hunter,
			build:     NewHunter,
			wantPath:  "/email-finder",
			wantQuery: map[string]string{"full_name": "Ana Lima", "company": "Acme"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := newProviderServer(t, http.StatusOK, map[string]interface{}{"title": "CTO"})
			p, err := tt.build(HTTPProviderOptions{BaseURL: srv.URL + "/", APIKey: "k1"})
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name())

			data, err := p.Lookup(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, "CTO", data["title"])
			assert.Equal(t, tt.wantPath, c.path)
			assert.Equal(t, tt.wantQuery, c.query)
			assert.Equal(t, "Bearer k1", c.auth)
		})
	}
}

func TestHTTPProviderErrorStatus(t *testing.T) {
	srv, _ := newProviderServer(t, http.StatusTooManyRequests, map[string]interface{}{"error": "quota"})
	p, err := NewClearbit(HTTPProviderOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Lookup(context.Background(), Identity{Email: "a@x.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewHTTPProviderValidation(t *testing.T) {
	_, err := NewHunter(HTTPProviderOptions{})
	assert.Error(t, err)
}

func TestEnrichMergesByProvider(t *testing.T) {
	a := &stubProvider{name: "a", data: map[string]interface{}{"x": 1}}
	b := &stubProvider{name: "b", data: map[string]interface{}{"y": 2}}
	e, err := NewEnricher(EnricherOptions{Providers: []Provider{a, b}, Logger: zap.NewNop()})
	require.NoError(t, err)

	data, err := e.Enrich(context.Background(), Identity{Name: "n"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"x": 1},
		"b": map[string]interface{}{"y": 2},
	}, data)
}

func TestEnrichFailsAsAWhole(t *testing.T) {
	a := &stubProvider{name: "a", data: map[string]interface{}{"x": 1}}
	b := &stubProvider{name: "b", err: fmt.Errorf("hunter down")}
	e, err := NewEnricher(EnricherOptions{Providers: []Provider{a, b}, Logger: zap.NewNop()})
	require.NoError(t, err)

	data, err := e.Enrich(context.Background(), Identity{Name: "n"})
	assert.EqualError(t, err, "hunter down")
	assert.Nil(t, data)
}

func TestNewEnricherValidation(t *testing.T) {
	_, err := NewEnricher(EnricherOptions{Logger: zap.NewNop()})
	assert.Error(t, err)

	dup := []Provider{&stubProvider{name: "a"}, &stubProvider{name: "a"}}
	_, err = NewEnricher(EnricherOptions{Providers: dup, Logger: zap.NewNop()})
	assert.Error(t, err)
}
