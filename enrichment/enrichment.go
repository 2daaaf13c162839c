package enrichment

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Identity is what a Provider looks a person up by
type Identity struct {
	Name    string
	Email   string
	Company string
}

// Provider is a third-party lookup API returning a freeform attribute bag
type Provider interface {
	Name() string
	Lookup(ctx context.Context, id Identity) (map[string]interface{}, error)
}

// EnricherOptions contains the providers queried by Enricher
type EnricherOptions struct {
	Providers []Provider
	Logger    *zap.Logger
}

// Enricher queries every Provider and merges the results by provider name
type Enricher struct {
	EnricherOptions
}

// NewEnricher returns an Enricher over option.Providers
func NewEnricher(option EnricherOptions) (*Enricher, error) {
	if len(option.Providers) == 0 {
		return nil, fmt.Errorf("at least one Provider is required")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	seen := make(map[string]bool)
	for _, p := range option.Providers {
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate Provider %s", p.Name())
		}
		seen[p.Name()] = true
	}
	return &Enricher{
		EnricherOptions: option,
	}, nil
}

// Enrich runs the providers concurrently. The attempt fails as a whole on the first provider error
func (e *Enricher) Enrich(ctx context.Context, id Identity) (map[string]interface{}, error) {
	var mu sync.Mutex
	data := make(map[string]interface{}, len(e.Providers))

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range e.Providers {
		p := p
		g.Go(func() error {
			res, err := p.Lookup(gctx, id)
			if err != nil {
				e.Logger.Warn("Provider lookup failed",
					zap.String("Provider", p.Name()),
					zap.Error(err),
				)
				return err
			}
			mu.Lock()
			data[p.Name()] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}
