// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry of named strategy constructors.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tradesim/internal/domain"
)

// ErrUnknownStrategy is returned by Registry.New for unregistered names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement. A
// Strategy instance belongs to a single run and is not shared.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// Generate is called once per event, in time order. It returns zero or
	// more trading signals.
	Generate(ctx context.Context, event domain.Event) ([]domain.Signal, error)
}

// Params are the numeric parameters a strategy is built with.
type Params map[string]float64

// Get returns params[key], or def when the key is absent.
func (p Params) Get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Factory builds a fresh Strategy from params.
type Factory func(params Params) (Strategy, error)

// Registry holds named strategy factories for lookup and enumeration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds a new instance of the named strategy.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("building strategy %q: %w", name, err)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
