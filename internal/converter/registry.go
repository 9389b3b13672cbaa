package converter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoResult is returned whenever a strategy cannot produce a value: unknown
// strategy, bad arguments, no row, failed or timed-out call.
var ErrNoResult = errors.New("conversion produced no result")

// DefaultTimeout bounds a single strategy call.
const DefaultTimeout = 2 * time.Second

// Strategy converts a captured value using static per-rule arguments.
type Strategy interface {
	Convert(ctx context.Context, value string, args []string) (string, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, value string, args []string) (string, error)

// Convert implements Strategy.
func (f StrategyFunc) Convert(ctx context.Context, value string, args []string) (string, error) {
	return f(ctx, value, args)
}

// Observer is notified of every strategy call outcome.
type Observer interface {
	ObserveStrategy(name, outcome string)
}

// Registry dispatches conversions by strategy name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	timeout    time.Duration
	logger     *logrus.Entry
	observer   Observer
}

// Config holds registry settings
type Config struct {
	Timeout  time.Duration
	Logger   *logrus.Entry
	Observer Observer
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		strategies: make(map[string]Strategy),
		timeout:    timeout,
		logger:     logger.WithField("component", "converter"),
		observer:   cfg.Observer,
	}
}

// Register adds or replaces the strategy for name.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[name] = s
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[name]
	return ok
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Convert runs the named strategy under the registry timeout. Any failure,
// including a panic inside the strategy, is reported as ErrNoResult.
func (r *Registry) Convert(ctx context.Context, name, value string, args []string) (string, error) {
	r.mu.RLock()
	s, ok := r.strategies[name]
	r.mu.RUnlock()
	if !ok {
		r.observe(name, "unknown")
		r.logger.WithField("strategy", name).Warn("unknown conversion strategy")
		return "", fmt.Errorf("strategy %q: %w", name, ErrNoResult)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("strategy panicked: %v", p)}
			}
		}()
		v, err := s.Convert(ctx, value, args)
		done <- result{value: v, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}

	switch {
	case res.err == nil:
		r.observe(name, "ok")
		return res.value, nil
	case errors.Is(res.err, ErrNoResult):
		r.observe(name, "no_result")
		return "", fmt.Errorf("strategy %q: %w", name, res.err)
	default:
		r.observe(name, "error")
		r.logger.WithFields(logrus.Fields{
			"strategy": name,
			"value":    value,
		}).WithError(res.err).Warn("conversion strategy failed")
		return "", fmt.Errorf("strategy %q: %v: %w", name, res.err, ErrNoResult)
	}
}

func (r *Registry) observe(name, outcome string) {
	if r.observer != nil {
		r.observer.ObserveStrategy(name, outcome)
	}
}
