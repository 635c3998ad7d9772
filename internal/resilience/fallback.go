package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no member of a [FallbackGroup] produced a
// result. The failures of the individual members are joined to it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template for every member of a
// [FallbackGroup]. Each member's breaker is named "<group>/<member>".
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	backend T
	breaker *CircuitBreaker
}

// FallbackGroup holds interchangeable backends of one collaborator kind in
// preference order. Members must all be added before the group is shared.
type FallbackGroup[T any] struct {
	name    string
	cfg     FallbackConfig
	members []member[T]
}

// NewFallbackGroup returns a group named name whose first member is
// primary.
func NewFallbackGroup[T any](name string, primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{name: name, cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend tried after every earlier member.
func (g *FallbackGroup[T]) AddFallback(name string, backend T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = g.name + "/" + name
	g.members = append(g.members, member[T]{name: name, backend: backend, breaker: NewCircuitBreaker(bc)})
}

// Name returns the group name.
func (g *FallbackGroup[T]) Name() string { return g.name }

// Members returns the member names in preference order.
func (g *FallbackGroup[T]) Members() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.name
	}
	return names
}

// Breakers returns the member breakers in preference order.
func (g *FallbackGroup[T]) Breakers() []*CircuitBreaker {
	out := make([]*CircuitBreaker, len(g.members))
	for i, m := range g.members {
		out[i] = m.breaker
	}
	return out
}

// Healthy reports whether some member's breaker would admit a call.
func (g *FallbackGroup[T]) Healthy() bool {
	for _, m := range g.members {
		if m.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// Execute is [Call] for operations without a result.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := Call(ctx, g, func(ctx context.Context, backend T) (struct{}, error) {
		return struct{}{}, fn(ctx, backend)
	})
	return err
}

// Call runs fn against the members of g in order and returns the first
// result. Members with an open breaker are skipped. A caller error ends the
// walk at once since every member would reject the request alike.
func Call[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range g.members {
		var out R
		err := m.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, m.backend)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case IsCallerError(err):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping backend with open circuit", "group", g.name, "backend", m.name)
		default:
			slog.Warn("backend failed, trying the next one", "group", g.name, "backend", m.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return zero, fmt.Errorf("%s: %w: %w", g.name, ErrAllFailed, errors.Join(errs...))
}
