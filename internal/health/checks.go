package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/tartil/internal/resilience"
	"github.com/MrWong99/tartil/internal/tajweed"
)

// CatalogCheck fails while engine returns nil or an engine whose rule
// catalog is empty. engine is called on every probe so a hot-swapped engine
// is seen immediately.
func CatalogCheck(engine func() *tajweed.Engine) Checker {
	return Checker{
		Name: "catalog",
		Check: func(context.Context) error {
			e := engine()
			if e == nil {
				return errors.New("no tajweed engine loaded")
			}
			if e.Catalog().Len() == 0 {
				return errors.New("rule catalog is empty")
			}
			return nil
		},
	}
}

// Group is a set of collaborator backends guarded by circuit breakers, such
// as a [resilience.FallbackGroup].
type Group interface {
	Name() string
	Healthy() bool
	Breakers() []*resilience.CircuitBreaker
}

// GroupCheck is an optional check failing when every backend of g has an
// open circuit breaker.
func GroupCheck(g Group) Checker {
	return Checker{
		Name:     g.Name(),
		Optional: true,
		Check: func(context.Context) error {
			if g.Healthy() {
				return nil
			}
			names := make([]string, 0, len(g.Breakers()))
			for _, b := range g.Breakers() {
				names = append(names, b.Name())
			}
			return fmt.Errorf("all circuit breakers open: %s", strings.Join(names, ", "))
		},
	}
}

// Pinger is a dependency that can be probed, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck is an optional check failing when p cannot be pinged.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping, Optional: true}
}
