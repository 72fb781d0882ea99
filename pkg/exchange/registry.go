package exchange

import (
	"fmt"
	"strings"
	"sync"

	"botcontrol/pkg/clock"
)

// Factory builds an adapter bound to one set of credentials. The clock is
// shared process-wide so every adapter signs with the synchronized timestamp.
type Factory func(creds Credentials, clk *clock.Sync) Adapter

// Registry maps exchange identifiers to adapter factories. Registration
// happens once at process start; lookups are concurrent.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under the given exchange identifier.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Adapter builds an adapter for the named exchange.
func (r *Registry) Adapter(name string, creds Credentials, clk *clock.Sync) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &APIError{
			Exchange: name,
			Message:  fmt.Sprintf("unsupported exchange %q", name),
			Category: CategoryConfig,
		}
	}
	return f(creds, clk), nil
}

// Supported lists the registered exchange identifiers.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
