// internal/alert/registry.go

// Package alert turns error-class messages into operator notifications.
package alert

import (
	"fmt"
	"strings"
	"sync"

	"github.com/user/threatsight/internal/types"
)

// Registry routes alert targets to the appropriate sink based on the target
// prefix (e.g. "telegram:12345", "slack:#fraud-ops").
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]types.AlertSink
}

// NewRegistry creates an empty sink registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]types.AlertSink),
	}
}

// Register adds a sink, keyed by its Name.
func (r *Registry) Register(sink types.AlertSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sink.Name()] = sink
}

// Deliver splits target into "<sink>:<address>", finds the sink, and sends.
// Returns an error if no sink is registered for the prefix.
func (r *Registry) Deliver(target, text string) error {
	name, address, ok := strings.Cut(target, ":")
	if !ok || address == "" {
		return fmt.Errorf("malformed alert target: %s", target)
	}

	r.mu.RLock()
	sink, registered := r.sinks[name]
	r.mu.RUnlock()
	if !registered {
		return fmt.Errorf("no alert sink for target: %s", target)
	}
	return sink.Send(address, text)
}

// Sinks lists the registered sink names.
func (r *Registry) Sinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	return names
}
