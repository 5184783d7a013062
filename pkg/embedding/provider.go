// Package embedding defines the pluggable text-embedding capability used by
// the semantic matcher. Providers are selected from a registry by name; the
// deterministic hash-BOW baseline is always registered so the pipeline never
// runs without an embedding path.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider produces fixed-dimension unit-norm vectors. Implementations must
// honor the context deadline and return an error instead of panicking; the
// semantic matcher treats any error as "no vector evidence this request".
type Provider interface {
	Name() string
	Version() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// Register adds a provider to the registry. Later registrations with the
// same name replace earlier ones, which lets tests install fakes.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

// Get returns a registered provider by name.
func Get(name string) (Provider, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("embedding provider %q is not registered", name)
	}
	return p, nil
}

// Names lists registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
