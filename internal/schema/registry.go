package schema

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Collection)
	registryMu sync.RWMutex
)

// Register adds a collection to the registry.
// Panics if a collection with the same slug is already registered.
func Register(c Collection) {
	if err := Add(c); err != nil {
		panic(err.Error())
	}
}

// Add registers a collection, returning an error instead of panicking on a
// duplicate or empty slug. Used for collections loaded from files.
func Add(c Collection) error {
	if c.Slug == "" {
		return fmt.Errorf("collection slug is empty")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[c.Slug]; exists {
		return fmt.Errorf("collection already registered: %s", c.Slug)
	}

	if c.Label == "" {
		c.Label = c.Slug
	}

	registry[c.Slug] = c
	return nil
}

// Get returns a collection by slug.
// Returns false if not found.
func Get(slug string) (Collection, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c, ok := registry[slug]
	return c, ok
}

// All returns all registered collections sorted by slug.
func All() []Collection {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Collection, 0, len(registry))
	for _, c := range registry {
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slug < result[j].Slug
	})

	return result
}

// Count returns the number of registered collections.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered collections.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Collection)
}

// Provider resolves collections by slug.
type Provider interface {
	Get(slug string) (Collection, bool)
	All() []Collection
}

type registered struct{}

func (registered) Get(slug string) (Collection, bool) { return Get(slug) }
func (registered) All() []Collection                  { return All() }

// Registered is a Provider backed by the package registry.
var Registered Provider = registered{}

// Static is a Provider over a fixed set of collections.
type Static map[string]Collection

// Get implements Provider.
func (s Static) Get(slug string) (Collection, bool) {
	c, ok := s[slug]
	return c, ok
}

// All implements Provider, sorted by slug.
func (s Static) All() []Collection {
	out := make([]Collection, 0, len(s))
	for _, c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// NewStatic builds a Static provider keyed by slug.
func NewStatic(collections ...Collection) Static {
	s := make(Static, len(collections))
	for _, c := range collections {
		s[c.Slug] = c
	}
	return s
}
