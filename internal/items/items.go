// Package items resolves item ids for quest reward grants through an
// ordered provider chain: external item-mod integrations first, then
// the host's native registry.
package items

import (
	"strings"
	"sync"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
)

// Item is a resolvable, grantable item.
type Item struct {
	ID   string
	Name string
}

// Provider is an optional item source. Implementations for absent
// integrations report Available() == false and are skipped.
type Provider interface {
	// Available reports whether the integration is present.
	Available() bool

	// Lookup resolves an item id. Returns false when unknown.
	Lookup(id string) (Item, bool)
}

// Granter physically gives an item to a player on the host.
type Granter interface {
	GiveItem(player host.Player, item Item, amount int) error
}

// NullProvider is the no-op default for absent integrations.
type NullProvider struct{}

func (NullProvider) Available() bool           { return false }
func (NullProvider) Lookup(string) (Item, bool) { return Item{}, false }

// Registry is the host's native item table, usable both as the chain
// terminator and as a test double for external providers.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewRegistry creates an empty native registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Item)}
}

// Add registers an item under its lowercase id.
func (r *Registry) Add(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[strings.ToLower(item.ID)] = item
}

func (r *Registry) Available() bool { return true }

func (r *Registry) Lookup(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[strings.ToLower(id)]
	return item, ok
}

// Resolver walks the provider chain in order; the first provider that
// knows the id wins.
type Resolver struct {
	chain []Provider
}

// NewResolver builds a resolver over the given providers, in priority
// order. Nil providers are replaced with NullProvider.
func NewResolver(providers ...Provider) *Resolver {
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			p = NullProvider{}
		}
		chain = append(chain, p)
	}
	return &Resolver{chain: chain}
}

// Resolve returns the item for id, or false after logging a warning.
// A provider that panics is treated as unavailable for this lookup.
func (r *Resolver) Resolve(id string) (Item, bool) {
	for _, p := range r.chain {
		if !p.Available() {
			continue
		}
		if item, ok := safeLookup(p, id); ok {
			return item, true
		}
	}
	logger.Warning("Unresolvable item id, granting nothing", "item", id)
	return Item{}, false
}

// safeLookup shields the chain from a misbehaving integration.
func safeLookup(p Provider, id string) (item Item, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Item provider panicked", "item", id, "panic", rec)
			item, ok = Item{}, false
		}
	}()
	return p.Lookup(id)
}
