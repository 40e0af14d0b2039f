package quest

import (
	"sync"
)

// Registry holds the loaded quest definitions indexed by id and by
// trigger event key. Reload swaps the whole set atomically.
type Registry struct {
	mu      sync.RWMutex
	quests  map[string]*Definition   // lowercase id -> definition
	byEvent map[string][]*Definition // uppercase event key -> definitions
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		quests:  make(map[string]*Definition),
		byEvent: make(map[string][]*Definition),
	}
}

// Load replaces the registry contents and rebuilds the event index.
func (r *Registry) Load(defs map[string]*Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.quests = make(map[string]*Definition, len(defs))
	for id, def := range defs {
		r.quests[Key(id)] = def
	}
	r.rebuildIndexLocked()
}

// LoadDirectory loads definitions from dir and installs them.
func (r *Registry) LoadDirectory(dir string) error {
	defs, err := LoadDirectory(dir)
	if err != nil {
		return err
	}
	r.Load(defs)
	return nil
}

// RebuildIndex rederives the event index from the loaded set. Must be
// called after any definition edit performed outside Load.
func (r *Registry) RebuildIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuildIndexLocked()
}

func (r *Registry) rebuildIndexLocked() {
	r.byEvent = make(map[string][]*Definition)
	for _, def := range r.quests {
		key := EventKey(def.Event)
		r.byEvent[key] = append(r.byEvent[key], def)
	}
}

// Get returns the definition for id, case-insensitively, or nil.
// Callers must treat nil as "unknown quest".
func (r *Registry) Get(id string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quests[Key(id)]
}

// ByEvent returns the definitions triggered by the given event key.
// Never returns nil.
func (r *Registry) ByEvent(event string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := r.byEvent[EventKey(event)]
	if len(defs) == 0 {
		return []*Definition{}
	}
	out := make([]*Definition, len(defs))
	copy(out, defs)
	return out
}

// All returns every loaded definition.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.quests))
	for _, def := range r.quests {
		out = append(out, def)
	}
	return out
}

// Count returns the number of loaded definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.quests)
}

// CustomBindings returns definitions with a dynamic event binding,
// keyed by event class name. Used at load time to validate that every
// declared class resolves to a registered extractor.
func (r *Registry) CustomBindings() map[string][]*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]*Definition)
	for _, def := range r.quests {
		if def.Custom != nil {
			out[def.Custom.EventClass] = append(out[def.Custom.EventClass], def)
		}
	}
	return out
}
