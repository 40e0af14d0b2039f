package store

import (
	"sync"
	"time"

	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/google/uuid"
)

// Cached fronts a backend with an in-memory cache. The cache is the
// single source of truth for a live player's state; the backend is
// written behind on a fixed interval. A crash loses at most one flush
// interval of progress.
type Cached struct {
	mu      sync.RWMutex
	backend Store
	states  map[uuid.UUID]*progress.State
	dirty   map[uuid.UUID]struct{}

	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewCached wraps a backend. Call Start to begin the flush loop.
func NewCached(backend Store, interval time.Duration) *Cached {
	return &Cached{
		backend:  backend,
		states:   make(map[uuid.UUID]*progress.State),
		dirty:    make(map[uuid.UUID]struct{}),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (c *Cached) Start() {
	go c.flushLoop()
}

func (c *Cached) flushLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				logger.Error("Scheduled progress flush failed", "error", err)
			}
		case <-c.stopChan:
			return
		}
	}
}

// Get returns the live state for a player, loading it from the backend
// on first access. A load failure yields fresh state so the player can
// keep playing; the error is logged by the caller's policy.
func (c *Cached) Get(id uuid.UUID, name string) (*progress.State, error) {
	c.mu.RLock()
	state, ok := c.states[id]
	c.mu.RUnlock()
	if ok {
		return state, nil
	}

	loaded, err := c.backend.Load(id, name)
	if err != nil {
		loaded = progress.New(id, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have loaded meanwhile; keep the first one
	// so everyone shares a single live state.
	if existing, ok := c.states[id]; ok {
		return existing, nil
	}
	c.states[id] = loaded
	return loaded, err
}

// Peek returns the cached state without touching the backend.
func (c *Cached) Peek(id uuid.UUID) (*progress.State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[id]
	return state, ok
}

// MarkDirty queues a player's state for the next flush.
func (c *Cached) MarkDirty(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[id]; ok {
		c.dirty[id] = struct{}{}
	}
}

// Flush synchronously writes every dirty state to the backend. A state
// that fails to save stays dirty and is retried on the next flush.
func (c *Cached) Flush() error {
	c.mu.Lock()
	batch := make([]*progress.State, 0, len(c.dirty))
	ids := make([]uuid.UUID, 0, len(c.dirty))
	for id := range c.dirty {
		if state, ok := c.states[id]; ok {
			batch = append(batch, state)
			ids = append(ids, id)
		}
	}
	c.dirty = make(map[uuid.UUID]struct{})
	c.mu.Unlock()

	var firstErr error
	for i, state := range batch {
		if err := c.backend.Save(state); err != nil {
			logger.Error("Failed to save player progress, will retry",
				"player", state.PlayerName, "error", err)
			c.mu.Lock()
			c.dirty[ids[i]] = struct{}{}
			c.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoadAllPoints merges backend totals with the live cache, which wins
// for any player currently loaded.
func (c *Cached) LoadAllPoints() (map[uuid.UUID]int, error) {
	totals, err := c.backend.LoadAllPoints()
	if err != nil {
		totals = make(map[uuid.UUID]int)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, state := range c.states {
		totals[id] = state.TotalPoints()
	}
	return totals, err
}

// Each calls fn for every live cached state. fn must not call back
// into the cache.
func (c *Cached) Each(fn func(state *progress.State)) {
	c.mu.RLock()
	states := make([]*progress.State, 0, len(c.states))
	for _, state := range c.states {
		states = append(states, state)
	}
	c.mu.RUnlock()

	for _, state := range states {
		fn(state)
	}
}

// Reset wipes a player everywhere: cache, dirty set and backend.
func (c *Cached) Reset(id uuid.UUID) error {
	c.mu.Lock()
	delete(c.states, id)
	delete(c.dirty, id)
	c.mu.Unlock()
	return c.backend.Reset(id)
}

// ResetQuest wipes one quest for a player in cache and backend.
func (c *Cached) ResetQuest(id uuid.UUID, questID string) error {
	c.mu.Lock()
	if state, ok := c.states[id]; ok {
		state.ResetQuest(questID)
		c.dirty[id] = struct{}{}
		c.mu.Unlock()
		return nil // next flush persists the cached truth
	}
	c.mu.Unlock()
	return c.backend.ResetQuest(id, questID)
}

// Evict flushes and drops a single player from the cache, for use when
// a player disconnects.
func (c *Cached) Evict(id uuid.UUID) {
	c.mu.Lock()
	state, ok := c.states[id]
	delete(c.states, id)
	delete(c.dirty, id)
	c.mu.Unlock()

	if ok {
		if err := c.backend.Save(state); err != nil {
			logger.Error("Failed to save progress on evict",
				"player", state.PlayerName, "error", err)
		}
	}
}

// Close stops the flush loop, drains dirty state and closes the backend.
func (c *Cached) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	flushErr := c.Flush()
	closeErr := c.backend.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
