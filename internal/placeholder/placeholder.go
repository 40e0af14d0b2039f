// Package placeholder computes quest-related text expansions for chat,
// menus and external placeholder-text plugins, with a short-TTL cache
// to bound recomputation under high query rates.
package placeholder

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
)

// barLength is the width of the rendered progress bar.
const barLength = 10

// Provider computes placeholder values from live quest state. It
// satisfies the Expander interfaces of the condition and action
// packages.
type Provider struct {
	registry *quest.Registry
	cache    *store.Cached
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	value  string
	ok     bool
	expiry time.Time
}

// New creates a Provider over the quest registry and the live progress
// cache.
func New(registry *quest.Registry, cache *store.Cached, ttl time.Duration) *Provider {
	return &Provider{
		registry: registry,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
}

// Expand resolves a placeholder key for a player, memoized per
// (player, key) within the TTL.
func (p *Provider) Expand(player host.Player, key string) (string, bool) {
	cacheKey := player.ID().String() + "|" + key

	p.mu.Lock()
	if e, ok := p.entries[cacheKey]; ok && p.now().Before(e.expiry) {
		p.mu.Unlock()
		return e.value, e.ok
	}
	p.mu.Unlock()

	value, ok := p.resolve(player, key)

	p.mu.Lock()
	p.entries[cacheKey] = entry{value: value, ok: ok, expiry: p.now().Add(p.ttl)}
	p.mu.Unlock()
	return value, ok
}

// Clear wipes the cache.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]entry)
}

func (p *Provider) resolve(player host.Player, key string) (string, bool) {
	state, err := p.cache.Get(player.ID(), player.Name())
	if err != nil && state == nil {
		return "", false
	}

	key = strings.ToLower(key)
	switch key {
	case "active_count":
		return strconv.Itoa(state.ActiveCount()), true
	case "completed_count":
		return strconv.Itoa(state.CompletedCount()), true
	case "points":
		return strconv.Itoa(state.TotalPoints()), true
	}

	// current_* mirrors active_1_*.
	if field, ok := strings.CutPrefix(key, "current_"); ok {
		return p.activeField(state, 1, field)
	}

	// active_<n>_<field>, 1-indexed by start order.
	if rest, ok := strings.CutPrefix(key, "active_"); ok {
		idxStr, field, found := strings.Cut(rest, "_")
		if !found {
			return "", false
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 1 {
			return "", false
		}
		return p.activeField(state, idx, field)
	}

	// quest_<id>_<field> looks a quest up by id.
	if rest, ok := strings.CutPrefix(key, "quest_"); ok {
		id, field := splitIDField(rest)
		if id == "" {
			return "", false
		}
		return p.questField(state, id, field)
	}

	// progressbar_<id> renders a bar for one quest.
	if id, ok := strings.CutPrefix(key, "progressbar_"); ok {
		def := p.registry.Get(id)
		if def == nil {
			return "", false
		}
		return renderBar(state.Value(def.ID), def.Amount), true
	}

	return "", false
}

// activeField resolves a field of the nth active quest (1-indexed).
func (p *Provider) activeField(state *progress.State, idx int, field string) (string, bool) {
	ids := state.ActiveIDs()
	if idx > len(ids) {
		return "", true // valid query, nothing at that slot
	}
	return p.questField(state, ids[idx-1], field)
}

// questField resolves one field for one quest id.
func (p *Provider) questField(state *progress.State, id, field string) (string, bool) {
	def := p.registry.Get(id)
	switch field {
	case "id":
		return id, true
	case "name":
		if def == nil {
			return id, true
		}
		return def.Name, true
	case "value":
		return strconv.Itoa(state.Value(id)), true
	case "points":
		return strconv.Itoa(state.Points(id)), true
	case "progress":
		if def == nil {
			return strconv.Itoa(state.Value(id)), true
		}
		return FormatProgress(def, state.Value(id)), true
	case "bar":
		if def == nil {
			return "", false
		}
		return renderBar(state.Value(id), def.Amount), true
	}
	return "", false
}

// splitIDField separates "<id>_<field>" on the last underscore so
// quest ids containing underscores keep working.
func splitIDField(rest string) (string, string) {
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return "", ""
	}
	return rest[:idx], rest[idx+1:]
}

// FormatProgress renders a quest's progress line using its declared
// format template, falling back to "value/amount".
func FormatProgress(def *quest.Definition, value int) string {
	format := def.Display.ProgressFormat
	if format == "" {
		return strconv.Itoa(value) + "/" + strconv.Itoa(def.Amount)
	}
	out := strings.ReplaceAll(format, "%value%", strconv.Itoa(value))
	out = strings.ReplaceAll(out, "%amount%", strconv.Itoa(def.Amount))
	return out
}

// renderBar draws a fixed-width progress bar.
func renderBar(value, amount int) string {
	if amount < 1 {
		amount = 1
	}
	if value > amount {
		value = amount
	}
	if value < 0 {
		value = 0
	}
	filled := value * barLength / amount

	var b strings.Builder
	for i := 0; i < barLength; i++ {
		if i < filled {
			b.WriteRune('■')
		} else {
			b.WriteRune('□')
		}
	}
	return b.String()
}
