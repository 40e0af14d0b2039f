// Package match decides whether a raw event satisfies a quest's
// declared target filter, via per-trigger-key matcher functions.
package match

import (
	"strings"
	"sync"

	"github.com/ashgrove/questforge/internal/host"
)

// Func tests one positive target token against an event. Matchers must
// be pure: no state, no side effects.
type Func func(player host.Player, event *host.Event, target string) bool

// SubjectEquals is the standard matcher: case-insensitive equality
// between the event subject and the target token.
func SubjectEquals(_ host.Player, event *host.Event, target string) bool {
	if event == nil {
		return false
	}
	return strings.EqualFold(event.Subject, target)
}

// Registry maps lowercase trigger keys to matcher functions.
type Registry struct {
	mu       sync.RWMutex
	matchers map[string]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{matchers: make(map[string]Func)}
}

// Register installs a matcher for a trigger key, replacing any previous
// registration.
func (r *Registry) Register(triggerKey string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers[strings.ToLower(triggerKey)] = fn
}

// RegisterDefault installs fn only when the trigger key has no matcher
// yet, so reloads never clobber a custom matcher.
func (r *Registry) RegisterDefault(triggerKey string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(triggerKey)
	if _, ok := r.matchers[key]; !ok {
		r.matchers[key] = fn
	}
}

// lookup returns the matcher for a trigger key, if any.
func (r *Registry) lookup(triggerKey string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.matchers[strings.ToLower(triggerKey)]
	return fn, ok
}

// Match reports whether the event passes the declared target filter for
// the given trigger key.
//
// Definitions without targets always pass, matcher or not. With targets
// declared, a trigger key without a registered matcher never matches.
// Tokens are evaluated left to right and the first decisive token wins:
// a negated token ("!HUSK") that matches fails immediately, a positive
// token that matches succeeds immediately. Exhausting the list yields
// true only when every token was a negation.
func (r *Registry) Match(triggerKey string, player host.Player, event *host.Event, targets []string) bool {
	if len(targets) == 0 {
		return true
	}

	fn, ok := r.lookup(triggerKey)
	if !ok {
		return false
	}

	allNegated := true
	for _, token := range targets {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if negated, found := strings.CutPrefix(token, "!"); found {
			if fn(player, event, negated) {
				return false
			}
			continue
		}
		allNegated = false
		if fn(player, event, token) {
			return true
		}
	}
	return allNegated
}
