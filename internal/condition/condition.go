// Package condition parses and evaluates the line-oriented comparison
// expressions quest definitions use for success and fail conditions.
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
)

// Expander resolves %placeholder% keys the runtime does not know
// itself, typically via an external placeholder-text plugin.
type Expander interface {
	// Expand returns the text for a key, or false when unresolvable.
	Expand(player host.Player, key string) (string, bool)
}

// operator is a comparison operator in priority order for parsing:
// two-character operators must be tried before their one-character
// prefixes.
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// expression is a parsed condition line.
type expression struct {
	left  string
	op    string
	right string
}

// cacheEntry is a memoized evaluation result with an expiry.
type cacheEntry struct {
	result bool
	expiry time.Time
}

// Evaluator parses and evaluates expressions with two caches: parsed
// expressions by raw string (parsing dominates evaluation cost) and
// results per (player, expression) with a short TTL. Cached results may
// be stale within the TTL; that is a throughput tradeoff, not a
// correctness guarantee.
type Evaluator struct {
	ttl      time.Duration
	expander Expander
	now      func() time.Time

	parseMu    sync.RWMutex
	parseCache map[string]*expression

	resultMu    sync.Mutex
	resultCache map[string]cacheEntry
}

// New creates an Evaluator. expander may be nil.
func New(ttl time.Duration, expander Expander) *Evaluator {
	return &Evaluator{
		ttl:         ttl,
		expander:    expander,
		now:         time.Now,
		parseCache:  make(map[string]*expression),
		resultCache: make(map[string]cacheEntry),
	}
}

// Eval evaluates one expression for a player against an event and an
// ambient context map. Malformed expressions evaluate to false.
func (e *Evaluator) Eval(player host.Player, event *host.Event, ctx map[string]any, raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	key := player.ID().String() + "|" + raw
	e.resultMu.Lock()
	if entry, ok := e.resultCache[key]; ok && e.now().Before(entry.expiry) {
		e.resultMu.Unlock()
		return entry.result
	}
	e.resultMu.Unlock()

	result := e.evaluate(player, event, ctx, raw)

	e.resultMu.Lock()
	e.resultCache[key] = cacheEntry{result: result, expiry: e.now().Add(e.ttl)}
	e.resultMu.Unlock()
	return result
}

// EvalAll reports whether every expression holds (AND semantics).
func (e *Evaluator) EvalAll(player host.Player, event *host.Event, ctx map[string]any, raws []string) bool {
	for _, raw := range raws {
		if !e.Eval(player, event, ctx, raw) {
			return false
		}
	}
	return true
}

// EvalAny reports whether any expression holds (OR semantics).
func (e *Evaluator) EvalAny(player host.Player, event *host.Event, ctx map[string]any, raws []string) bool {
	for _, raw := range raws {
		if e.Eval(player, event, ctx, raw) {
			return true
		}
	}
	return false
}

// Clear wipes both caches. Called on engine shutdown.
func (e *Evaluator) Clear() {
	e.parseMu.Lock()
	e.parseCache = make(map[string]*expression)
	e.parseMu.Unlock()

	e.resultMu.Lock()
	e.resultCache = make(map[string]cacheEntry)
	e.resultMu.Unlock()
}

func (e *Evaluator) evaluate(player host.Player, event *host.Event, ctx map[string]any, raw string) bool {
	expr, err := e.parse(raw)
	if err != nil {
		logger.Debug("Malformed condition evaluates to false", "expr", raw, "error", err)
		return false
	}

	left := e.resolve(player, event, ctx, expr.left)
	right := e.resolve(player, event, ctx, expr.right)
	return compare(left, expr.op, right)
}

// parse splits a raw line into left/op/right, memoizing the result.
func (e *Evaluator) parse(raw string) (*expression, error) {
	e.parseMu.RLock()
	expr, ok := e.parseCache[raw]
	e.parseMu.RUnlock()
	if ok {
		return expr, nil
	}

	var parsed *expression
	for _, op := range operators {
		idx := strings.Index(raw, op)
		if idx <= 0 || idx+len(op) >= len(raw) {
			continue
		}
		left := strings.TrimSpace(raw[:idx])
		right := strings.TrimSpace(raw[idx+len(op):])
		if left == "" || right == "" {
			continue
		}
		parsed = &expression{left: left, op: op, right: right}
		break
	}
	if parsed == nil {
		return nil, fmt.Errorf("no comparison operator in %q", raw)
	}

	e.parseMu.Lock()
	e.parseCache[raw] = parsed
	e.parseMu.Unlock()
	return parsed, nil
}

// resolve turns a token into its comparable string value. Resolution
// order: event accessor chain, context map entry, %placeholder%,
// literal (quotes stripped).
func (e *Evaluator) resolve(player host.Player, event *host.Event, ctx map[string]any, token string) string {
	if path, ok := strings.CutPrefix(token, "event."); ok {
		if v, found := event.Get(path); found {
			return stringify(v)
		}
		return ""
	}

	if ctx != nil {
		if v, ok := ctx[token]; ok {
			return stringify(v)
		}
	}

	if len(token) > 1 && strings.HasPrefix(token, "%") && strings.HasSuffix(token, "%") {
		return e.resolvePlaceholder(player, ctx, token[1:len(token)-1])
	}

	return stripQuotes(token)
}

// resolvePlaceholder resolves a bare placeholder name from the context
// map, then the built-in variables, then the external expander.
func (e *Evaluator) resolvePlaceholder(player host.Player, ctx map[string]any, name string) string {
	if ctx != nil {
		if v, ok := ctx[name]; ok {
			return stringify(v)
		}
	}

	switch name {
	case "player", "player_name":
		return player.Name()
	case "uuid", "player_uuid":
		return player.ID().String()
	}

	if e.expander != nil {
		if v, ok := e.expander.Expand(player, name); ok {
			return v
		}
	}
	return ""
}

// compare applies the operator, numerically when both sides parse as
// numbers, otherwise as case-insensitive strings.
func compare(left, op, right string) bool {
	lf, lerr := strconv.ParseFloat(left, 64)
	rf, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		}
		return false
	}

	ls, rs := strings.ToLower(left), strings.ToLower(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case ">=":
		return ls >= rs
	case "<":
		return ls < rs
	case "<=":
		return ls <= rs
	}
	return false
}

// stringify renders a resolved value for comparison.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stripQuotes removes one matched pair of surrounding quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
