// Package action compiles and runs a quest's declarative side-effect
// lines: messages, server commands, item grants and delays.
package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/items"
	"github.com/ashgrove/questforge/internal/logger"
)

// Expander optionally resolves %key% placeholders the executor does not
// know itself.
type Expander interface {
	Expand(player host.Player, key string) (string, bool)
}

// kind is the action line type.
type kind int

const (
	kindMessage kind = iota
	kindCommand
	kindItem
)

// broadcastSuffix marks a line as server-wide instead of per-player.
const broadcastSuffix = "@all"

// entry is one compiled action line.
type entry struct {
	kind      kind
	text      string // message text or command line or item id
	amount    int    // item grant amount
	broadcast bool
}

// bucket groups entries sharing one cumulative delay.
type bucket struct {
	delay   time.Duration
	entries []entry
}

// Plan is an ordered, delay-bucketed execution plan.
type Plan struct {
	buckets []bucket
}

// Empty reports whether the plan has nothing to do.
func (p *Plan) Empty() bool {
	return p == nil || len(p.buckets) == 0
}

// Executor runs plans against the host. All side effects are marshaled
// through the scheduler onto the main context.
type Executor struct {
	scheduler   host.Scheduler
	runner      host.CommandRunner
	broadcaster host.Broadcaster
	resolver    *items.Resolver
	granter     items.Granter
	expander    Expander
}

// New creates an Executor. runner, broadcaster, granter and expander
// may be nil; the corresponding line kinds then log and do nothing.
func New(scheduler host.Scheduler, runner host.CommandRunner, broadcaster host.Broadcaster,
	resolver *items.Resolver, granter items.Granter, expander Expander) *Executor {
	return &Executor{
		scheduler:   scheduler,
		runner:      runner,
		broadcaster: broadcaster,
		resolver:    resolver,
		granter:     granter,
		expander:    expander,
	}
}

// Compile parses action lines into a delay-bucketed plan. Lines
// sharing a cumulative delay execute together. A malformed line is
// logged and skipped; it never aborts its siblings.
func Compile(lines []string) *Plan {
	plan := &Plan{}
	var cumulative time.Duration

	appendEntry := func(e entry) {
		n := len(plan.buckets)
		if n > 0 && plan.buckets[n-1].delay == cumulative {
			plan.buckets[n-1].entries = append(plan.buckets[n-1].entries, e)
			return
		}
		plan.buckets = append(plan.buckets, bucket{delay: cumulative, entries: []entry{e}})
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		verb, rest, found := strings.Cut(line, ":")
		if !found {
			logger.Warning("Skipping malformed action line", "line", raw)
			continue
		}
		verb = strings.ToLower(strings.TrimSpace(verb))
		rest = strings.TrimSpace(rest)

		broadcast := false
		if trimmed, ok := strings.CutSuffix(rest, broadcastSuffix); ok {
			broadcast = true
			rest = strings.TrimSpace(trimmed)
		}

		switch verb {
		case "delay":
			secs, err := strconv.ParseFloat(rest, 64)
			if err != nil || secs < 0 {
				logger.Warning("Skipping malformed delay line", "line", raw)
				continue
			}
			cumulative += time.Duration(secs * float64(time.Second))
		case "message":
			appendEntry(entry{kind: kindMessage, text: rest, broadcast: broadcast})
		case "command":
			appendEntry(entry{kind: kindCommand, text: rest, broadcast: broadcast})
		case "item":
			id, amount := parseItemSpec(rest)
			if id == "" {
				logger.Warning("Skipping malformed item line", "line", raw)
				continue
			}
			appendEntry(entry{kind: kindItem, text: id, amount: amount, broadcast: broadcast})
		default:
			logger.Warning("Skipping unknown action verb", "line", raw, "verb", verb)
		}
	}
	return plan
}

// parseItemSpec splits "<id> [amount]", defaulting the amount to 1.
func parseItemSpec(rest string) (string, int) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", 0
	}
	amount := 1
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
			amount = n
		}
	}
	return fields[0], amount
}

// Run compiles and executes lines for a player in the context of a
// quest. Returns immediately; execution happens on the main context.
func (x *Executor) Run(player host.Player, questName string, lines []string) {
	x.RunPlan(player, questName, Compile(lines))
}

// RunPlan schedules a compiled plan. Each delay bucket is scheduled as
// one unit; entries within a bucket run in order.
func (x *Executor) RunPlan(player host.Player, questName string, plan *Plan) {
	if plan.Empty() {
		return
	}
	for _, b := range plan.buckets {
		b := b
		run := func() { x.runBucket(player, questName, b) }
		if b.delay <= 0 {
			x.scheduler.RunSync(run)
		} else {
			x.scheduler.RunLater(b.delay, run)
		}
	}
}

func (x *Executor) runBucket(player host.Player, questName string, b bucket) {
	for _, e := range b.entries {
		x.runEntry(player, questName, e)
	}
}

// runEntry executes one line, shielding siblings from its failure.
func (x *Executor) runEntry(player host.Player, questName string, e entry) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Action line panicked", "quest", questName, "panic", rec)
		}
	}()

	switch e.kind {
	case kindMessage:
		text := Colorize(x.substitute(player, questName, e.text))
		if e.broadcast {
			if x.broadcaster != nil {
				x.broadcaster.Broadcast(text)
			}
			return
		}
		player.SendMessage(text)
	case kindCommand:
		line := x.substitute(player, questName, e.text)
		if x.runner == nil {
			logger.Warning("No command runner configured, dropping command", "command", line)
			return
		}
		if err := x.runner.ExecuteCommand(line); err != nil {
			logger.Error("Action command failed", "quest", questName, "command", line, "error", err)
		}
	case kindItem:
		if x.resolver == nil || x.granter == nil {
			logger.Warning("Item grants not configured, dropping grant", "item", e.text)
			return
		}
		item, ok := x.resolver.Resolve(e.text)
		if !ok {
			return // resolver already logged the miss
		}
		if err := x.granter.GiveItem(player, item, e.amount); err != nil {
			logger.Error("Item grant failed", "quest", questName, "item", e.text, "error", err)
		}
	}
}

var placeholderPattern = regexp.MustCompile(`%([a-zA-Z0-9_]+)%`)

// substitute expands %player% and %quest%, then defers any other key to
// the external expander. Unresolvable keys pass through untouched.
func (x *Executor) substitute(player host.Player, questName, text string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		key := m[1 : len(m)-1]
		switch key {
		case "player", "player_name":
			return player.Name()
		case "quest", "quest_name":
			return questName
		}
		if x.expander != nil {
			if v, ok := x.expander.Expand(player, key); ok {
				return v
			}
		}
		return m
	})
}

// Colorize translates &-style color codes into the section-sign codes
// the client renders. Applied after placeholder substitution.
func Colorize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '&' && i+1 < len(text) && strings.ContainsRune("0123456789abcdefklmnor", rune(text[i+1])) {
			b.WriteRune('§')
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}

// String renders a plan for debug logging.
func (p *Plan) String() string {
	if p.Empty() {
		return "empty plan"
	}
	parts := make([]string, 0, len(p.buckets))
	for _, b := range p.buckets {
		parts = append(parts, fmt.Sprintf("+%s:%d", b.delay, len(b.entries)))
	}
	return strings.Join(parts, " ")
}
