package engine

import (
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/ashgrove/questforge/internal/quest"
)

// Handle ingests a raw trigger event for a player. It returns
// immediately; matching and state mutation happen on the worker pool
// under the player's coordination lock.
func (e *Engine) Handle(player host.Player, triggerKey string, event *host.Event) {
	e.dispatch(player, triggerKey, event, nil)
}

// HandleCustom ingests a trigger raised by script or plugin code with
// an explicit context map instead of a typed event. A "subject" or
// "target" entry in the context doubles as the event subject for target
// matching; the full map is visible to condition evaluation.
func (e *Engine) HandleCustom(player host.Player, triggerKey string, ctx map[string]any) {
	event := &host.Event{Name: quest.EventKey(triggerKey), Context: ctx}
	if s, ok := ctx["subject"].(string); ok {
		event.Subject = s
	} else if s, ok := ctx["target"].(string); ok {
		event.Subject = s
	}
	e.dispatch(player, triggerKey, event, ctx)
}

func (e *Engine) dispatch(player host.Player, triggerKey string, event *host.Event, ctx map[string]any) {
	key := quest.EventKey(triggerKey)
	defs := e.registry.ByEvent(key)
	if len(defs) == 0 {
		return
	}
	if e.deduped(player.ID(), key) {
		return
	}

	e.submit(func() {
		e.withPlayer(player.ID(), func() {
			e.process(player, defs, event, ctx)
		})
	})
}

// process evaluates a trigger against each candidate definition. A
// panic inside one quest's evaluation is logged and must not leak into
// the others.
func (e *Engine) process(player host.Player, defs []*quest.Definition, event *host.Event, ctx map[string]any) {
	state, err := e.store.Get(player.ID(), player.Name())
	if err != nil {
		logger.Warning("Progress load failed, evaluating against fresh state",
			"player", player.Name(), "error", err)
	}
	if state == nil {
		return
	}

	for _, def := range defs {
		e.processOne(player, state, def, event, ctx)
	}
}

func (e *Engine) processOne(player host.Player, state *progress.State, def *quest.Definition, event *host.Event, ctx map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Quest evaluation panicked", "quest", def.ID, "panic", rec)
		}
	}()

	if !state.IsActive(def.ID) {
		return
	}
	if !e.matchers.Match(def.Event, player, event, def.Targets) {
		return
	}

	// Fail conditions run first; any hit aborts the quest and skips
	// the success path entirely.
	if len(def.FailConditions) > 0 && e.conditions.EvalAny(player, event, ctx, def.FailConditions) {
		e.fail(player, state, def)
		return
	}
	if !e.conditions.EvalAll(player, event, ctx, def.SuccessConditions) {
		return
	}

	if def.Direct {
		e.complete(player, state, def)
		return
	}

	value := state.AddProgress(def.ID, 1)
	if value < 0 {
		return
	}
	e.store.MarkDirty(player.ID())

	if def.Party {
		e.creditParty(player, def)
	}

	if value >= def.Amount {
		e.complete(player, state, def)
	}
}

// creditParty mirrors one increment onto every other party member with
// the quest active. Each member is processed as its own job under its
// own lock; nested player locks are never taken.
func (e *Engine) creditParty(player host.Player, def *quest.Definition) {
	if e.party == nil || !e.party.Available() {
		return
	}
	for _, member := range e.party.Members(player) {
		if member.ID() == player.ID() {
			continue
		}
		member := member
		e.submit(func() {
			e.withPlayer(member.ID(), func() {
				e.creditMember(member, def)
			})
		})
	}
}

func (e *Engine) creditMember(member host.Player, def *quest.Definition) {
	state, _ := e.store.Get(member.ID(), member.Name())
	if state == nil || !state.IsActive(def.ID) {
		return
	}
	value := state.AddProgress(def.ID, 1)
	if value < 0 {
		return
	}
	e.store.MarkDirty(member.ID())
	if value >= def.Amount {
		e.complete(member, state, def)
	}
}
