package engine

import (
	"fmt"

	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/match"
	"github.com/ashgrove/questforge/internal/quest"
)

// Extractor pulls the triggering player reference and the event subject
// out of a dynamic event payload. The reference may be a player name or
// a UUID string; it is resolved through the engine's PlayerDirectory.
type Extractor func(payload map[string]any) (playerRef string, subject string, ok bool)

// RegisterExtractor installs the payload extractor for one dynamic
// event class, replacing any previous registration. Quests bound to the
// class get the standard subject matcher for their trigger key if none
// is registered yet, so target filters work for classes bound after the
// definitions were loaded.
func (e *Engine) RegisterExtractor(eventClass string, fn Extractor) {
	e.extractorMu.Lock()
	e.extractors[eventClass] = fn
	e.extractorMu.Unlock()

	for _, def := range e.registry.CustomBindings()[eventClass] {
		e.matchers.RegisterDefault(def.Event, match.SubjectEquals)
	}
}

// ValidateBindings cross-checks the loaded definitions against the
// registered extractors and logs every dynamic event class that has no
// extractor. Called after load and after reload; an unbound class means
// those quests can never trigger.
func (e *Engine) ValidateBindings() {
	e.extractorMu.RLock()
	defer e.extractorMu.RUnlock()

	for class, defs := range e.registry.CustomBindings() {
		if _, ok := e.extractors[class]; ok {
			continue
		}
		ids := make([]string, 0, len(defs))
		for _, def := range defs {
			ids = append(ids, def.ID)
		}
		logger.Warning("No extractor registered for dynamic event class",
			"class", class, "quests", ids)
	}
}

// HandleDynamic ingests a dynamic event: an event class name plus its
// raw payload map. Each quest bound to the class gets an event built
// from its own binding (player path and captures) and then flows
// through the standard dispatch path.
func (e *Engine) HandleDynamic(eventClass string, payload map[string]any) {
	e.extractorMu.RLock()
	ext, ok := e.extractors[eventClass]
	e.extractorMu.RUnlock()
	if !ok {
		logger.Debug("Dynamic event has no extractor, dropping", "class", eventClass)
		return
	}

	defs := e.registry.CustomBindings()[eventClass]
	if len(defs) == 0 {
		return
	}

	ref, subject, ok := ext(payload)
	if !ok {
		return
	}
	accessor := &host.Event{Context: payload}

	for _, def := range defs {
		def := def
		binding := def.Custom

		playerRef := ref
		if binding.PlayerPath != "" {
			if v, found := accessor.Get(binding.PlayerPath); found {
				playerRef = fmt.Sprintf("%v", v)
			}
		}
		player, found := e.players.Find(playerRef)
		if !found {
			logger.Debug("Dynamic event player not found",
				"class", eventClass, "ref", playerRef)
			continue
		}

		ctx := make(map[string]any, len(binding.Captures))
		for key, path := range binding.Captures {
			if v, found := accessor.Get(path); found {
				ctx[key] = v
			}
		}

		event := &host.Event{
			Name:    quest.EventKey(def.Event),
			Subject: subject,
			Context: payload,
		}

		if e.deduped(player.ID(), event.Name) {
			continue
		}
		e.submit(func() {
			e.withPlayer(player.ID(), func() {
				e.process(player, []*quest.Definition{def}, event, ctx)
			})
		})
	}
}
