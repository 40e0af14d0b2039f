// Package engine is the quest runtime core: it routes raw trigger
// events to matching active quests, applies target and condition
// filters, advances per-player progress, and runs completion, chaining
// and repeat flows.
//
// Per-player processing is serialized through a lock map so two
// triggers for one player never interleave their state mutation;
// different players process fully in parallel on the worker pool. All
// player-visible side effects are marshaled onto the host scheduler.
package engine

import (
	"sync"
	"time"

	"github.com/ashgrove/questforge/internal/action"
	"github.com/ashgrove/questforge/internal/condition"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/match"
	"github.com/ashgrove/questforge/internal/party"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
	"github.com/google/uuid"
)

// PlayerDirectory resolves a player reference (name or UUID string)
// from a dynamic event payload to a connected player.
type PlayerDirectory interface {
	Find(ref string) (host.Player, bool)
}

// Eligibility gates board-quest starts. The default accepts everyone;
// deployments can install a stricter policy.
type Eligibility func(player host.Player, def *quest.Definition) bool

// Options wires the engine's collaborators.
type Options struct {
	Registry   *quest.Registry
	Store      *store.Cached
	Matchers   *match.Registry
	Conditions *condition.Evaluator
	Actions    *action.Executor
	Scheduler  host.Scheduler
	Party      party.Provider
	Players    PlayerDirectory

	// Workers sizes the trigger evaluation pool.
	Workers int

	// DedupWindow collapses duplicate trigger fires per player.
	DedupWindow time.Duration

	// Eligible gates board-quest starts; nil accepts everyone.
	Eligible Eligibility
}

// Engine owns all process-scoped quest runtime state. Shutdown clears
// every shared cache; nothing is reachable outside its lifecycle.
type Engine struct {
	registry   *quest.Registry
	store      *store.Cached
	matchers   *match.Registry
	conditions *condition.Evaluator
	actions    *action.Executor
	scheduler  host.Scheduler
	party      party.Provider
	players    PlayerDirectory
	eligible   Eligibility

	dedupWindow time.Duration
	dedupMu     sync.Mutex
	dedup       map[string]time.Time

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	extractorMu sync.RWMutex
	extractors  map[string]Extractor

	jobs     chan func()
	stopOnce sync.Once
	stopped  chan struct{}

	resetStop chan struct{}

	now func() time.Time
}

// New creates an engine and starts its worker pool.
func New(opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	eligible := opts.Eligible
	if eligible == nil {
		eligible = func(host.Player, *quest.Definition) bool { return true }
	}
	partyProvider := opts.Party
	if partyProvider == nil {
		partyProvider = party.Solo{}
	}

	e := &Engine{
		registry:    opts.Registry,
		store:       opts.Store,
		matchers:    opts.Matchers,
		conditions:  opts.Conditions,
		actions:     opts.Actions,
		scheduler:   opts.Scheduler,
		party:       partyProvider,
		players:     opts.Players,
		eligible:    eligible,
		dedupWindow: opts.DedupWindow,
		dedup:       make(map[string]time.Time),
		locks:       make(map[uuid.UUID]*sync.Mutex),
		extractors:  make(map[string]Extractor),
		jobs:        make(chan func(), 1024),
		stopped:     make(chan struct{}),
		resetStop:   make(chan struct{}),
		now:         time.Now,
	}

	for i := 0; i < workers; i++ {
		go e.worker()
	}
	go e.resetLoop()

	return e
}

func (e *Engine) worker() {
	for {
		select {
		case <-e.stopped:
			return
		case fn := <-e.jobs:
			fn()
		}
	}
}

// submit queues work onto the pool. Work is dropped after shutdown and
// when the queue is saturated; a trigger storm must never block the
// caller.
func (e *Engine) submit(fn func()) {
	select {
	case <-e.stopped:
		return
	default:
	}
	select {
	case e.jobs <- fn:
	default:
		logger.Warning("Trigger queue saturated, dropping trigger")
	}
}

// playerLock returns the coordination lock for one player, creating it
// on first use.
func (e *Engine) playerLock(id uuid.UUID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// withPlayer runs fn holding the player's coordination lock.
func (e *Engine) withPlayer(id uuid.UUID, fn func()) {
	l := e.playerLock(id)
	l.Lock()
	defer l.Unlock()
	fn()
}

// deduped reports whether this trigger fire falls inside the dedup
// window for the player and should be suppressed. A hit refreshes
// nothing; the window anchors on the first fire.
func (e *Engine) deduped(playerID uuid.UUID, triggerKey string) bool {
	if e.dedupWindow <= 0 {
		return false
	}
	key := playerID.String() + "|" + triggerKey
	now := e.now()

	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()

	if last, ok := e.dedup[key]; ok && now.Sub(last) < e.dedupWindow {
		return true
	}
	e.dedup[key] = now

	// Occasionally sweep stale entries so the map tracks the live
	// player set rather than everyone who ever triggered.
	if len(e.dedup) > 4096 {
		for k, v := range e.dedup {
			if now.Sub(v) >= e.dedupWindow {
				delete(e.dedup, k)
			}
		}
	}
	return false
}

// Reload replaces the loaded quest definitions from dir, revalidates
// dynamic event bindings and drops stale evaluation caches. The swap
// is atomic: an in-flight trigger evaluates against either the old set
// or the new one, never a mix.
func (e *Engine) Reload(dir string) error {
	if err := e.registry.LoadDirectory(dir); err != nil {
		return err
	}
	for _, def := range e.registry.All() {
		e.matchers.RegisterDefault(def.Event, match.SubjectEquals)
	}
	e.conditions.Clear()
	e.ValidateBindings()
	logger.Info("Quest definitions reloaded", "count", e.registry.Count())
	return nil
}

// Shutdown stops accepting work, discards the worker pool without
// waiting for in-flight evaluations, and clears every shared cache.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stopped)
		close(e.resetStop)

		e.conditions.Clear()

		e.dedupMu.Lock()
		e.dedup = make(map[string]time.Time)
		e.dedupMu.Unlock()

		e.locksMu.Lock()
		e.locks = make(map[uuid.UUID]*sync.Mutex)
		e.locksMu.Unlock()

		e.extractorMu.Lock()
		e.extractors = make(map[string]Extractor)
		e.extractorMu.Unlock()
	})
}
