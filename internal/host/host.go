// Package host abstracts the game server this plugin runs against: the
// players it manages, the main execution context world mutation must
// happen on, and the raw events it emits.
package host

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Player is a connected player as seen by the quest runtime.
type Player interface {
	// ID is the stable identity progress is keyed by.
	ID() uuid.UUID

	// Name is the display name used in messages and placeholders.
	Name() string

	// SendMessage delivers a chat line to the player.
	SendMessage(msg string)
}

// Scheduler marshals work onto the host's main execution context.
// All player-visible side effects must go through it.
type Scheduler interface {
	// RunSync queues fn for execution on the main context.
	RunSync(fn func())

	// RunLater queues fn for execution on the main context after delay.
	RunLater(delay time.Duration, fn func())
}

// CommandRunner executes a server command line on the main context.
type CommandRunner interface {
	ExecuteCommand(line string) error
}

// Broadcaster sends a message to every connected player.
type Broadcaster interface {
	Broadcast(msg string)
}

// simplePlayer is a plain Player backed by a send callback.
type simplePlayer struct {
	id   uuid.UUID
	name string
	send func(string)
}

// NewPlayer builds a Player from an id, name and message sink.
// A nil sink discards messages.
func NewPlayer(id uuid.UUID, name string, send func(string)) Player {
	if send == nil {
		send = func(string) {}
	}
	return &simplePlayer{id: id, name: name, send: send}
}

func (p *simplePlayer) ID() uuid.UUID        { return p.id }
func (p *simplePlayer) Name() string         { return p.name }
func (p *simplePlayer) SendMessage(m string) { p.send(m) }

// MainLoop is a Scheduler backed by a single goroutine, standing in for
// the host's main thread when the runtime is deployed as a sidecar.
type MainLoop struct {
	mu      sync.Mutex
	queue   chan func()
	stopped bool
	done    chan struct{}
	timers  sync.WaitGroup
}

// NewMainLoop starts the loop goroutine.
func NewMainLoop() *MainLoop {
	l := &MainLoop{
		queue: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *MainLoop) run() {
	for fn := range l.queue {
		fn()
	}
	close(l.done)
}

// RunSync queues fn onto the loop. Dropped after Stop.
func (l *MainLoop) RunSync(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	select {
	case l.queue <- fn:
	default:
		// Queue full: run inline rather than block a worker.
		go fn()
	}
}

// RunLater schedules fn onto the loop after delay.
func (l *MainLoop) RunLater(delay time.Duration, fn func()) {
	l.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer l.timers.Done()
		l.RunSync(fn)
	})
}

// Stop drains queued work and shuts the loop down. Work queued after
// Stop is discarded; pending RunLater timers fire into the void.
func (l *MainLoop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}

// Event is a raw trigger payload entering the quest runtime.
type Event struct {
	// Name is the uppercase trigger key, e.g. "BLOCK_BREAK".
	Name string

	// Subject is the value target filters are matched against,
	// e.g. the block type or the killed mob id.
	Subject string

	// Context carries event fields for condition evaluation.
	// Nested maps are addressable via dotted accessor paths.
	Context map[string]any
}

// Get resolves a dotted accessor path against the event context.
// Returns nil, false when any step is missing.
func (e *Event) Get(path string) (any, bool) {
	if e == nil || e.Context == nil {
		return nil, false
	}
	var current any = e.Context
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
