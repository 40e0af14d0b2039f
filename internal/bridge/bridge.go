// Package bridge is the websocket ingress between game servers and the
// quest engine. A connected host streams trigger events and player
// commands in; quest messages, broadcasts and host commands flow back
// out over the same connection.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/ashgrove/questforge/internal/command"
	"github.com/ashgrove/questforge/internal/config"
	"github.com/ashgrove/questforge/internal/engine"
	"github.com/ashgrove/questforge/internal/host"
	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/quest"
	"github.com/ashgrove/questforge/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

// inbound is a message from a connected host.
type inbound struct {
	Type       string         `json:"type"`
	PlayerID   string         `json:"player_id,omitempty"`
	PlayerName string         `json:"player_name,omitempty"`
	Trigger    string         `json:"trigger,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Class      string         `json:"class,omitempty"`
	Line       string         `json:"line,omitempty"`
	Token      string         `json:"token,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// outbound is a message to a connected host.
type outbound struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Line     string `json:"line,omitempty"`
}

// playerEntry ties a registered player to the connection that owns it.
type playerEntry struct {
	player host.Player
	owner  *client
}

// Bridge accepts websocket connections and routes their traffic. It
// doubles as the engine's PlayerDirectory, the action executor's
// CommandRunner and the Broadcaster.
type Bridge struct {
	cfg     config.BridgeConfig
	engine  *engine.Engine
	handler *command.Handler
	cache   *store.Cached

	mu      sync.RWMutex
	clients map[*client]struct{}
	players map[uuid.UUID]*playerEntry
	byName  map[string]uuid.UUID

	server *http.Server
}

// New creates a Bridge. Attach must be called before Start; the engine
// and command handler need the bridge as their player directory, so
// construction happens in two steps.
func New(cfg config.BridgeConfig, cache *store.Cached) *Bridge {
	return &Bridge{
		cfg:     cfg,
		cache:   cache,
		clients: make(map[*client]struct{}),
		players: make(map[uuid.UUID]*playerEntry),
		byName:  make(map[string]uuid.UUID),
	}
}

// Attach wires the engine and command handler after construction.
func (b *Bridge) Attach(eng *engine.Engine, handler *command.Handler) {
	b.engine = eng
	b.handler = handler
}

// Start begins listening. Blocks until the listener fails or Stop is
// called.
func (b *Bridge) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleUpgrade)
	b.server = &http.Server{Addr: b.cfg.Listen, Handler: mux}

	logger.Info("Bridge listening", "address", b.cfg.Listen)
	err := b.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down and closes every connection.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	for c := range b.clients {
		c.close()
	}
	b.clients = make(map[*client]struct{})
	b.mu.Unlock()

	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := b.cfg.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("Connection rejected, origin not allowed",
					"origin", origin, "host", r.Host, "remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Websocket upgrade failed", "error", err)
		return
	}
	if b.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(b.cfg.MaxMessageSize)
	}

	c := newClient(b, conn)
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	logger.Info("Host connected", "remote_addr", conn.RemoteAddr().String())
	go c.readLoop()
}

// dropClient removes a closed connection and evicts every player it
// owned, flushing their progress.
func (b *Bridge) dropClient(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	var evicted []uuid.UUID
	for id, entry := range b.players {
		if entry.owner == c {
			evicted = append(evicted, id)
			delete(b.players, id)
			delete(b.byName, strings.ToLower(entry.player.Name()))
		}
	}
	b.mu.Unlock()

	for _, id := range evicted {
		b.cache.Evict(id)
	}
	logger.Info("Host disconnected", "players_evicted", len(evicted))
}

// handleMessage dispatches one inbound message.
func (b *Bridge) handleMessage(c *client, msg inbound) {
	switch msg.Type {
	case "event":
		p, ok := b.playerFor(c, msg)
		if !ok {
			return
		}
		b.engine.Handle(p, msg.Trigger, &host.Event{
			Name:    quest.EventKey(msg.Trigger),
			Subject: msg.Subject,
			Context: msg.Context,
		})
	case "custom":
		p, ok := b.playerFor(c, msg)
		if !ok {
			return
		}
		b.engine.HandleCustom(p, msg.Trigger, msg.Context)
	case "dynamic":
		b.engine.HandleDynamic(msg.Class, msg.Payload)
	case "command":
		p, ok := b.playerFor(c, msg)
		if !ok {
			return
		}
		if resp := b.handler.Execute(p, msg.Line); resp != "" {
			p.SendMessage(resp)
		}
	case "auth":
		b.authenticate(c, msg.Token)
	case "admin":
		if !c.isAdmin() {
			c.send(outbound{Type: "admin_response", Text: "Not authenticated."})
			return
		}
		resp := b.handler.ExecuteAdmin(b.console(c), msg.Line)
		c.send(outbound{Type: "admin_response", Text: resp})
	case "disconnect":
		b.playerGone(msg)
	default:
		logger.Debug("Unknown message type dropped", "type", msg.Type)
	}
}

// authenticate verifies the admin token against the configured bcrypt
// hash and marks the connection on success.
func (b *Bridge) authenticate(c *client, token string) {
	if b.cfg.AdminHash == "" {
		c.send(outbound{Type: "auth_response", Text: "Admin access is disabled."})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(b.cfg.AdminHash), []byte(token)); err != nil {
		logger.Warning("Admin authentication failed")
		c.send(outbound{Type: "auth_response", Text: "Denied."})
		return
	}
	c.setAdmin(true)
	c.send(outbound{Type: "auth_response", Text: "OK."})
	logger.Info("Admin authenticated")
}

// playerFor resolves or registers the player a message refers to. The
// send path is bound to the owning connection at registration time and
// rebound when the player reappears on a new connection.
func (b *Bridge) playerFor(c *client, msg inbound) (host.Player, bool) {
	id, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		logger.Debug("Message with unparseable player id dropped", "player_id", msg.PlayerID)
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.players[id]; ok {
		entry.owner = c
		return entry.player, true
	}

	name := msg.PlayerName
	if name == "" {
		name = id.String()[:8]
	}
	p := host.NewPlayer(id, name, func(text string) {
		b.deliver(id, text)
	})
	b.players[id] = &playerEntry{player: p, owner: c}
	b.byName[strings.ToLower(name)] = id
	return p, true
}

// deliver routes a quest message to whichever connection currently owns
// the player.
func (b *Bridge) deliver(id uuid.UUID, text string) {
	b.mu.RLock()
	entry, ok := b.players[id]
	b.mu.RUnlock()
	if !ok || entry.owner == nil {
		return
	}
	entry.owner.send(outbound{Type: "message", PlayerID: id.String(), Text: text})
}

// playerGone handles an explicit player disconnect: progress is flushed
// and the cache entry dropped.
func (b *Bridge) playerGone(msg inbound) {
	id, err := uuid.Parse(msg.PlayerID)
	if err != nil {
		return
	}
	b.mu.Lock()
	if entry, ok := b.players[id]; ok {
		delete(b.byName, strings.ToLower(entry.player.Name()))
		delete(b.players, id)
	}
	b.mu.Unlock()
	b.cache.Evict(id)
}

// console returns a synthetic player whose messages go back to the
// admin connection itself.
func (b *Bridge) console(c *client) host.Player {
	return host.NewPlayer(uuid.Nil, "console", func(text string) {
		c.send(outbound{Type: "admin_response", Text: text})
	})
}

// Find resolves a player by UUID string or name. Implements the
// engine's PlayerDirectory.
func (b *Bridge) Find(ref string) (host.Player, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if id, err := uuid.Parse(ref); err == nil {
		if entry, ok := b.players[id]; ok {
			return entry.player, true
		}
		return nil, false
	}
	if id, ok := b.byName[strings.ToLower(ref)]; ok {
		if entry, ok := b.players[id]; ok {
			return entry.player, true
		}
	}
	return nil, false
}

// Broadcast sends a text message to every connected host for display to
// all players. Implements the action executor's Broadcaster.
func (b *Bridge) Broadcast(text string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		c.send(outbound{Type: "broadcast", Text: text})
	}
}

// ExecuteCommand forwards a server command line to the connected hosts.
// Implements the action executor's CommandRunner.
func (b *Bridge) ExecuteCommand(line string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.clients) == 0 {
		return fmt.Errorf("no host connection for command %q", line)
	}
	for c := range b.clients {
		c.send(outbound{Type: "host_command", Line: line})
	}
	return nil
}
