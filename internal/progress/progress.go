// Package progress tracks a player's quest state: which quests are
// active or completed, counter values, and awarded points.
package progress

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Node is the per-quest record inside a player's state.
type Node struct {
	Active    bool `json:"active"`
	Completed bool `json:"completed"`
	Value     int  `json:"value"`
	Points    int  `json:"points"`
}

// State is the mutable quest progress for one player. All mutation goes
// through Start/Cancel/Complete/AddProgress so the invariants hold.
type State struct {
	mu sync.RWMutex

	PlayerID   uuid.UUID
	PlayerName string

	nodes       map[string]*Node
	activeOrder []string // insertion order of currently-active quest ids
}

// stateJSON is the serialized shape used by every storage backend.
type stateJSON struct {
	Nodes       map[string]*Node `json:"nodes"`
	ActiveOrder []string         `json:"active_order"`
}

// New creates empty progress for a player.
func New(id uuid.UUID, name string) *State {
	return &State{
		PlayerID:   id,
		PlayerName: name,
		nodes:      make(map[string]*Node),
	}
}

// FromJSON restores a state from its serialized form. Corrupt input
// yields a fresh state plus the error.
func FromJSON(id uuid.UUID, name string, data []byte) (*State, error) {
	s := New(id, name)
	if len(data) == 0 {
		return s, nil
	}

	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return New(id, name), err
	}
	if raw.Nodes != nil {
		s.nodes = raw.Nodes
	}
	// Rebuild the order list against the nodes so a stale entry can
	// never resurrect a quest that is not actually active.
	for _, qid := range raw.ActiveOrder {
		if n, ok := s.nodes[qid]; ok && n.Active {
			s.activeOrder = append(s.activeOrder, qid)
		}
	}
	return s, nil
}

// Restore rebuilds a state field-for-field from stored nodes and an
// active-order list, for backends whose on-disk shape is not the JSON
// blob. Order entries are filtered against the nodes like FromJSON.
func Restore(id uuid.UUID, name string, nodes map[string]Node, activeOrder []string) *State {
	s := New(id, name)
	for qid, n := range nodes {
		n := n
		s.nodes[qid] = &n
	}
	for _, qid := range activeOrder {
		if n, ok := s.nodes[qid]; ok && n.Active {
			s.activeOrder = append(s.activeOrder, qid)
		}
	}
	return s
}

// ToJSON serializes the state for storage.
func (s *State) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(stateJSON{Nodes: s.nodes, ActiveOrder: s.activeOrder})
}

// node returns the record for a quest id, creating it if needed.
// Caller must hold the write lock.
func (s *State) node(questID string) *Node {
	n, ok := s.nodes[questID]
	if !ok {
		n = &Node{}
		s.nodes[questID] = n
	}
	return n
}

// Start marks a quest active with a zeroed counter. Returns false if it
// is already active (idempotence guard, never double-starts). Completion
// history and points survive a restart.
func (s *State) Start(questID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.node(questID)
	if n.Active {
		return false
	}
	n.Active = true
	n.Value = 0
	s.activeOrder = append(s.activeOrder, questID)
	return true
}

// Cancel deactivates a quest and resets its counter to zero. Returns
// false if the quest was not active.
func (s *State) Cancel(questID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[questID]
	if !ok || !n.Active {
		return false
	}
	n.Active = false
	n.Value = 0
	s.removeFromOrder(questID)
	return true
}

// Complete transitions a quest from active to completed and awards
// points. The stored points only ever go up, so a buggy re-completion
// can never downgrade an earlier award. Returns false when not active.
func (s *State) Complete(questID string, points int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[questID]
	if !ok || !n.Active {
		return false
	}
	n.Active = false
	n.Completed = true
	n.Value = 0
	if points > n.Points {
		n.Points = points
	}
	s.removeFromOrder(questID)
	return true
}

// AddProgress adds delta to the counter of an active quest, clamping at
// zero, and returns the new value. Returns -1 when the quest is not
// active (no node is created for it).
func (s *State) AddProgress(questID string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[questID]
	if !ok || !n.Active {
		return -1
	}
	n.Value += delta
	if n.Value < 0 {
		n.Value = 0
	}
	return n.Value
}

// removeFromOrder drops a quest id from the active order list.
// Caller must hold the write lock.
func (s *State) removeFromOrder(questID string) {
	for i, id := range s.activeOrder {
		if id == questID {
			s.activeOrder = append(s.activeOrder[:i], s.activeOrder[i+1:]...)
			return
		}
	}
}

// IsActive reports whether a quest is currently active.
func (s *State) IsActive(questID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[questID]
	return ok && n.Active
}

// IsCompleted reports whether a quest has ever been completed.
func (s *State) IsCompleted(questID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[questID]
	return ok && n.Completed
}

// Value returns the counter for a quest id, zero for unknown ids.
func (s *State) Value(questID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[questID]; ok {
		return n.Value
	}
	return 0
}

// Points returns the points awarded for a quest id.
func (s *State) Points(questID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[questID]; ok {
		return n.Points
	}
	return 0
}

// TotalPoints sums the awarded points across all quests.
func (s *State) TotalPoints() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.nodes {
		total += n.Points
	}
	return total
}

// ActiveIDs returns the active quest ids in the order they were started.
func (s *State) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.activeOrder))
	copy(out, s.activeOrder)
	return out
}

// FirstActive returns the oldest active quest id, or "".
func (s *State) FirstActive() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.activeOrder) == 0 {
		return ""
	}
	return s.activeOrder[0]
}

// ActiveCount returns the number of active quests.
func (s *State) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activeOrder)
}

// CompletedCount returns the number of quests ever completed.
func (s *State) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.nodes {
		if n.Completed {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of the node map for read-only consumers
// (persistence, placeholders). Mutating the copy has no effect.
func (s *State) Snapshot() map[string]Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Node, len(s.nodes))
	for id, n := range s.nodes {
		out[id] = *n
	}
	return out
}

// ResetQuest wipes every trace of one quest id (admin reset).
func (s *State) ResetQuest(questID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, questID)
	s.removeFromOrder(questID)
}
