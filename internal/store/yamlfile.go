package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// yamlFileStore keeps one human-editable YAML document per player.
type yamlFileStore struct {
	mu  sync.Mutex
	dir string
}

// yamlNode is the per-quest shape inside a player document.
type yamlNode struct {
	Active    bool `yaml:"active"`
	Completed bool `yaml:"completed"`
	Value     int  `yaml:"value"`
	Points    int  `yaml:"points"`
}

// yamlRecord is the on-disk shape of one player document.
type yamlRecord struct {
	Name        string              `yaml:"name"`
	Quests      map[string]yamlNode `yaml:"quests"`
	ActiveOrder []string            `yaml:"active_order"`
}

// OpenYAMLFile creates the backend rooted at dataDir/players.
func OpenYAMLFile(dataDir string) (Store, error) {
	dir := filepath.Join(dataDir, "players")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create player data directory: %w", err)
	}
	return &yamlFileStore{dir: dir}, nil
}

func (y *yamlFileStore) path(id uuid.UUID) string {
	return filepath.Join(y.dir, id.String()+".yaml")
}

func (y *yamlFileStore) Load(id uuid.UUID, name string) (*progress.State, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.loadLocked(id, name)
}

func (y *yamlFileStore) loadLocked(id uuid.UUID, name string) (*progress.State, error) {
	data, err := os.ReadFile(y.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return progress.New(id, name), nil
		}
		return nil, fmt.Errorf("failed to read player file: %w", err)
	}

	var rec yamlRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse player file: %w", err)
	}
	if name == "" {
		name = rec.Name
	}

	// Restore field-for-field so a node that is both completed and
	// active again (rearmed) keeps its points and counter intact.
	nodes := make(map[string]progress.Node, len(rec.Quests))
	for qid, n := range rec.Quests {
		nodes[qid] = progress.Node{
			Active:    n.Active,
			Completed: n.Completed,
			Value:     n.Value,
			Points:    n.Points,
		}
	}
	return progress.Restore(id, name, nodes, rec.ActiveOrder), nil
}

func (y *yamlFileStore) Save(state *progress.State) error {
	rec := yamlRecord{
		Name:        state.PlayerName,
		Quests:      make(map[string]yamlNode),
		ActiveOrder: state.ActiveIDs(),
	}
	for qid, n := range state.Snapshot() {
		rec.Quests[qid] = yamlNode{
			Active:    n.Active,
			Completed: n.Completed,
			Value:     n.Value,
			Points:    n.Points,
		}
	}

	data, err := yaml.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("failed to marshal player file: %w", err)
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	return writeAtomic(y.path(state.PlayerID), data)
}

func (y *yamlFileStore) LoadAllPoints() (map[uuid.UUID]int, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	totals := make(map[uuid.UUID]int)
	entries, err := os.ReadDir(y.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan player directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(y.dir, entry.Name()))
		if err != nil {
			logger.Warning("Skipping unreadable player file", "file", entry.Name(), "error", err)
			continue
		}
		var rec yamlRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			logger.Warning("Skipping corrupt player file", "file", entry.Name(), "error", err)
			continue
		}
		total := 0
		for _, n := range rec.Quests {
			total += n.Points
		}
		totals[id] = total
	}
	return totals, nil
}

func (y *yamlFileStore) Reset(id uuid.UUID) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	err := os.Remove(y.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (y *yamlFileStore) ResetQuest(id uuid.UUID, questID string) error {
	y.mu.Lock()
	state, err := y.loadLocked(id, "")
	y.mu.Unlock()
	if err != nil {
		return err
	}
	state.ResetQuest(questID)
	return y.Save(state)
}

func (y *yamlFileStore) Close() error { return nil }
