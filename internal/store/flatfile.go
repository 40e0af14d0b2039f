package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ashgrove/questforge/internal/logger"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/google/uuid"
)

// flatFileStore keeps one gob-encoded binary file per player.
type flatFileStore struct {
	mu  sync.Mutex
	dir string
}

// flatRecord is the on-disk shape of one player file.
type flatRecord struct {
	Name  string
	State []byte // progress JSON
}

// OpenFlatFile creates the backend rooted at dataDir/players.
func OpenFlatFile(dataDir string) (Store, error) {
	dir := filepath.Join(dataDir, "players")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create player data directory: %w", err)
	}
	return &flatFileStore{dir: dir}, nil
}

func (f *flatFileStore) path(id uuid.UUID) string {
	return filepath.Join(f.dir, id.String()+".dat")
}

func (f *flatFileStore) Load(id uuid.UUID, name string) (*progress.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return progress.New(id, name), nil
		}
		return nil, fmt.Errorf("failed to read player file: %w", err)
	}

	var rec flatRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode player file: %w", err)
	}
	if name == "" {
		name = rec.Name
	}
	return progress.FromJSON(id, name, rec.State)
}

func (f *flatFileStore) Save(state *progress.State) error {
	data, err := state.ToJSON()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	rec := flatRecord{Name: state.PlayerName, State: data}
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return fmt.Errorf("failed to encode player file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path(state.PlayerID), buf.Bytes())
}

func (f *flatFileStore) LoadAllPoints() (map[uuid.UUID]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	totals := make(map[uuid.UUID]int)
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan player directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dat") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".dat"))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			logger.Warning("Skipping unreadable player file", "file", entry.Name(), "error", err)
			continue
		}
		var rec flatRecord
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
			logger.Warning("Skipping corrupt player file", "file", entry.Name(), "error", err)
			continue
		}
		state, err := progress.FromJSON(id, rec.Name, rec.State)
		if err != nil {
			continue
		}
		totals[id] = state.TotalPoints()
	}
	return totals, nil
}

func (f *flatFileStore) Reset(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *flatFileStore) ResetQuest(id uuid.UUID, questID string) error {
	f.mu.Lock()
	state, err := f.loadLocked(id)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	state.ResetQuest(questID)
	return f.Save(state)
}

// loadLocked is Load without re-acquiring the mutex.
func (f *flatFileStore) loadLocked(id uuid.UUID) (*progress.State, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return progress.New(id, ""), nil
		}
		return nil, err
	}
	var rec flatRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return progress.FromJSON(id, rec.Name, rec.State)
}

func (f *flatFileStore) Close() error { return nil }

// writeAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated player file behind.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
