// Package store persists player quest progress. Backends are pluggable
// behind the Store interface; the Cached wrapper adds the in-memory
// source of truth and write-behind flushing the engine relies on.
package store

import (
	"fmt"

	"github.com/ashgrove/questforge/internal/config"
	"github.com/ashgrove/questforge/internal/progress"
	"github.com/google/uuid"
)

// Store is the durable persistence contract. Implementations must be
// safe for concurrent use.
type Store interface {
	// Load returns the stored state for a player, or fresh state when
	// none exists.
	Load(id uuid.UUID, name string) (*progress.State, error)

	// Save writes a player's state.
	Save(state *progress.State) error

	// LoadAllPoints returns total points per player across the whole
	// backend. Backs the leaderboard; approximate under concurrent
	// writes.
	LoadAllPoints() (map[uuid.UUID]int, error)

	// Reset deletes all stored progress for a player.
	Reset(id uuid.UUID) error

	// ResetQuest deletes one quest's progress for a player.
	ResetQuest(id uuid.UUID, questID string) error

	// Close releases backend resources.
	Close() error
}

// Open creates the backend selected by the storage configuration.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "flatfile":
		return OpenFlatFile(cfg.DataDir)
	case "yamlfile":
		return OpenYAMLFile(cfg.DataDir)
	case "sqlite", "":
		return OpenSQLite(cfg.DataDir)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
