package store

import "fmt"

// dialect abstracts the SQL syntax differences between the embedded
// SQLite backend and the networked PostgreSQL backend.
type dialect interface {
	// DriverName returns the driver name for sql.Open().
	DriverName() string

	// Placeholder returns the parameter placeholder for a 1-indexed
	// position. SQLite: "?", PostgreSQL: "$1", "$2", ...
	Placeholder(position int) string

	// InitStatements returns connection initialization statements.
	InitStatements() []string

	// CreateTableDDL returns the schema creation statements.
	CreateTableDDL() []string
}

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
}

func (sqliteDialect) CreateTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS quest_progress (
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL DEFAULT '',
			quest_id TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			value INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT -1,
			PRIMARY KEY (player_id, quest_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_progress_player ON quest_progress(player_id)`,
	}
}

type postgresDialect struct{}

func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (postgresDialect) InitStatements() []string { return nil }

func (postgresDialect) CreateTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS quest_progress (
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL DEFAULT '',
			quest_id TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			value INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT -1,
			PRIMARY KEY (player_id, quest_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quest_progress_player ON quest_progress(player_id)`,
	}
}
