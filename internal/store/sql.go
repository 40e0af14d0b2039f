package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ashgrove/questforge/internal/progress"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlStore implements Store on top of database/sql, parameterized by
// dialect so SQLite and PostgreSQL share one implementation.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (or creates) the embedded database under dataDir.
func OpenSQLite(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "questforge.db")

	d := sqliteDialect{}
	db, err := sql.Open(d.DriverName(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return newSQLStore(db, d)
}

// OpenPostgres connects to the networked database described by dsn.
func OpenPostgres(dsn string) (Store, error) {
	d := postgresDialect{}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return newSQLStore(db, d)
}

func newSQLStore(db *sql.DB, d dialect) (Store, error) {
	for _, stmt := range d.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init statement failed: %w", err)
		}
	}
	for _, ddl := range d.CreateTableDDL() {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &sqlStore{db: db, dialect: d}, nil
}

// stateDoc mirrors the progress package's serialized shape so SQL rows
// can be bridged through progress.FromJSON.
type stateDoc struct {
	Nodes       map[string]*progress.Node `json:"nodes"`
	ActiveOrder []string                  `json:"active_order"`
}

func (s *sqlStore) Load(id uuid.UUID, name string) (*progress.State, error) {
	query := fmt.Sprintf(
		`SELECT quest_id, active, completed, value, points, position
		 FROM quest_progress WHERE player_id = %s`,
		s.dialect.Placeholder(1))

	rows, err := s.db.Query(query, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	defer rows.Close()

	doc := stateDoc{Nodes: make(map[string]*progress.Node)}
	type ordered struct {
		id  string
		pos int
	}
	var order []ordered

	for rows.Next() {
		var questID string
		var active, completed, value, points, position int
		if err := rows.Scan(&questID, &active, &completed, &value, &points, &position); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		doc.Nodes[questID] = &progress.Node{
			Active:    active != 0,
			Completed: completed != 0,
			Value:     value,
			Points:    points,
		}
		if active != 0 && position >= 0 {
			order = append(order, ordered{questID, position})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read progress rows: %w", err)
	}

	sort.Slice(order, func(i, j int) bool { return order[i].pos < order[j].pos })
	for _, o := range order {
		doc.ActiveOrder = append(doc.ActiveOrder, o.id)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return progress.FromJSON(id, name, data)
}

func (s *sqlStore) Save(state *progress.State) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf("DELETE FROM quest_progress WHERE player_id = %s", s.dialect.Placeholder(1))
	if _, err := tx.Exec(del, state.PlayerID.String()); err != nil {
		return fmt.Errorf("failed to clear old progress: %w", err)
	}

	ins := fmt.Sprintf(
		`INSERT INTO quest_progress
		 (player_id, player_name, quest_id, active, completed, value, points, position)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6),
		s.dialect.Placeholder(7), s.dialect.Placeholder(8))

	positions := make(map[string]int)
	for i, qid := range state.ActiveIDs() {
		positions[qid] = i
	}

	for questID, node := range state.Snapshot() {
		pos, onList := positions[questID]
		if !onList {
			pos = -1
		}
		_, err := tx.Exec(ins,
			state.PlayerID.String(), state.PlayerName, questID,
			boolToInt(node.Active), boolToInt(node.Completed),
			node.Value, node.Points, pos)
		if err != nil {
			return fmt.Errorf("failed to insert progress row: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqlStore) LoadAllPoints() (map[uuid.UUID]int, error) {
	rows, err := s.db.Query(
		`SELECT player_id, SUM(points) FROM quest_progress GROUP BY player_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load point totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int)
	for rows.Next() {
		var idStr string
		var points int
		if err := rows.Scan(&idStr, &points); err != nil {
			return nil, fmt.Errorf("failed to scan point total: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue // skip unparseable rows rather than fail the whole query
		}
		totals[id] = points
	}
	return totals, rows.Err()
}

func (s *sqlStore) Reset(id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM quest_progress WHERE player_id = %s", s.dialect.Placeholder(1))
	_, err := s.db.Exec(query, id.String())
	return err
}

func (s *sqlStore) ResetQuest(id uuid.UUID, questID string) error {
	query := fmt.Sprintf(
		"DELETE FROM quest_progress WHERE player_id = %s AND quest_id = %s",
		s.dialect.Placeholder(1), s.dialect.Placeholder(2))
	_, err := s.db.Exec(query, id.String(), questID)
	return err
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
