package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/opensanctions/graph/pkg/model"
)

// SQLite persists emitted entities and relationships. Entity rows are keyed
// by the stable entity id and upserted, so unioning repeated runs of the
// same input leaves the table unchanged; relationship ids are pure functions
// of their content and inserted once. Each run is recorded with a ULID for
// provenance, without ever entering the entity or edge identifiers.
type SQLite struct {
	db    *sql.DB
	runID string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	dataset TEXT NOT NULL,
	started_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	schema TEXT NOT NULL,
	properties TEXT NOT NULL,
	run_id TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	role TEXT,
	properties TEXT NOT NULL,
	run_id TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
`

// OpenSQLite opens (or creates) a graph database at path and starts a new
// run for the given dataset.
func OpenSQLite(ctx context.Context, path string, dataset string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	runID := ulid.Make().String()
	_, err = db.ExecContext(ctx,
		"INSERT INTO runs (id, dataset, started_at) VALUES (?, ?, ?)",
		runID, dataset, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recording run: %w", err)
	}

	return &SQLite{db: db, runID: runID}, nil
}

// RunID returns the ULID assigned to this run.
func (s *SQLite) RunID() string {
	return s.runID
}

// WriteEntity upserts an entity row. The emitter forwards the merged view on
// augmentation, so replacing the stored property set is always a superset
// write.
func (s *SQLite) WriteEntity(entity *model.Entity) error {
	properties, err := json.Marshal(entity.Properties)
	if err != nil {
		return fmt.Errorf("marshalling properties of %s: %w", entity.ID, err)
	}
	_, err = s.db.Exec(`
INSERT INTO entities (id, schema, properties, run_id) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	schema = excluded.schema,
	properties = excluded.properties,
	run_id = excluded.run_id`,
		entity.ID, string(entity.Schema), string(properties), s.runID)
	if err != nil {
		return fmt.Errorf("storing entity %s: %w", entity.ID, err)
	}
	return nil
}

// WriteRelationship inserts a relationship row, ignoring edges already
// stored under the same pure-function id.
func (s *SQLite) WriteRelationship(rel *model.Relationship) error {
	properties, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("marshalling properties of %s: %w", rel.ID, err)
	}
	_, err = s.db.Exec(`
INSERT OR IGNORE INTO relationships (id, kind, source_id, target_id, role, properties, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, string(rel.Kind), rel.SourceID, rel.TargetID, rel.Role, string(properties), s.runID)
	if err != nil {
		return fmt.Errorf("storing relationship %s: %w", rel.ID, err)
	}
	return nil
}

// Counts returns the number of stored entities and relationships.
func (s *SQLite) Counts(ctx context.Context) (entities int, relationships int, err error) {
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities")
	if err := row.Scan(&entities); err != nil {
		return 0, 0, err
	}
	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships")
	if err := row.Scan(&relationships); err != nil {
		return 0, 0, err
	}
	return entities, relationships, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
