// Package storage provides SQLite schema definitions and migrations.
package storage

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schema defines the complete database schema: one table per entity in
// §3 of the spec plus the join tables named in §9's Design Notes.
const schema = `
CREATE TABLE IF NOT EXISTS schema_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    memory_count INTEGER NOT NULL DEFAULT 0,
    consolidated INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    tier TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB,
    session_id TEXT,
    source TEXT NOT NULL,
    tool_name TEXT,
    tool_input TEXT,
    tool_output TEXT,
    stage TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    strength REAL NOT NULL DEFAULT 0,
    decay_factor REAL NOT NULL DEFAULT 1,
    access_count INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_tags (
    memory_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS memory_associations (
    memory_id TEXT NOT NULL,
    associated_id TEXT NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS semantic_keys (
    memory_id TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    stage TEXT NOT NULL,
    dialectic_phase TEXT NOT NULL,
    embedding BLOB,
    confidence REAL NOT NULL DEFAULT 0,
    usage_count INTEGER NOT NULL DEFAULT 0,
    success_rate REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_memories (
    pattern_id TEXT NOT NULL,
    memory_id TEXT NOT NULL,
    FOREIGN KEY (pattern_id) REFERENCES patterns(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS theses (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    content TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (pattern_id) REFERENCES patterns(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS thesis_memories (
    thesis_id TEXT NOT NULL,
    memory_id TEXT NOT NULL,
    FOREIGN KEY (thesis_id) REFERENCES theses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS antitheses (
    id TEXT PRIMARY KEY,
    thesis_id TEXT NOT NULL,
    content TEXT NOT NULL,
    contradiction_type TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (thesis_id) REFERENCES theses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS antithesis_memories (
    antithesis_id TEXT NOT NULL,
    memory_id TEXT NOT NULL,
    FOREIGN KEY (antithesis_id) REFERENCES antitheses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS syntheses (
    id TEXT PRIMARY KEY,
    thesis_id TEXT NOT NULL,
    content TEXT NOT NULL,
    resolution_type TEXT NOT NULL,
    resolution_conditions TEXT,
    resolution_abstraction TEXT,
    output_decision TEXT,
    skill_candidate INTEGER NOT NULL DEFAULT 0,
    tool_data_snapshot TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (thesis_id) REFERENCES theses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS synthesis_antitheses (
    synthesis_id TEXT NOT NULL,
    antithesis_id TEXT NOT NULL,
    FOREIGN KEY (synthesis_id) REFERENCES syntheses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS synthesis_memories (
    synthesis_id TEXT NOT NULL,
    memory_id TEXT NOT NULL,
    FOREIGN KEY (synthesis_id) REFERENCES syntheses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    thesis_id TEXT NOT NULL,
    synthesis_id TEXT,
    status TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (pattern_id) REFERENCES patterns(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cycle_antitheses (
    cycle_id TEXT NOT NULL,
    antithesis_id TEXT NOT NULL,
    FOREIGN KEY (cycle_id) REFERENCES cycles(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    synthesis_id TEXT,
    title TEXT NOT NULL,
    slug TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    paths TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    content_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS skills (
    id TEXT PRIMARY KEY,
    pattern_id TEXT NOT NULL,
    synthesis_id TEXT,
    name TEXT NOT NULL UNIQUE,
    description TEXT,
    content TEXT NOT NULL,
    script_body TEXT,
    version TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status TEXT NOT NULL,
    when_to_use TEXT,
    edge_cases TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_cache (
    hash TEXT NOT NULL,
    model_id TEXT NOT NULL,
    vector BLOB NOT NULL,
    PRIMARY KEY (hash, model_id)
);

-- Full-text search index over memory content, tool name, tags and
-- semantic-key values, kept in sync via the flattened_text column which
-- application code refreshes on every write (see sqlite.go).
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    id UNINDEXED,
    flattened_text
);

CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_stage ON memories(stage);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_semantic_keys_kv ON semantic_keys(key, value);
CREATE INDEX IF NOT EXISTS idx_pattern_memories_pattern ON pattern_memories(pattern_id);
CREATE INDEX IF NOT EXISTS idx_theses_pattern ON theses(pattern_id);
CREATE INDEX IF NOT EXISTS idx_theses_status ON theses(status);
CREATE INDEX IF NOT EXISTS idx_antitheses_thesis ON antitheses(thesis_id);
CREATE INDEX IF NOT EXISTS idx_cycles_pattern_status ON cycles(pattern_id, status);
`

// initializeSchema creates all tables and indexes.
func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT value FROM schema_metadata WHERE key = 'version'").Scan(&currentVersion)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_metadata (key, value) VALUES ('version', ?)", schemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query schema version: %w", err)
	} else if currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", schemaVersion, currentVersion)
	}

	return nil
}

// configureSQLite sets pragmas for durability and concurrent-read
// performance, matching the teacher's tuned defaults.
func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}
