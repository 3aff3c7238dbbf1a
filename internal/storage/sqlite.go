// Package storage provides SQLite persistent storage implementation.
package storage

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"engram/internal/types"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting the locked write
// helpers below run either standalone or inside a caller-managed transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// serializeFloat32 packs an embedding vector into a little-endian BLOB for
// SQLite storage; deserializeFloat32 reverses it. Kept local to this file
// since only the SQL backend needs an on-disk byte representation.
func serializeFloat32(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// SQLiteStorage implements persistent storage with SQLite plus an
// in-memory write-through cache for fast reads, matching the teacher's
// SQLiteStorage shape in internal/storage/sqlite.go.
type SQLiteStorage struct {
	db    *sql.DB
	cache *MemoryStorage

	mu sync.Mutex // serializes writes; SQLite is the single writer (spec §5)
}

// NewSQLiteStorage opens (creating if absent) a SQLite-backed store at
// dbPath, initializes the schema, and warms the in-memory cache.
func NewSQLiteStorage(dbPath string, timeoutMs int) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database path cannot be empty", ErrStoreIO)
	}

	dsn := dbPath + fmt.Sprintf("?_busy_timeout=%d", timeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db, cache: NewMemoryStorage()}
	if err := s.warmCache(); err != nil {
		log.Printf("Warning: failed to warm cache: %v", err)
	}

	log.Printf("SQLite storage initialized at %s", dbPath)
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Associations exposes the same derived DAG view as MemoryStorage,
// rebuilt onto the warmed cache.
func (s *SQLiteStorage) Associations() *AssociationIndex {
	return s.cache.Associations()
}

// warmCache loads every row into the in-memory cache so entity reads are
// served from memory (matching the teacher's warmCache idiom); lexical
// search and embedding-cache misses still query the database. It replays rows through
// the cache's own Store* methods rather than writing the maps directly so
// the derived AssociationIndex is rebuilt consistently with live writes.
func (s *SQLiteStorage) warmCache() error {
	if err := s.warmMemories(); err != nil {
		return err
	}
	if err := s.warmPatterns(); err != nil {
		return err
	}
	if err := s.warmTheses(); err != nil {
		return err
	}
	if err := s.warmAntitheses(); err != nil {
		return err
	}
	if err := s.warmSyntheses(); err != nil {
		return err
	}
	if err := s.warmCycles(); err != nil {
		return err
	}
	if err := s.warmRules(); err != nil {
		return err
	}
	if err := s.warmSkills(); err != nil {
		return err
	}
	if err := s.warmSessions(); err != nil {
		return err
	}
	return s.warmEmbeddingCache()
}

func (s *SQLiteStorage) warmMemories() error {
	rows, err := s.db.Query(`SELECT id, tier, content, embedding, session_id, source, tool_name,
		tool_input, tool_output, stage, confidence, strength, decay_factor, access_count,
		last_accessed, created_at, updated_at FROM memories`)
	if err != nil {
		return fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMemoryRow(rows)
		if err != nil {
			return err
		}
		if err := s.loadMemoryAssociations(m); err != nil {
			return err
		}
		if err := s.cache.StoreMemory(m); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmPatterns() error {
	rows, err := s.db.Query(`SELECT id, name, description, stage, dialectic_phase, embedding,
		confidence, usage_count, success_rate, created_at, updated_at FROM patterns`)
	if err != nil {
		return fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &types.Pattern{}
		var embedding []byte
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Stage, &p.DialecticPhase, &embedding,
			&p.Confidence, &p.UsageCount, &p.SuccessRate, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.Embedding = deserializeFloat32(embedding)
		p.CreatedAt = time.Unix(createdAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)

		memRows, err := s.db.Query(`SELECT memory_id FROM pattern_memories WHERE pattern_id = ?`, p.ID)
		if err != nil {
			return fmt.Errorf("failed to query pattern memories: %w", err)
		}
		for memRows.Next() {
			var mid string
			if err := memRows.Scan(&mid); err != nil {
				memRows.Close()
				return err
			}
			p.MemoryIDs = append(p.MemoryIDs, mid)
		}
		memRows.Close()

		if err := s.cache.StorePattern(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmTheses() error {
	rows, err := s.db.Query(`SELECT id, pattern_id, content, status, created_at, updated_at FROM theses`)
	if err != nil {
		return fmt.Errorf("failed to query theses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t := &types.Thesis{}
		var createdAt, updatedAt int64
		if err := rows.Scan(&t.ID, &t.PatternID, &t.Content, &t.Status, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("failed to scan thesis: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		t.UpdatedAt = time.Unix(updatedAt, 0)

		memRows, err := s.db.Query(`SELECT memory_id FROM thesis_memories WHERE thesis_id = ?`, t.ID)
		if err != nil {
			return fmt.Errorf("failed to query thesis memories: %w", err)
		}
		for memRows.Next() {
			var mid string
			if err := memRows.Scan(&mid); err != nil {
				memRows.Close()
				return err
			}
			t.ExemplarMemoryIDs = append(t.ExemplarMemoryIDs, mid)
		}
		memRows.Close()

		if err := s.cache.StoreThesis(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmAntitheses() error {
	rows, err := s.db.Query(`SELECT id, thesis_id, content, contradiction_type, created_at FROM antitheses`)
	if err != nil {
		return fmt.Errorf("failed to query antitheses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := &types.Antithesis{}
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.ThesisID, &a.Content, &a.ContradictionType, &createdAt); err != nil {
			return fmt.Errorf("failed to scan antithesis: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0)

		memRows, err := s.db.Query(`SELECT memory_id FROM antithesis_memories WHERE antithesis_id = ?`, a.ID)
		if err != nil {
			return fmt.Errorf("failed to query antithesis memories: %w", err)
		}
		for memRows.Next() {
			var mid string
			if err := memRows.Scan(&mid); err != nil {
				memRows.Close()
				return err
			}
			a.ExemplarMemoryIDs = append(a.ExemplarMemoryIDs, mid)
		}
		memRows.Close()

		if err := s.cache.StoreAntithesis(a); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmSyntheses() error {
	rows, err := s.db.Query(`SELECT id, thesis_id, content, resolution_type, resolution_conditions,
		resolution_abstraction, output_decision, skill_candidate, tool_data_snapshot, created_at
		FROM syntheses`)
	if err != nil {
		return fmt.Errorf("failed to query syntheses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		syn := &types.Synthesis{}
		var conditionsJSON, abstraction, outputJSON, snapshotJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&syn.ID, &syn.ThesisID, &syn.Content, &syn.Resolution.Type,
			&conditionsJSON, &abstraction, &outputJSON, &syn.SkillCandidate, &snapshotJSON,
			&createdAt); err != nil {
			return fmt.Errorf("failed to scan synthesis: %w", err)
		}
		syn.Resolution.Abstraction = abstraction.String
		syn.CreatedAt = time.Unix(createdAt, 0)
		if conditionsJSON.Valid {
			_ = json.Unmarshal([]byte(conditionsJSON.String), &syn.Resolution.Conditions)
		}
		if outputJSON.Valid && outputJSON.String != "" {
			syn.Resolution.OutputDecision = &types.OutputDecision{}
			_ = json.Unmarshal([]byte(outputJSON.String), syn.Resolution.OutputDecision)
		}
		if snapshotJSON.Valid {
			_ = json.Unmarshal([]byte(snapshotJSON.String), &syn.ToolDataSnapshot)
		}

		antiRows, err := s.db.Query(`SELECT antithesis_id FROM synthesis_antitheses WHERE synthesis_id = ?`, syn.ID)
		if err != nil {
			return fmt.Errorf("failed to query synthesis antitheses: %w", err)
		}
		for antiRows.Next() {
			var aid string
			if err := antiRows.Scan(&aid); err != nil {
				antiRows.Close()
				return err
			}
			syn.AntithesisIDs = append(syn.AntithesisIDs, aid)
		}
		antiRows.Close()

		memRows, err := s.db.Query(`SELECT memory_id FROM synthesis_memories WHERE synthesis_id = ?`, syn.ID)
		if err != nil {
			return fmt.Errorf("failed to query synthesis memories: %w", err)
		}
		for memRows.Next() {
			var mid string
			if err := memRows.Scan(&mid); err != nil {
				memRows.Close()
				return err
			}
			syn.ExemplarMemoryIDs = append(syn.ExemplarMemoryIDs, mid)
		}
		memRows.Close()

		if err := s.cache.StoreSynthesis(syn); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmCycles() error {
	rows, err := s.db.Query(`SELECT id, pattern_id, thesis_id, synthesis_id, status, created_at,
		updated_at FROM cycles`)
	if err != nil {
		return fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c := &types.DialecticCycle{}
		var synthesisID sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&c.ID, &c.PatternID, &c.ThesisID, &synthesisID, &c.Status, &createdAt,
			&updatedAt); err != nil {
			return fmt.Errorf("failed to scan cycle: %w", err)
		}
		c.SynthesisID = synthesisID.String
		c.CreatedAt = time.Unix(createdAt, 0)
		c.UpdatedAt = time.Unix(updatedAt, 0)

		antiRows, err := s.db.Query(`SELECT antithesis_id FROM cycle_antitheses WHERE cycle_id = ?`, c.ID)
		if err != nil {
			return fmt.Errorf("failed to query cycle antitheses: %w", err)
		}
		for antiRows.Next() {
			var aid string
			if err := antiRows.Scan(&aid); err != nil {
				antiRows.Close()
				return err
			}
			c.AntithesisIDs = append(c.AntithesisIDs, aid)
		}
		antiRows.Close()

		if err := s.cache.StoreCycle(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmRules() error {
	rows, err := s.db.Query(`SELECT id, pattern_id, synthesis_id, title, slug, content, paths,
		version, content_hash, status, confidence, created_at, updated_at FROM rules`)
	if err != nil {
		return fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r := &types.Rule{}
		var synthesisID, pathsJSON sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.PatternID, &synthesisID, &r.Title, &r.Slug, &r.Content,
			&pathsJSON, &r.Version, &r.ContentHash, &r.Status, &r.Confidence, &createdAt,
			&updatedAt); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		r.SynthesisID = synthesisID.String
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)
		if pathsJSON.Valid {
			_ = json.Unmarshal([]byte(pathsJSON.String), &r.Paths)
		}
		if err := s.cache.StoreRule(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmSkills() error {
	rows, err := s.db.Query(`SELECT id, pattern_id, synthesis_id, name, description, content,
		script_body, version, content_hash, status, when_to_use, edge_cases, created_at, updated_at
		FROM skills`)
	if err != nil {
		return fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sk := &types.Skill{}
		var synthesisID, whenJSON, edgeJSON sql.NullString
		var createdAt, updatedAt int64
		if err := rows.Scan(&sk.ID, &sk.PatternID, &synthesisID, &sk.Name, &sk.Description,
			&sk.Content, &sk.ScriptBody, &sk.Version, &sk.ContentHash, &sk.Status, &whenJSON,
			&edgeJSON, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("failed to scan skill: %w", err)
		}
		sk.SynthesisID = synthesisID.String
		sk.CreatedAt = time.Unix(createdAt, 0)
		sk.UpdatedAt = time.Unix(updatedAt, 0)
		if whenJSON.Valid {
			_ = json.Unmarshal([]byte(whenJSON.String), &sk.WhenToUse)
		}
		if edgeJSON.Valid {
			_ = json.Unmarshal([]byte(edgeJSON.String), &sk.EdgeCases)
		}
		if err := s.cache.StoreSkill(sk); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmSessions() error {
	rows, err := s.db.Query(`SELECT id, started_at, ended_at, memory_count, consolidated FROM sessions`)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sess := &types.Session{}
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt, &sess.MemoryCount, &sess.Consolidated); err != nil {
			return fmt.Errorf("failed to scan session: %w", err)
		}
		sess.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0)
			sess.EndedAt = &t
		}
		if err := s.cache.StoreSession(sess); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) warmEmbeddingCache() error {
	rows, err := s.db.Query(`SELECT hash, model_id, vector FROM embedding_cache`)
	if err != nil {
		return fmt.Errorf("failed to query embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash, modelID string
		var blob []byte
		if err := rows.Scan(&hash, &modelID, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding cache row: %w", err)
		}
		if err := s.cache.PutCachedEmbedding(hash, modelID, deserializeFloat32(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadMemoryAssociations(m *types.Memory) error {
	tagRows, err := s.db.Query(`SELECT tag FROM memory_tags WHERE memory_id = ?`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		if err := tagRows.Scan(&tag); err != nil {
			return err
		}
		m.Metadata.Tags = append(m.Metadata.Tags, tag)
	}

	assocRows, err := s.db.Query(`SELECT associated_id FROM memory_associations WHERE memory_id = ?`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query associations: %w", err)
	}
	defer assocRows.Close()
	for assocRows.Next() {
		var id string
		if err := assocRows.Scan(&id); err != nil {
			return err
		}
		m.Metadata.Associations = append(m.Metadata.Associations, id)
	}

	skRows, err := s.db.Query(`SELECT key, value, weight FROM semantic_keys WHERE memory_id = ?`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to query semantic keys: %w", err)
	}
	defer skRows.Close()
	for skRows.Next() {
		var sk types.SemanticKey
		if err := skRows.Scan(&sk.Key, &sk.Value, &sk.Weight); err != nil {
			return err
		}
		m.Metadata.SemanticKeys = append(m.Metadata.SemanticKeys, sk)
	}
	return nil
}

func scanMemoryRow(rows *sql.Rows) (*types.Memory, error) {
	m := &types.Memory{}
	var embedding []byte
	var toolInputJSON, toolOutput, toolName sql.NullString
	var lastAccessed sql.NullInt64
	var createdAt, updatedAt int64

	if err := rows.Scan(&m.ID, &m.Tier, &m.Content, &embedding, &m.Metadata.SessionID,
		&m.Metadata.Source, &toolName, &toolInputJSON, &toolOutput, &m.Metadata.Stage,
		&m.Metadata.Confidence, &m.Strength, &m.DecayFactor, &m.AccessCount,
		&lastAccessed, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan memory: %w", err)
	}

	m.Metadata.ToolName = toolName.String
	m.Metadata.ToolOutput = toolOutput.String
	if toolInputJSON.Valid && toolInputJSON.String != "" {
		_ = json.Unmarshal([]byte(toolInputJSON.String), &m.Metadata.ToolInput)
	}
	m.Embedding = deserializeFloat32(embedding)
	if lastAccessed.Valid {
		m.LastAccessed = time.Unix(lastAccessed.Int64, 0)
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return m, nil
}

// --- write-through MemoryRepository ---

func (s *SQLiteStorage) StoreMemory(m *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toolInputJSON, err := json.Marshal(m.Metadata.ToolInput)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	_, err = s.db.Exec(`INSERT INTO memories (id, tier, content, embedding, session_id, source,
		tool_name, tool_input, tool_output, stage, confidence, strength, decay_factor,
		access_count, last_accessed, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET tier=excluded.tier, content=excluded.content,
		embedding=excluded.embedding, stage=excluded.stage, confidence=excluded.confidence,
		strength=excluded.strength, decay_factor=excluded.decay_factor,
		access_count=excluded.access_count, last_accessed=excluded.last_accessed,
		updated_at=excluded.updated_at`,
		m.ID, m.Tier, m.Content, serializeFloat32(m.Embedding), m.Metadata.SessionID,
		m.Metadata.Source, m.Metadata.ToolName, string(toolInputJSON), m.Metadata.ToolOutput,
		m.Metadata.Stage, m.Metadata.Confidence, m.Strength, m.DecayFactor, m.AccessCount,
		unixOrNil(m.LastAccessed), m.CreatedAt.Unix(), m.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	if err := s.replaceMemoryAssociations(m); err != nil {
		return err
	}
	if err := s.refreshFTS(m); err != nil {
		return err
	}
	return s.cache.StoreMemory(m)
}

func (s *SQLiteStorage) replaceMemoryAssociations(m *types.Memory) error {
	if _, err := s.db.Exec(`DELETE FROM memory_tags WHERE memory_id = ?`, m.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, tag := range m.Metadata.Tags {
		if _, err := s.db.Exec(`INSERT INTO memory_tags (memory_id, tag) VALUES (?, ?)`, m.ID, tag); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}

	if _, err := s.db.Exec(`DELETE FROM memory_associations WHERE memory_id = ?`, m.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, a := range m.Metadata.Associations {
		if _, err := s.db.Exec(`INSERT INTO memory_associations (memory_id, associated_id) VALUES (?, ?)`, m.ID, a); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}

	if _, err := s.db.Exec(`DELETE FROM semantic_keys WHERE memory_id = ?`, m.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, sk := range m.Metadata.SemanticKeys {
		if _, err := s.db.Exec(`INSERT INTO semantic_keys (memory_id, key, value, weight) VALUES (?,?,?,?)`,
			m.ID, sk.Key, sk.Value, sk.Weight); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return nil
}

// refreshFTS keeps the memories_fts materialized view consistent with the
// memory's content, tool name, tags and semantic-key values (spec §4.1).
func (s *SQLiteStorage) refreshFTS(m *types.Memory) error {
	var parts []string
	parts = append(parts, m.Content, m.Metadata.ToolName)
	parts = append(parts, m.Metadata.Tags...)
	for _, sk := range m.Metadata.SemanticKeys {
		parts = append(parts, sk.Value)
	}
	flattened := strings.Join(parts, " ")

	if _, err := s.db.Exec(`DELETE FROM memories_fts WHERE id = ?`, m.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if _, err := s.db.Exec(`INSERT INTO memories_fts (id, flattened_text) VALUES (?, ?)`, m.ID, flattened); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return nil
}

func (s *SQLiteStorage) GetMemory(id string, mode types.ReadMode) (*types.Memory, error) {
	m, err := s.cache.GetMemory(id, mode)
	if err != nil {
		return nil, err
	}
	if mode == types.ReadTracked {
		s.mu.Lock()
		_, _ = s.db.Exec(`UPDATE memories SET access_count = ?, last_accessed = ? WHERE id = ?`,
			m.AccessCount, m.LastAccessed.Unix(), id)
		s.mu.Unlock()
	}
	return m, nil
}

func (s *SQLiteStorage) UpdateMemory(m *types.Memory) error {
	return s.StoreMemory(m)
}

func (s *SQLiteStorage) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	_, _ = s.db.Exec(`DELETE FROM memories_fts WHERE id = ?`, id)
	return s.cache.DeleteMemory(id)
}

func (s *SQLiteStorage) QueryMemories(filter MemoryFilter) ([]*types.Memory, error) {
	return s.cache.QueryMemories(filter)
}

func (s *SQLiteStorage) ListMemoriesWithoutEmbedding(limit int) ([]*types.Memory, error) {
	return s.cache.ListMemoriesWithoutEmbedding(limit)
}

func (s *SQLiteStorage) UpdateMemoryEmbedding(id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`UPDATE memories SET embedding = ?, updated_at = ? WHERE id = ?`,
		serializeFloat32(embedding), time.Now().Unix(), id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.UpdateMemoryEmbedding(id, embedding)
}

// SearchLexical delegates to the FTS5 index, falling back to the cache's
// in-memory scorer only when the FTS5 query itself fails; a query that
// runs but matches nothing returns no results.
func (s *SQLiteStorage) SearchLexical(query string, filter MemoryFilter, limit int) ([]*types.Memory, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	match := strings.Join(terms, "* OR ") + "*"

	rows, err := s.db.Query(`SELECT id FROM memories_fts WHERE memories_fts MATCH ? LIMIT ?`, match, limit*4)
	if err != nil {
		// FTS5 query-syntax edge cases degrade to the cache scorer rather
		// than failing the whole search.
		return s.cache.SearchLexical(query, filter, limit)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		ids = append(ids, id)
	}

	var out []*types.Memory
	for _, id := range ids {
		m, err := s.cache.GetMemory(id, types.ReadUntracked)
		if err != nil {
			continue
		}
		if matchesFilter(m, filter) {
			out = append(out, m)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- PatternRepository: writes go to SQL, reads delegate to cache ---

func (s *SQLiteStorage) StorePattern(p *types.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO patterns (id, name, description, stage, dialectic_phase,
		embedding, confidence, usage_count, success_rate, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description,
		stage=excluded.stage, dialectic_phase=excluded.dialectic_phase, embedding=excluded.embedding,
		confidence=excluded.confidence, usage_count=excluded.usage_count,
		success_rate=excluded.success_rate, updated_at=excluded.updated_at`,
		p.ID, p.Name, p.Description, p.Stage, p.DialecticPhase, serializeFloat32(p.Embedding),
		p.Confidence, p.UsageCount, p.SuccessRate, p.CreatedAt.Unix(), p.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if _, err := s.db.Exec(`DELETE FROM pattern_memories WHERE pattern_id = ?`, p.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, mid := range p.MemoryIDs {
		if _, err := s.db.Exec(`INSERT INTO pattern_memories (pattern_id, memory_id) VALUES (?, ?)`, p.ID, mid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return s.cache.StorePattern(p)
}

func (s *SQLiteStorage) GetPattern(id string) (*types.Pattern, error) { return s.cache.GetPattern(id) }
func (s *SQLiteStorage) ListPatterns() ([]*types.Pattern, error)      { return s.cache.ListPatterns() }
func (s *SQLiteStorage) UpdatePattern(p *types.Pattern) error         { return s.StorePattern(p) }

// --- ThesisRepository ---

func (s *SQLiteStorage) StoreThesis(t *types.Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeThesisLocked(s.db, t)
}

func (s *SQLiteStorage) storeThesisLocked(tx execer, t *types.Thesis) error {
	if _, err := tx.Exec(`INSERT INTO theses (id, pattern_id, content, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, status=excluded.status,
		updated_at=excluded.updated_at`,
		t.ID, t.PatternID, t.Content, t.Status, t.CreatedAt.Unix(), t.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if _, err := tx.Exec(`DELETE FROM thesis_memories WHERE thesis_id = ?`, t.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, mid := range t.ExemplarMemoryIDs {
		if _, err := tx.Exec(`INSERT INTO thesis_memories (thesis_id, memory_id) VALUES (?, ?)`, t.ID, mid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return s.cache.StoreThesis(t)
}

func (s *SQLiteStorage) GetThesis(id string) (*types.Thesis, error) { return s.cache.GetThesis(id) }
func (s *SQLiteStorage) GetActiveThesisForPattern(patternID string) (*types.Thesis, error) {
	return s.cache.GetActiveThesisForPattern(patternID)
}
func (s *SQLiteStorage) UpdateThesis(t *types.Thesis) error { return s.StoreThesis(t) }

// --- AntithesisRepository ---

func (s *SQLiteStorage) StoreAntithesis(a *types.Antithesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO antitheses (id, thesis_id, content, contradiction_type, created_at)
		VALUES (?,?,?,?,?)`, a.ID, a.ThesisID, a.Content, a.ContradictionType, a.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, mid := range a.ExemplarMemoryIDs {
		if _, err := s.db.Exec(`INSERT INTO antithesis_memories (antithesis_id, memory_id) VALUES (?, ?)`, a.ID, mid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return s.cache.StoreAntithesis(a)
}

func (s *SQLiteStorage) ListAntithesesForThesis(thesisID string) ([]*types.Antithesis, error) {
	return s.cache.ListAntithesesForThesis(thesisID)
}

// --- SynthesisRepository ---

func (s *SQLiteStorage) StoreSynthesis(syn *types.Synthesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeSynthesisLocked(s.db, syn)
}

func (s *SQLiteStorage) storeSynthesisLocked(tx execer, syn *types.Synthesis) error {
	snapshotJSON, _ := json.Marshal(syn.ToolDataSnapshot)
	conditionsJSON, _ := json.Marshal(syn.Resolution.Conditions)
	var outputJSON []byte
	if syn.Resolution.OutputDecision != nil {
		outputJSON, _ = json.Marshal(syn.Resolution.OutputDecision)
	}

	if _, err := tx.Exec(`INSERT INTO syntheses (id, thesis_id, content, resolution_type,
		resolution_conditions, resolution_abstraction, output_decision, skill_candidate,
		tool_data_snapshot, created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		syn.ID, syn.ThesisID, syn.Content, syn.Resolution.Type, string(conditionsJSON),
		syn.Resolution.Abstraction, string(outputJSON), syn.SkillCandidate, string(snapshotJSON),
		syn.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, aid := range syn.AntithesisIDs {
		if _, err := tx.Exec(`INSERT INTO synthesis_antitheses (synthesis_id, antithesis_id) VALUES (?, ?)`, syn.ID, aid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	for _, mid := range syn.ExemplarMemoryIDs {
		if _, err := tx.Exec(`INSERT INTO synthesis_memories (synthesis_id, memory_id) VALUES (?, ?)`, syn.ID, mid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return s.cache.StoreSynthesis(syn)
}

func (s *SQLiteStorage) GetSynthesis(id string) (*types.Synthesis, error) { return s.cache.GetSynthesis(id) }

// --- CycleRepository ---

func (s *SQLiteStorage) StoreCycle(c *types.DialecticCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeCycleLocked(s.db, c)
}

func (s *SQLiteStorage) storeCycleLocked(tx execer, c *types.DialecticCycle) error {
	if _, err := tx.Exec(`INSERT INTO cycles (id, pattern_id, thesis_id, synthesis_id, status,
		created_at, updated_at) VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET synthesis_id=excluded.synthesis_id, status=excluded.status,
		updated_at=excluded.updated_at`,
		c.ID, c.PatternID, c.ThesisID, nullableString(c.SynthesisID), c.Status,
		c.CreatedAt.Unix(), c.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	for _, aid := range c.AntithesisIDs {
		if _, err := tx.Exec(`INSERT INTO cycle_antitheses (cycle_id, antithesis_id) VALUES (?, ?)`, c.ID, aid); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}
	return s.cache.StoreCycle(c)
}

func (s *SQLiteStorage) GetCycle(id string) (*types.DialecticCycle, error) { return s.cache.GetCycle(id) }
func (s *SQLiteStorage) GetActiveCycleForPattern(patternID string) (*types.DialecticCycle, error) {
	return s.cache.GetActiveCycleForPattern(patternID)
}
func (s *SQLiteStorage) UpdateCycle(c *types.DialecticCycle) error { return s.StoreCycle(c) }

// ResolveCycleWithSynthesis wraps the three writes in a single SQL
// transaction so the operation is atomic per spec §4.1, regardless of the
// in-memory cache's own locking.
func (s *SQLiteStorage) ResolveCycleWithSynthesis(cycle *types.DialecticCycle, synthesis *types.Synthesis, thesis *types.Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	cycle.Status = types.CycleResolved
	cycle.SynthesisID = synthesis.ID
	cycle.UpdatedAt = now
	thesis.Status = types.ThesisSynthesized
	thesis.UpdatedAt = now

	if err := s.storeSynthesisLocked(tx, synthesis); err != nil {
		return err
	}
	if err := s.storeCycleLocked(tx, cycle); err != nil {
		return err
	}
	if err := s.storeThesisLocked(tx, thesis); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.ResolveCycleWithSynthesis(cycle, synthesis, thesis)
}

// --- ArtifactRepository ---

func (s *SQLiteStorage) StoreRule(r *types.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pathsJSON, _ := json.Marshal(r.Paths)
	if _, err := s.db.Exec(`INSERT INTO rules (id, pattern_id, synthesis_id, title, slug, content,
		paths, version, content_hash, status, confidence, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(slug) DO UPDATE SET title=excluded.title, content=excluded.content,
		paths=excluded.paths, version=excluded.version, content_hash=excluded.content_hash,
		status=excluded.status, confidence=excluded.confidence, updated_at=excluded.updated_at`,
		r.ID, r.PatternID, nullableString(r.SynthesisID), r.Title, r.Slug, r.Content,
		string(pathsJSON), r.Version, r.ContentHash, r.Status, r.Confidence,
		r.CreatedAt.Unix(), r.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.StoreRule(r)
}

func (s *SQLiteStorage) GetRuleBySlug(slug string) (*types.Rule, error) { return s.cache.GetRuleBySlug(slug) }
func (s *SQLiteStorage) ListRules() ([]*types.Rule, error)              { return s.cache.ListRules() }

func (s *SQLiteStorage) StoreSkill(sk *types.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	whenJSON, _ := json.Marshal(sk.WhenToUse)
	edgeJSON, _ := json.Marshal(sk.EdgeCases)
	if _, err := s.db.Exec(`INSERT INTO skills (id, pattern_id, synthesis_id, name, description,
		content, script_body, version, content_hash, status, when_to_use, edge_cases,
		created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(name) DO UPDATE SET description=excluded.description, content=excluded.content,
		script_body=excluded.script_body, version=excluded.version, content_hash=excluded.content_hash,
		status=excluded.status, when_to_use=excluded.when_to_use, edge_cases=excluded.edge_cases,
		updated_at=excluded.updated_at`,
		sk.ID, sk.PatternID, nullableString(sk.SynthesisID), sk.Name, sk.Description, sk.Content,
		sk.ScriptBody, sk.Version, sk.ContentHash, sk.Status, string(whenJSON), string(edgeJSON),
		sk.CreatedAt.Unix(), sk.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.StoreSkill(sk)
}

func (s *SQLiteStorage) GetSkillByName(name string) (*types.Skill, error) { return s.cache.GetSkillByName(name) }
func (s *SQLiteStorage) ListSkills() ([]*types.Skill, error)              { return s.cache.ListSkills() }

// --- SessionRepository ---

func (s *SQLiteStorage) StoreSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var endedAt sql.NullInt64
	if sess.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: sess.EndedAt.Unix(), Valid: true}
	}
	if _, err := s.db.Exec(`INSERT INTO sessions (id, started_at, ended_at, memory_count, consolidated)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET ended_at=excluded.ended_at, memory_count=excluded.memory_count,
		consolidated=excluded.consolidated`,
		sess.ID, sess.StartedAt.Unix(), endedAt, sess.MemoryCount, sess.Consolidated); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.StoreSession(sess)
}

func (s *SQLiteStorage) GetSession(id string) (*types.Session, error) { return s.cache.GetSession(id) }
func (s *SQLiteStorage) UpdateSession(sess *types.Session) error      { return s.StoreSession(sess) }

// --- EmbeddingCacheRepository ---

func (s *SQLiteStorage) GetCachedEmbedding(hash, modelID string) ([]float32, bool) {
	if vec, ok := s.cache.GetCachedEmbedding(hash, modelID); ok {
		return vec, true
	}
	var blob []byte
	err := s.db.QueryRow(`SELECT vector FROM embedding_cache WHERE hash = ? AND model_id = ?`, hash, modelID).Scan(&blob)
	if err != nil {
		return nil, false
	}
	vec := deserializeFloat32(blob)
	_ = s.cache.PutCachedEmbedding(hash, modelID, vec)
	return vec, true
}

func (s *SQLiteStorage) PutCachedEmbedding(hash, modelID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT INTO embedding_cache (hash, model_id, vector) VALUES (?,?,?)
		ON CONFLICT(hash, model_id) DO UPDATE SET vector=excluded.vector`,
		hash, modelID, serializeFloat32(vec)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return s.cache.PutCachedEmbedding(hash, modelID, vec)
}

// --- helpers ---

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
