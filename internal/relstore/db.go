// Package relstore is the RelationalStore collaborator (spec §6.1): the
// SQLite-backed system of record for projects, repositories, memories,
// chunks, links, and jobs (spec §3, §6.3).
package relstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at dbPath, applies WAL mode,
// and runs schema initialization + idempotent migrations. Single-writer:
// SetMaxOpenConns(1), matching the teacher's rationale that SQLite
// handles one writer at a time and this also gives the job queue's
// atomic-claim UPDATE natural serialization (spec §5, §4.10).
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  root_path TEXT NOT NULL,
  include_globs TEXT,
  exclude_globs TEXT,
  strength_weight REAL NOT NULL DEFAULT 0.3,
  half_life_days REAL NOT NULL DEFAULT 30.0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  owner TEXT NOT NULL,
  repo TEXT NOT NULL,
  branch TEXT NOT NULL,
  last_indexed_commit TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
  UNIQUE(project_id, provider, owner, repo, branch)
);

CREATE TABLE IF NOT EXISTS memories (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  repository_id TEXT,
  source TEXT NOT NULL,
  memory_type TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  content TEXT,
  title TEXT NOT NULL,
  author TEXT,
  language TEXT,
  file_path TEXT,
  line_start INTEGER,
  line_end INTEGER,
  keywords TEXT,
  tags TEXT,
  context TEXT,
  retrieval_count INTEGER NOT NULL DEFAULT 0,
  last_accessed INTEGER,
  synthesized_summary INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
  FOREIGN KEY (repository_id) REFERENCES repositories(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_repo_path ON memories(repository_id, file_path);

CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  memory_id TEXT NOT NULL,
  project_id TEXT NOT NULL,
  content TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  start_line INTEGER NOT NULL,
  end_line INTEGER NOT NULL,
  start_byte INTEGER NOT NULL,
  end_byte INTEGER NOT NULL,
  node_type TEXT,
  node_name TEXT,
  language TEXT,
  FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
  FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_chunks_memory ON chunks(memory_id);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);
CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash);
CREATE INDEX IF NOT EXISTS idx_chunks_node_type ON chunks(node_type);

CREATE TABLE IF NOT EXISTS memory_links (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id TEXT NOT NULL,
  source_id TEXT NOT NULL,
  target_id TEXT NOT NULL,
  link_type TEXT NOT NULL,
  confidence REAL,
  context TEXT,
  created_by TEXT NOT NULL DEFAULT 'system',
  created_at INTEGER NOT NULL,
  FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
  FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
  FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE,
  UNIQUE(source_id, target_id, link_type)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_project_type ON memory_links(project_id, link_type);

CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  job_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payload TEXT NOT NULL,
  priority INTEGER NOT NULL DEFAULT 0,
  scheduled_at INTEGER,
  locked_at INTEGER,
  locked_by TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 5,
  last_error TEXT,
  total_items INTEGER,
  processed_items INTEGER NOT NULL DEFAULT 0,
  failed_items INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs(priority DESC, scheduled_at, created_at ASC)
  WHERE status IN ('pending', 'retry');
CREATE INDEX IF NOT EXISTS idx_jobs_locked_at ON jobs(locked_at) WHERE locked_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS embedding_cache (
  content_hash TEXT PRIMARY KEY,
  embedding BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  model TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	fts := `CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
  title, content, tags, keywords,
  content='memories', content_rowid='rowid'
);`
	if _, err := db.Exec(fts); err != nil {
		return fmt.Errorf("create fts table: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
  INSERT INTO memories_fts(rowid, title, content, tags, keywords)
  VALUES (NEW.rowid, NEW.title, NEW.content, NEW.tags, NEW.keywords);
END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
  INSERT INTO memories_fts(memories_fts, rowid, title, content, tags, keywords)
  VALUES ('delete', OLD.rowid, OLD.title, OLD.content, OLD.tags, OLD.keywords);
END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
  INSERT INTO memories_fts(memories_fts, rowid, title, content, tags, keywords)
  VALUES ('delete', OLD.rowid, OLD.title, OLD.content, OLD.tags, OLD.keywords);
  INSERT INTO memories_fts(rowid, title, content, tags, keywords)
  VALUES (NEW.rowid, NEW.title, NEW.content, NEW.tags, NEW.keywords);
END;`,
	}
	for _, t := range triggers {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema changes gated on column
// existence, so it's safe to call on every open (grounded on the
// teacher's columnExists-guarded migration style).
func runMigrations(db *sql.DB) error {
	hasSynced, err := columnExists(db, "memories", "synced_from")
	if err != nil {
		return fmt.Errorf("check synced_from column: %w", err)
	}
	if !hasSynced {
		// synced_from is reserved for future external-repo sync (spec §9
		// open questions: out of scope here, but the column is added so a
		// later sync feature doesn't need another migration pass).
		if _, err := db.Exec(`ALTER TABLE memories ADD COLUMN synced_from TEXT`); err != nil {
			return fmt.Errorf("run migration: add synced_from: %w", err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table, closing the cursor
// before returning to avoid deadlocking with SetMaxOpenConns(1).
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE name = ?", table),
		column,
	)
	if err != nil {
		return false, err
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}
