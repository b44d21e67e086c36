package relstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

// memoryColumns is the canonical column list for all SELECT queries.
// Order must match scan.
const memoryColumns = `id, project_id, repository_id, source, memory_type,
	content_hash, content, title, author, language, file_path,
	line_start, line_end, keywords, tags, context,
	retrieval_count, last_accessed, synthesized_summary,
	created_at, updated_at`

// MemoryStore handles Memory CRUD operations on SQLite.
type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Insert stores a new memory. The caller must set ID and ContentHash.
func (s *MemoryStore) Insert(m *Memory) error {
	keywordsJSON, _ := json.Marshal(m.Keywords)
	tagsJSON, _ := json.Marshal(m.Tags)

	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO memories (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, memoryColumns),
		m.ID, m.ProjectID, nullIfEmpty(m.RepositoryID), m.Source, m.MemoryType,
		m.ContentHash, m.Content, m.Title, nullIfEmpty(m.Author), nullIfEmpty(m.Language), nullIfEmpty(m.FilePath),
		nullIfZero(m.LineStart), nullIfZero(m.LineEnd), string(keywordsJSON), string(tagsJSON), m.Context,
		m.RetrievalCount, nullIfZero64(m.LastAccessed), m.SynthesizedSummary,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "insert memory")
	}
	return nil
}

func (s *MemoryStore) GetByID(id string) (*Memory, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM memories WHERE id = ?`, memoryColumns), id)
	m, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, foldxerr.New(foldxerr.NotFound, "memory not found: "+id)
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory")
	}
	return m, nil
}

// GetByContentHash powers the dedup check in spec §4.11: if a memory
// with the same content_hash already exists in the project, indexing
// skips re-embedding it.
func (s *MemoryStore) GetByContentHash(projectID, hash string) (*Memory, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM memories WHERE project_id = ? AND content_hash = ?`, memoryColumns), projectID, hash)
	m, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory")
	}
	return m, nil
}

// GetByFilePath finds the existing memory for a repository-relative
// path, used by index_file's update-vs-create branch (spec §4.9).
func (s *MemoryStore) GetByFilePath(repositoryID, filePath string) (*Memory, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM memories WHERE repository_id = ? AND file_path = ?`, memoryColumns), repositoryID, filePath)
	m, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory")
	}
	return m, nil
}

func (s *MemoryStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return foldxerr.New(foldxerr.NotFound, "memory not found: "+id)
	}
	return nil
}

// UpdateRequest is a partial patch to a memory; nil fields are left
// unchanged (mirrors the teacher's dynamic-set update pattern).
type UpdateRequest struct {
	Content            *string
	ContentHash        *string
	Title              *string
	Keywords           *[]string
	Tags               *[]string
	Context            *string
	SynthesizedSummary *bool
}

func (s *MemoryStore) Update(id string, req *UpdateRequest, updatedAt int64) (*Memory, error) {
	sets := []string{"updated_at = ?"}
	args := []any{updatedAt}

	if req.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *req.Content)
	}
	if req.ContentHash != nil {
		sets = append(sets, "content_hash = ?")
		args = append(args, *req.ContentHash)
	}
	if req.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *req.Title)
	}
	if req.Keywords != nil {
		kJSON, _ := json.Marshal(*req.Keywords)
		sets = append(sets, "keywords = ?")
		args = append(args, string(kJSON))
	}
	if req.Tags != nil {
		tJSON, _ := json.Marshal(*req.Tags)
		sets = append(sets, "tags = ?")
		args = append(args, string(tJSON))
	}
	if req.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, *req.Context)
	}
	if req.SynthesizedSummary != nil {
		sets = append(sets, "synthesized_summary = ?")
		args = append(args, *req.SynthesizedSummary)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", joinComma(sets))
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "update memory")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, foldxerr.New(foldxerr.NotFound, "memory not found: "+id)
	}
	return s.GetByID(id)
}

// RecordAccess bumps retrieval_count and last_accessed, the input to
// the ACT-R access_boost term in spec §4.11.
func (s *MemoryStore) RecordAccess(id string, accessedAt int64) error {
	_, err := s.db.Exec(`UPDATE memories SET retrieval_count = retrieval_count + 1, last_accessed = ? WHERE id = ?`, accessedAt, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "record memory access")
	}
	return nil
}

// ListByProject returns every memory in a project, used by decay
// re-ranking passes and full re-index sweeps.
func (s *MemoryStore) ListByProject(projectID string) ([]*Memory, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM memories WHERE project_id = ? ORDER BY created_at ASC`, memoryColumns), projectID)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list memories")
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := s.scan(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchByText runs the FTS5 full-text index for lexical seed
// retrieval (spec §4.7's holographic seed set: dense + lexical).
func (s *MemoryStore) SearchByText(projectID, query string, limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM memories
		WHERE project_id = ? AND rowid IN (
			SELECT rowid FROM memories_fts WHERE memories_fts MATCH ?
		)
		LIMIT ?
	`, memoryColumns), projectID, query, limit)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "fts search memories")
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := s.scan(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MemoryStore) scan(row rowScanner) (*Memory, error) {
	var m Memory
	var repoID, author, language, filePath sql.NullString
	var lineStart, lineEnd sql.NullInt64
	var keywordsJSON, tagsJSON string
	var lastAccessed sql.NullInt64

	if err := row.Scan(
		&m.ID, &m.ProjectID, &repoID, &m.Source, &m.MemoryType,
		&m.ContentHash, &m.Content, &m.Title, &author, &language, &filePath,
		&lineStart, &lineEnd, &keywordsJSON, &tagsJSON, &m.Context,
		&m.RetrievalCount, &lastAccessed, &m.SynthesizedSummary,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.RepositoryID = repoID.String
	m.Author = author.String
	m.Language = language.String
	m.FilePath = filePath.String
	m.LineStart = int(lineStart.Int64)
	m.LineEnd = int(lineEnd.Int64)
	m.LastAccessed = lastAccessed.Int64
	_ = json.Unmarshal([]byte(keywordsJSON), &m.Keywords)
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	return &m, nil
}

func nullIfZero(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullIfZero64(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func joinComma(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
