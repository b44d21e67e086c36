package relstore

import (
	"database/sql"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

const chunkColumns = `id, memory_id, project_id, content, content_hash,
	start_line, end_line, start_byte, end_byte, node_type, node_name, language`

// ChunkStore handles Chunk CRUD.
type ChunkStore struct {
	db *DB
}

func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// InsertBatch stores chunks for a memory inside a single transaction,
// grounded on the bounded-fan-out write pattern used elsewhere in the
// pack for high-volume child rows.
func (s *ChunkStore) InsertBatch(chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "begin chunk batch")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO chunks (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunkColumns))
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "prepare chunk insert")
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(
			c.ID, c.MemoryID, c.ProjectID, c.Content, c.ContentHash,
			c.StartLine, c.EndLine, c.StartByte, c.EndByte,
			nullIfEmpty(c.NodeType), nullIfEmpty(c.NodeName), nullIfEmpty(c.Language),
		); err != nil {
			return foldxerr.Wrap(foldxerr.Storage, err, "insert chunk")
		}
	}
	if err := tx.Commit(); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "commit chunk batch")
	}
	return nil
}

// ReplaceForMemory deletes every existing chunk for a memory and inserts
// the freshly computed set, used when re-indexing a changed file.
func (s *ChunkStore) ReplaceForMemory(memoryID string, chunks []*Chunk) error {
	tx, err := s.db.Begin()
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "begin chunk replace")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE memory_id = ?`, memoryID); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete old chunks")
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO chunks (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, chunkColumns))
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "prepare chunk insert")
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(
			c.ID, c.MemoryID, c.ProjectID, c.Content, c.ContentHash,
			c.StartLine, c.EndLine, c.StartByte, c.EndByte,
			nullIfEmpty(c.NodeType), nullIfEmpty(c.NodeName), nullIfEmpty(c.Language),
		); err != nil {
			return foldxerr.Wrap(foldxerr.Storage, err, "insert chunk")
		}
	}
	return tx.Commit()
}

func (s *ChunkStore) ListByMemory(memoryID string) ([]*Chunk, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM chunks WHERE memory_id = ? ORDER BY start_line ASC`, chunkColumns), memoryID)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list chunks")
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan chunk")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ChunkStore) DeleteByMemory(memoryID string) error {
	if _, err := s.db.Exec(`DELETE FROM chunks WHERE memory_id = ?`, memoryID); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete chunks by memory")
	}
	return nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var nodeType, nodeName, language sql.NullString
	if err := row.Scan(
		&c.ID, &c.MemoryID, &c.ProjectID, &c.Content, &c.ContentHash,
		&c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte,
		&nodeType, &nodeName, &language,
	); err != nil {
		return nil, err
	}
	c.NodeType = nodeType.String
	c.NodeName = nodeName.String
	c.Language = language.String
	return &c, nil
}
