package relstore

import (
	"database/sql"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

const linkColumns = `id, project_id, source_id, target_id, link_type,
	confidence, context, created_by, created_at`

// LinkStore handles memory_links CRUD, grounded on the teacher's
// LinkStore but generalized to typed, LLM-suggested edges (spec §4.8)
// instead of a single accreting strength score.
type LinkStore struct {
	db *DB
}

func NewLinkStore(db *DB) *LinkStore {
	return &LinkStore{db: db}
}

// Upsert creates a link or, if one with the same (source, target, type)
// already exists, refreshes its confidence and context.
func (s *LinkStore) Upsert(l *MemoryLink) error {
	_, err := s.db.Exec(`
		INSERT INTO memory_links (project_id, source_id, target_id, link_type, confidence, context, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, link_type) DO UPDATE SET
			confidence = excluded.confidence,
			context = excluded.context
	`, l.ProjectID, l.SourceID, l.TargetID, l.LinkType, l.Confidence, l.Context, l.CreatedBy, l.CreatedAt)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "upsert memory link")
	}
	return nil
}

// GetLinked returns memories linked to id in either direction, ordered
// by confidence (spec §4.7's link-hop context expansion).
func (s *LinkStore) GetLinked(id string, limit int) ([]*MemoryLink, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM memory_links
		WHERE source_id = ? OR target_id = ?
		ORDER BY confidence DESC
		LIMIT ?
	`, linkColumns), id, id, limit)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "get linked memories")
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory link")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListByType returns every link of a given type in a project, used for
// structural links like commit->modifies->file (spec's supplemental
// structural-link feature).
func (s *LinkStore) ListByType(projectID, linkType string) ([]*MemoryLink, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM memory_links WHERE project_id = ? AND link_type = ?
	`, linkColumns), projectID, linkType)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list links by type")
	}
	defer rows.Close()

	var out []*MemoryLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan memory link")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *LinkStore) DeleteByMemory(memoryID string) error {
	if _, err := s.db.Exec(`DELETE FROM memory_links WHERE source_id = ? OR target_id = ?`, memoryID, memoryID); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete links by memory")
	}
	return nil
}

func scanLink(row rowScanner) (*MemoryLink, error) {
	var l MemoryLink
	var confidence sql.NullFloat64
	var context sql.NullString
	if err := row.Scan(
		&l.ID, &l.ProjectID, &l.SourceID, &l.TargetID, &l.LinkType,
		&confidence, &context, &l.CreatedBy, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	l.Confidence = confidence.Float64
	l.Context = context.String
	return &l, nil
}
