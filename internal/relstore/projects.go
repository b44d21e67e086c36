package relstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

const projectColumns = `id, slug, root_path, include_globs, exclude_globs,
	strength_weight, half_life_days, created_at, updated_at`

// ProjectStore handles Project CRUD (spec §6.1 RelationalStore).
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Insert(p *Project) error {
	includeJSON, _ := json.Marshal(p.IncludeGlobs)
	excludeJSON, _ := json.Marshal(p.ExcludeGlobs)
	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO projects (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, projectColumns),
		p.ID, p.Slug, p.RootPath, string(includeJSON), string(excludeJSON),
		p.StrengthWeight, p.HalfLifeDays, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "insert project")
	}
	return nil
}

func (s *ProjectStore) GetByID(id string) (*Project, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM projects WHERE id = ?`, projectColumns), id)
	return s.scanOne(row)
}

func (s *ProjectStore) GetBySlug(slug string) (*Project, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM projects WHERE slug = ?`, projectColumns), slug)
	return s.scanOne(row)
}

func (s *ProjectStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete project")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return foldxerr.New(foldxerr.NotFound, "project not found: "+id)
	}
	return nil
}

func (s *ProjectStore) List() ([]*Project, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM projects ORDER BY created_at ASC`, projectColumns))
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list projects")
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ProjectStore) scanOne(row *sql.Row) (*Project, error) {
	p, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, foldxerr.New(foldxerr.NotFound, "project not found")
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan project")
	}
	return p, nil
}

func (s *ProjectStore) scanRow(row rowScanner) (*Project, error) {
	p, err := s.scan(row)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan project")
	}
	return p, nil
}

func (s *ProjectStore) scan(row rowScanner) (*Project, error) {
	var p Project
	var includeJSON, excludeJSON string
	if err := row.Scan(
		&p.ID, &p.Slug, &p.RootPath, &includeJSON, &excludeJSON,
		&p.StrengthWeight, &p.HalfLifeDays, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(includeJSON), &p.IncludeGlobs)
	_ = json.Unmarshal([]byte(excludeJSON), &p.ExcludeGlobs)
	return &p, nil
}
