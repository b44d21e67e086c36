package relstore

import (
	"database/sql"
	"fmt"

	"github.com/foldhq/fold/internal/foldxerr"
)

const repositoryColumns = `id, project_id, provider, owner, repo, branch,
	last_indexed_commit, created_at, updated_at`

// RepositoryStore handles Repository CRUD.
type RepositoryStore struct {
	db *DB
}

func NewRepositoryStore(db *DB) *RepositoryStore {
	return &RepositoryStore{db: db}
}

func (s *RepositoryStore) Insert(r *Repository) error {
	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO repositories (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, repositoryColumns),
		r.ID, r.ProjectID, r.Provider, r.Owner, r.Repo, r.Branch,
		nullIfEmpty(r.LastIndexedCommit), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "insert repository")
	}
	return nil
}

func (s *RepositoryStore) GetByID(id string) (*Repository, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM repositories WHERE id = ?`, repositoryColumns), id)
	return s.scanOne(row)
}

func (s *RepositoryStore) ListByProject(projectID string) ([]*Repository, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM repositories WHERE project_id = ? ORDER BY created_at ASC`, repositoryColumns), projectID)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "list repositories")
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		r, err := s.scan(rows)
		if err != nil {
			return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan repository")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateLastIndexedCommit advances the repository's checkpoint after a
// successful index_repository pass (spec §4.9).
func (s *RepositoryStore) UpdateLastIndexedCommit(id, commit string, updatedAt int64) error {
	res, err := s.db.Exec(`UPDATE repositories SET last_indexed_commit = ?, updated_at = ? WHERE id = ?`, commit, updatedAt, id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "update repository checkpoint")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return foldxerr.New(foldxerr.NotFound, "repository not found: "+id)
	}
	return nil
}

func (s *RepositoryStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM repositories WHERE id = ?", id)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "delete repository")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return foldxerr.New(foldxerr.NotFound, "repository not found: "+id)
	}
	return nil
}

func (s *RepositoryStore) scanOne(row *sql.Row) (*Repository, error) {
	r, err := s.scan(row)
	if err == sql.ErrNoRows {
		return nil, foldxerr.New(foldxerr.NotFound, "repository not found")
	}
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "scan repository")
	}
	return r, nil
}

func (s *RepositoryStore) scan(row rowScanner) (*Repository, error) {
	var r Repository
	var lastCommit sql.NullString
	if err := row.Scan(
		&r.ID, &r.ProjectID, &r.Provider, &r.Owner, &r.Repo, &r.Branch,
		&lastCommit, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.LastIndexedCommit = lastCommit.String
	return &r, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
