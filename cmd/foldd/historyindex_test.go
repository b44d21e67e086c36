package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/relstore"
)

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func setupHistoryRepo(t *testing.T) (root string) {
	t.Helper()
	root = t.TempDir()
	runGitCmd(t, root, "init")
	runGitCmd(t, root, "config", "user.email", "test@example.com")
	runGitCmd(t, root, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))
	runGitCmd(t, root, "add", "a.go")
	runGitCmd(t, root, "commit", "-m", "add a.go")

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n"), 0o644))
	runGitCmd(t, root, "add", "b.go")
	runGitCmd(t, root, "commit", "-m", "add b.go")

	return root
}

func TestHistoryIndexerCreatesCommitMemoriesAndLinks(t *testing.T) {
	root := setupHistoryRepo(t)

	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := relstore.NewProjectStore(db)
	require.NoError(t, projects.Insert(&relstore.Project{ID: "p1", Slug: "acme", RootPath: root, CreatedAt: 1, UpdatedAt: 1}))

	repos := relstore.NewRepositoryStore(db)
	repo := &relstore.Repository{ID: "r1", ProjectID: "p1", Provider: "local", Owner: "acme", Repo: "acme", Branch: "main", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, repos.Insert(repo))

	memStore := relstore.NewMemoryStore(db)
	linkStore := relstore.NewLinkStore(db)
	memSvc := memory.New(projects, memStore, relstore.NewChunkStore(db), linkStore, nil, nil, nil, nil, nil, nil)

	// index the file memories first so the commit->file link has a target.
	fileMem, err := memSvc.Create(context.Background(), "p1", memory.CreateInput{
		Source: memory.SourceFile, MemoryType: "codebase", Content: "package a\n",
		Title: "a.go", FilePath: "a.go", RepositoryID: repo.ID,
	})
	require.NoError(t, err)

	hIdx := newHistoryIndexer(memSvc, memStore, linkStore, nil)
	require.NoError(t, hIdx.Run(context.Background(), "p1", "acme", repo.ID, root, 10))

	commits, err := memStore.ListByProject("p1")
	require.NoError(t, err)

	var commitCount int
	for _, m := range commits {
		if m.MemoryType == "commit" {
			commitCount++
		}
	}
	assert.Equal(t, 2, commitCount)

	linked, err := linkStore.GetLinked(fileMem.Memory.ID, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, linked)
}

func TestHistoryIndexerSkipsAlreadyBackfilledCommit(t *testing.T) {
	root := setupHistoryRepo(t)

	dbPath := filepath.Join(t.TempDir(), "fold.db")
	db, err := relstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	projects := relstore.NewProjectStore(db)
	require.NoError(t, projects.Insert(&relstore.Project{ID: "p1", Slug: "acme", RootPath: root, CreatedAt: 1, UpdatedAt: 1}))

	repos := relstore.NewRepositoryStore(db)
	require.NoError(t, repos.Insert(&relstore.Repository{ID: "r1", ProjectID: "p1", Provider: "local", Owner: "acme", Repo: "acme", Branch: "main", CreatedAt: 1, UpdatedAt: 1}))

	memStore := relstore.NewMemoryStore(db)
	linkStore := relstore.NewLinkStore(db)
	memSvc := memory.New(projects, memStore, relstore.NewChunkStore(db), linkStore, nil, nil, nil, nil, nil, nil)

	hIdx := newHistoryIndexer(memSvc, memStore, linkStore, nil)
	require.NoError(t, hIdx.Run(context.Background(), "p1", "acme", "r1", root, 10))
	require.NoError(t, hIdx.Run(context.Background(), "p1", "acme", "r1", root, 10))

	commits, err := memStore.ListByProject("p1")
	require.NoError(t, err)

	var commitCount int
	for _, m := range commits {
		if m.MemoryType == "commit" {
			commitCount++
		}
	}
	assert.Equal(t, 2, commitCount)
}
