package gitsink

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldhq/fold/internal/foldxerr"
)

// setupTestRepo creates a temporary git repository with an initial commit
// so the working tree has a HEAD to diff against.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	runGit(t, root, "init")
	runGit(t, root, "config", "user.email", "test@example.com")
	runGit(t, root, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello\n"), 0o644))
	runGit(t, root, "add", "README.md")
	runGit(t, root, "commit", "-m", "initial commit")

	return root
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

func TestCommitIsNoOpWhenFoldTreeUnchanged(t *testing.T) {
	root := setupTestRepo(t)
	sink := New()

	res, err := sink.Commit(context.Background(), root, "acme")
	require.NoError(t, err)
	assert.False(t, res.Committed)
}

func TestCommitStagesAndCommitsFoldDirectory(t *testing.T) {
	root := setupTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fold", "ab"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fold", "ab", "cd1234.md"), []byte("---\nid: cd1234\n---\nbody\n"), 0o644))

	sink := New()
	res, err := sink.Commit(context.Background(), root, "acme")
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.NotEmpty(t, res.CommitSHA)

	status, err := sink.run(context.Background(), root, "status", "--porcelain")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestCommitFailsWithGitDirtyWhenUnrelatedChangesStaged(t *testing.T) {
	root := setupTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fold", "ab"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fold", "ab", "cd1234.md"), []byte("body\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("oops\n"), 0o644))
	runGit(t, root, "add", "unrelated.txt")

	sink := New()
	_, err := sink.Commit(context.Background(), root, "acme")
	require.Error(t, err)
	assert.Equal(t, foldxerr.GitDirty, foldxerr.KindOf(err))
}
