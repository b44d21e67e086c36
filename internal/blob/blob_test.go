package blob

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	fm := Frontmatter{
		ID:         "0123456789abcdef",
		Title:      "Example memory",
		Author:     "system",
		Tags:       []string{"foo", "bar"},
		FilePath:   "src/a.rs",
		Language:   "rust",
		MemoryType: "codebase",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.Write(fm, "This is the body.", nil))

	f, err := s.Read(fm.ID)
	require.NoError(t, err)
	assert.Equal(t, fm.ID, f.Frontmatter.ID)
	assert.Equal(t, fm.Title, f.Frontmatter.Title)
	assert.Equal(t, fm.Tags, f.Frontmatter.Tags)
	assert.Equal(t, "This is the body.", f.Body)
	assert.Empty(t, f.Frontmatter.RelatedTo)
}

func TestWriteWithRelatedIDsProducesRelatedSection(t *testing.T) {
	s := newTestStore(t)
	fm := Frontmatter{ID: "aaaa111122223333", Title: "t", MemoryType: "general"}
	require.NoError(t, s.Write(fm, "body", []string{"bbbb444455556666"}))

	path, err := s.pathFor(fm.ID)
	require.NoError(t, err)
	assert.FileExists(t, path)

	f, err := s.Read(fm.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bbbb444455556666"}, f.Frontmatter.RelatedTo)
}

func TestPathForLayout(t *testing.T) {
	s := newTestStore(t)
	p, err := s.pathFor("abcdef0123456789")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.root, "a", "b", "abcdef0123456789.md"), p)
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("0000000000000000")
	require.Error(t, err)
}

func TestRewriteLinksPreservesBody(t *testing.T) {
	s := newTestStore(t)
	fm := Frontmatter{ID: "cccc777788889999", Title: "t", MemoryType: "spec"}
	require.NoError(t, s.Write(fm, "original body text", []string{"1111111111111111"}))

	require.NoError(t, s.RewriteLinks(fm.ID, []string{"2222222222222222", "3333333333333333"}))

	f, err := s.Read(fm.ID)
	require.NoError(t, err)
	assert.Equal(t, "original body text", f.Body)
	assert.Equal(t, []string{"2222222222222222", "3333333333333333"}, f.Frontmatter.RelatedTo)
}

func TestDeleteRemovesFileAndEmptyDirs(t *testing.T) {
	s := newTestStore(t)
	fm := Frontmatter{ID: "dddd101010101010", Title: "t", MemoryType: "task"}
	require.NoError(t, s.Write(fm, "body", nil))

	require.NoError(t, s.Delete(fm.ID))

	_, err := s.Read(fm.ID)
	require.Error(t, err)
}
