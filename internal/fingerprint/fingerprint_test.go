package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIDMatchesScenarioS1(t *testing.T) {
	key, err := PathKey("p", "src/a.rs")
	require.NoError(t, err)
	assert.Equal(t, "p/src/a.rs", key)

	sum := sha256.Sum256([]byte("p/src/a.rs"))
	want := hex.EncodeToString(sum[:])[:16]

	assert.Equal(t, want, MemoryID(key))
	assert.Len(t, MemoryID(key), 16)
}

func TestPathKeyTrimsLeadingSlashAndNormalizesSeparators(t *testing.T) {
	key, err := PathKey("p", `/src\a.rs`)
	require.NoError(t, err)
	assert.Equal(t, "p/src/a.rs", key)
}

func TestPathKeyRejectsEscape(t *testing.T) {
	_, err := PathKey("p", "../../etc/passwd")
	require.Error(t, err)
}

func TestFileFingerprintIsIdempotent(t *testing.T) {
	id1, hash1, err := FileFingerprint("p", "README.md", "hello world\n")
	require.NoError(t, err)
	id2, hash2, err := FileFingerprint("p", "README.md", "hello world\n")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, hash1, hash2)
}

func TestContentHashChangesWithPayload(t *testing.T) {
	h1 := ContentHash("version 1")
	h2 := ContentHash("version 2")
	assert.NotEqual(t, h1, h2)
}

func TestContentHashNormalizesLineEndings(t *testing.T) {
	assert.Equal(t, ContentHash("a\nb\n"), ContentHash("a\r\nb\r\n"))
}
