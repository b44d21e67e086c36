// Package fingerprint computes the stable path-derived memory id and the
// change-detecting content hash (spec §4.1).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/foldhq/fold/internal/foldxerr"
)

// IDLen is the number of hex characters kept from the SHA-256 of the path
// key to form a memory id.
const IDLen = 16

// PathKey joins a project slug and a repo-relative path into the
// canonical string that the memory id is derived from. The path is
// normalized to POSIX separators with any leading slash trimmed.
func PathKey(projectSlug, repoRelativePath string) (string, error) {
	p := strings.ReplaceAll(repoRelativePath, `\`, "/")
	p = strings.TrimPrefix(p, "/")

	if strings.Contains(p, "..") {
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return "", foldxerr.New(foldxerr.InvalidInput, "path escapes repo root: "+repoRelativePath)
			}
		}
	}

	return projectSlug + "/" + p, nil
}

// MemoryID computes the first IDLen lowercase hex characters of
// SHA-256(pathKey).
func MemoryID(pathKey string) string {
	sum := sha256.Sum256([]byte(pathKey))
	return hex.EncodeToString(sum[:])[:IDLen]
}

// ContentHash computes the full hex SHA-256 of payload text normalized to
// LF line endings.
func ContentHash(payload string) string {
	normalized := normalizeLineEndings(payload)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

// FileFingerprint computes both the memory id and content hash for a
// file-sourced memory in one call.
func FileFingerprint(projectSlug, repoRelativePath, payload string) (id, hash string, err error) {
	key, err := PathKey(projectSlug, repoRelativePath)
	if err != nil {
		return "", "", err
	}
	return MemoryID(key), ContentHash(payload), nil
}
