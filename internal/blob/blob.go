// Package blob implements the fold tree: content-addressed markdown files
// with YAML frontmatter under fold/<a>/<b>/<id>.md (spec §4.2, §6.2).
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foldhq/fold/internal/foldxerr"
)

// Frontmatter is the scalar/sequence mapping written at the top of every
// fold file. The BlobStore never interprets it semantically beyond this
// shape (spec §4.2).
type Frontmatter struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	Author     string    `yaml:"author"`
	Tags       []string  `yaml:"tags,omitempty"`
	FilePath   string    `yaml:"file_path,omitempty"`
	Language   string    `yaml:"language,omitempty"`
	MemoryType string    `yaml:"memory_type"`
	CreatedAt  time.Time `yaml:"created_at"`
	UpdatedAt  time.Time `yaml:"updated_at"`
	RelatedTo  []string  `yaml:"related_to,omitempty"`
}

// File is a fully parsed fold file.
type File struct {
	Frontmatter Frontmatter
	Body        string
}

const relatedHeading = "## Related"

// Store manages the fold tree rooted at root/fold.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Store rooted at repoRoot/fold.
func New(repoRoot string) *Store {
	return &Store{
		root:  filepath.Join(repoRoot, "fold"),
		locks: make(map[string]*sync.Mutex),
	}
}

// pathFor returns fold/<a>/<b>/<id>.md for the given id.
func (s *Store) pathFor(id string) (string, error) {
	if len(id) < 2 {
		return "", foldxerr.New(foldxerr.InvalidInput, "memory id too short: "+id)
	}
	a, b := string(id[0]), string(id[1])
	return filepath.Join(s.root, a, b, id+".md"), nil
}

// lockFor returns the per-id mutex, creating it on first use (spec §5:
// blob store serialized per memory id via an in-process striped lock).
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Write atomically writes a fold file for id: frontmatter, a blank line,
// the body, and — if relatedIDs is non-empty — a trailing "## Related"
// section with one wiki-link bullet per id, in order.
func (s *Store) Write(fm Frontmatter, body string, relatedIDs []string) error {
	l := s.lockFor(fm.ID)
	l.Lock()
	defer l.Unlock()

	path, err := s.pathFor(fm.ID)
	if err != nil {
		return err
	}
	fm.RelatedTo = relatedIDs

	content, err := render(fm, body, relatedIDs)
	if err != nil {
		return err
	}
	return atomicWrite(path, content)
}

// Read parses the fold file for id.
func (s *Store) Read(id string) (*File, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, foldxerr.New(foldxerr.NotFound, "fold file not found: "+id)
		}
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "reading fold file")
	}
	return parse(string(data))
}

// Delete removes the fold file for id and best-effort removes now-empty
// <a>/<b> parent directories.
func (s *Store) Delete(id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return foldxerr.Wrap(foldxerr.Storage, err, "deleting fold file")
	}

	dir := filepath.Dir(path)
	_ = os.Remove(dir)                 // <a>/<b>, best-effort
	_ = os.Remove(filepath.Dir(dir))   // <a>, best-effort
	return nil
}

// RewriteLinks preserves frontmatter and body, replacing only the
// "## Related" block (spec §4.2, §9's "pure transform" note).
func (s *Store) RewriteLinks(id string, relatedIDs []string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return foldxerr.New(foldxerr.NotFound, "fold file not found: "+id)
		}
		return foldxerr.Wrap(foldxerr.Storage, err, "reading fold file")
	}
	f, err := parse(string(data))
	if err != nil {
		return err
	}
	f.Frontmatter.RelatedTo = relatedIDs

	content, err := render(f.Frontmatter, f.Body, relatedIDs)
	if err != nil {
		return err
	}
	return atomicWrite(path, content)
}

func render(fm Frontmatter, body string, relatedIDs []string) (string, error) {
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", foldxerr.Wrap(foldxerr.Storage, err, "marshalling frontmatter")
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(yamlBytes)
	sb.WriteString("---\n\n")
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteString("\n")

	if len(relatedIDs) > 0 {
		sb.WriteString("\n" + relatedHeading + "\n\n")
		for _, tid := range relatedIDs {
			if len(tid) < 2 {
				continue
			}
			a, b := string(tid[0]), string(tid[1])
			sb.WriteString(fmt.Sprintf("- [[%s/%s/%s.md|%s]]\n", a, b, tid, tid))
		}
	}
	return sb.String(), nil
}

func parse(content string) (*File, error) {
	trimmed := content
	if !strings.HasPrefix(trimmed, "---\n") {
		return nil, foldxerr.New(foldxerr.Integrity, "malformed frontmatter: missing opening delimiter")
	}
	rest := trimmed[len("---\n"):]

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return nil, foldxerr.New(foldxerr.Integrity, "malformed frontmatter: missing closing delimiter")
	}
	yamlBlock := rest[:idx]

	after := rest[idx+len("\n---"):]
	after = strings.TrimPrefix(after, "\n")
	after = strings.TrimPrefix(after, "\n")

	body, _, _ := strings.Cut(after, "\n"+relatedHeading)

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Integrity, err, "parsing frontmatter yaml")
	}

	return &File{Frontmatter: fm, Body: strings.TrimRight(body, "\n")}, nil
}

// atomicWrite writes content to a temp file in the same directory then
// renames it over path, so readers never observe a partial write.
func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "creating fold tree directory")
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "creating temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return foldxerr.Wrap(foldxerr.Storage, err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "closing temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "renaming temp file into place")
	}
	return nil
}
