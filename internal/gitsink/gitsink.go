// Package gitsink commits the fold tree back into the repository it
// indexes (spec §4.12). It shells out to the git binary rather than a
// go-git-style library: no such dependency appears anywhere in the
// retrieved pack, and steveyegge-beads' doctor/git.go drives git the
// same way, via exec.Command with a working directory pin.
package gitsink

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/foldhq/fold/internal/foldxerr"
)

// Sink commits staged fold/ changes into a repository's working tree.
type Sink struct{}

func New() *Sink { return &Sink{} }

// Result reports what the commit step actually did.
type Result struct {
	Committed bool
	CommitSHA string
}

// Commit stages fold/ and commits it with the message spec §4.12
// specifies. root is the repository's working tree root; projectSlug
// feeds the commit message. The file count in the message is the number
// of changed fold/ entries, since a git_commit job runs decoupled from
// the index_repo job that produced them and has no other way to know it.
//
// Three outcomes, per spec §4.12:
//   - nothing under fold/ changed: no-op, Result{Committed: false}
//   - the index has staged changes outside fold/: fails with GitDirty
//   - only fold/ is dirty: stage it and commit
func (s *Sink) Commit(ctx context.Context, root, projectSlug string) (*Result, error) {
	changed, err := s.foldChangedFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return &Result{Committed: false}, nil
	}

	if err := s.checkNoUnrelatedStagedChanges(ctx, root); err != nil {
		return nil, err
	}

	if _, err := s.run(ctx, root, "add", "--", "fold"); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "git add fold")
	}

	message := fmt.Sprintf("fold: index %d file(s) from %s", len(changed), projectSlug)
	if _, err := s.run(ctx, root, "commit", "-m", message); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "git commit")
	}

	sha, err := s.run(ctx, root, "rev-parse", "HEAD")
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "git rev-parse HEAD")
	}

	return &Result{Committed: true, CommitSHA: strings.TrimSpace(sha)}, nil
}

// foldChangedFiles lists the fold/ entries with working-tree or staged
// changes worth committing.
func (s *Sink) foldChangedFiles(ctx context.Context, root string) ([]string, error) {
	out, err := s.run(ctx, root, "status", "--porcelain", "--untracked-files=all", "--", "fold")
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Storage, err, "git status fold")
	}
	var changed []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.TrimSpace(line) != "" {
			changed = append(changed, line)
		}
	}
	return changed, nil
}

// checkNoUnrelatedStagedChanges fails the job with GitDirty (spec §4.12)
// when something other than fold/ is already staged: committing then
// would sweep in changes this job never touched.
func (s *Sink) checkNoUnrelatedStagedChanges(ctx context.Context, root string) error {
	out, err := s.run(ctx, root, "diff", "--cached", "--name-only")
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "git diff --cached")
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "fold/") {
			return foldxerr.New(foldxerr.GitDirty, "unrelated staged changes exist: "+line)
		}
	}
	return nil
}

func (s *Sink) run(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
