package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/foldhq/fold/internal/fingerprint"
	"github.com/foldhq/fold/internal/memory"
	"github.com/foldhq/fold/internal/relstore"
)

// historyIndexer implements index_history: a bounded git-log backfill
// that turns past commits into `commit`-typed memories linked to the
// files they touched (spec §3's `commit --modifies--> file` edge,
// §4.8's "indexer" link source).
type historyIndexer struct {
	memories *memory.Service
	memStore *relstore.MemoryStore
	links    *relstore.LinkStore
	logger   *slog.Logger
}

func newHistoryIndexer(memories *memory.Service, memStore *relstore.MemoryStore, links *relstore.LinkStore, logger *slog.Logger) *historyIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &historyIndexer{memories: memories, memStore: memStore, links: links, logger: logger}
}

type gitCommit struct {
	sha     string
	subject string
	author  string
	when    int64
	files   []string
}

// Run walks up to maxCommits commits reachable from HEAD, oldest first,
// creating one `commit` memory per commit and a `modifies` link from it
// to any already-indexed memory for each changed path.
func (h *historyIndexer) Run(ctx context.Context, projectID, projectSlug, repositoryID, root string, maxCommits int) error {
	commits, err := h.log(ctx, root, maxCommits)
	if err != nil {
		return err
	}

	for _, c := range commits {
		if err := h.indexOne(ctx, projectID, projectSlug, repositoryID, c); err != nil {
			h.logger.Warn("index_history: commit indexing failed", "sha", c.sha, "error", err)
		}
	}
	return nil
}

func (h *historyIndexer) indexOne(ctx context.Context, projectID, projectSlug, repositoryID string, c gitCommit) error {
	commitPath := "commit/" + c.sha
	key, err := fingerprint.PathKey(projectSlug, commitPath)
	if err != nil {
		return err
	}
	id := fingerprint.MemoryID(key)

	if existing, _ := h.memStore.GetByID(id); existing != nil {
		return nil // already backfilled
	}

	content := fmt.Sprintf("%s\n\nfiles:\n%s", c.subject, strings.Join(c.files, "\n"))
	res, err := h.memories.Create(ctx, projectID, memory.CreateInput{
		Source:       memory.SourceGit,
		MemoryType:   "commit",
		Content:      content,
		Title:        c.subject,
		Author:       c.author,
		FilePath:     commitPath,
		RepositoryID: repositoryID,
		Context: fmt.Sprintf("git commit %s at %s touching %d file(s)",
			c.sha[:min(8, len(c.sha))], time.Unix(c.when, 0).UTC().Format(time.RFC3339), len(c.files)),
	})
	if err != nil {
		return err
	}

	for _, path := range c.files {
		target, err := h.memStore.GetByFilePath(repositoryID, path)
		if err != nil || target == nil {
			continue
		}
		if err := h.links.Upsert(&relstore.MemoryLink{
			ProjectID: projectID, SourceID: res.Memory.ID, TargetID: target.ID,
			LinkType: "modifies", Confidence: 1.0, CreatedBy: "system", CreatedAt: time.Now().Unix(),
		}); err != nil {
			h.logger.Warn("index_history: modifies link failed", "commit", c.sha, "path", path, "error", err)
		}
	}
	return nil
}

func (h *historyIndexer) log(ctx context.Context, root string, maxCommits int) ([]gitCommit, error) {
	if maxCommits <= 0 {
		maxCommits = 50
	}
	out, err := h.run(ctx, root, "log", "--reverse", "-n", strconv.Itoa(maxCommits), "--format=%H%x1f%s%x1f%an%x1f%at")
	if err != nil {
		return nil, err
	}

	var commits []gitCommit
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x1f")
		if len(fields) != 4 {
			continue
		}
		when, _ := strconv.ParseInt(fields[3], 10, 64)
		c := gitCommit{sha: fields[0], subject: fields[1], author: fields[2], when: when}

		files, err := h.run(ctx, root, "show", "--name-only", "--format=", c.sha)
		if err == nil {
			for _, f := range strings.Split(strings.TrimSpace(files), "\n") {
				if f != "" {
					c.files = append(c.files, f)
				}
			}
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func (h *historyIndexer) run(ctx context.Context, root string, args ...string) (string, error) {
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
