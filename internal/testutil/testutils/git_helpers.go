package helpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo is a scratch repository for tests that need real commits.
type GitRepo struct {
	t    *testing.T
	Repo *git.Repository
	Work *git.Worktree
	Dir  string
	tick int
}

// SetupTestGitRepo initializes a temporary git repository for testing.
func SetupTestGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := git.PlainInit(tempDir, false)
	if err != nil {
		t.Fatalf("failed to initialize git repo: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	return &GitRepo{t: t, Repo: repo, Work: w, Dir: tempDir}
}

// Write creates or replaces a file (slash separated, repository relative) and stages it.
func (g *GitRepo) Write(rel, content string) *GitRepo {
	g.t.Helper()
	full := filepath.Join(g.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		g.t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		g.t.Fatalf("write %s: %v", rel, err)
	}
	if _, err := g.Work.Add(rel); err != nil {
		g.t.Fatalf("add %s: %v", rel, err)
	}
	return g
}

// Remove deletes a tracked file from the worktree and the index.
func (g *GitRepo) Remove(rel string) *GitRepo {
	g.t.Helper()
	if _, err := g.Work.Remove(rel); err != nil {
		g.t.Fatalf("remove %s: %v", rel, err)
	}
	return g
}

// Commit records the staged changes and returns the commit hash.
func (g *GitRepo) Commit(msg string) string {
	g.t.Helper()
	g.tick++
	sig := &object.Signature{
		Name:  "Test User",
		Email: "test@example.com",
		When:  time.Date(2024, 1, 1, 12, 0, g.tick, 0, time.UTC),
	}
	h, err := g.Work.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, AllowEmptyCommits: true})
	if err != nil {
		g.t.Fatalf("commit %q: %v", msg, err)
	}
	return h.String()
}
