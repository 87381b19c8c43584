package git

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
)

const (
	manifestFileName        = "package.xml"
	defaultManifestLocation = "unpackaged/package.xml"
	manifestCommitMessage   = "Update package.xml"
)

// Committer identifies who records the manifest update.
type Committer struct {
	Name  string
	Email string
}

// FindManifest returns the repository path of the first package.xml in the
// HEAD tree, preferring the shallowest one. It falls back to
// unpackaged/package.xml.
func (r *Resolver) FindManifest() string {
	head, err := r.repo.Head()
	if err != nil {
		return defaultManifestLocation
	}
	tree, err := r.tree(head.Hash().String())
	if err != nil {
		return defaultManifestLocation
	}
	best := ""
	_ = tree.Files().ForEach(func(f *object.File) error {
		if path.Base(f.Name) != manifestFileName {
			return nil
		}
		if best == "" || strings.Count(f.Name, "/") < strings.Count(best, "/") {
			best = f.Name
		}
		return nil
	})
	if best == "" {
		return defaultManifestLocation
	}
	return best
}

// CommitManifest writes content to the repository's manifest location in the
// worktree and commits it. It returns the manifest path and the new commit hash.
func (r *Resolver) CommitManifest(content []byte, who Committer) (string, string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", "", fmt.Errorf("open worktree: %w", err)
	}
	rel := r.FindManifest()
	full := filepath.Join(wt.Filesystem.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", "", errors.FileSystemError("create manifest directory").WithCause(err).WithContext("path", rel).Build()
	}
	if err := os.WriteFile(full, content, 0o600); err != nil {
		return "", "", errors.FileSystemError("write manifest").WithCause(err).WithContext("path", rel).Build()
	}
	if _, err := wt.Add(rel); err != nil {
		return "", "", fmt.Errorf("stage %s: %w", rel, err)
	}
	sig := &object.Signature{Name: who.Name, Email: who.Email, When: time.Now()}
	hash, err := wt.Commit(manifestCommitMessage, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return "", "", fmt.Errorf("commit %s: %w", rel, err)
	}
	slog.Info("Committed updated manifest", logfields.Path(rel), logfields.Commit(hash.String()))
	return rel, hash.String(), nil
}
