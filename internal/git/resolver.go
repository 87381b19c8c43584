package git

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/util/sets"
)

// Resolver computes change sets and fetches historical content from one
// repository. A Resolver caches commit trees and must not be shared between
// concurrently running jobs.
type Resolver struct {
	repo       *git.Repository
	sourceRoot string
	trees      map[string]*object.Tree
}

// Open opens the repository containing dir. Only paths under sourceRoot
// (for example "src/") are considered; an empty root admits every path.
func Open(dir, sourceRoot string) (*Resolver, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return New(repo, sourceRoot), nil
}

// New wraps an already opened repository.
func New(repo *git.Repository, sourceRoot string) *Resolver {
	if sourceRoot != "" && !strings.HasSuffix(sourceRoot, "/") {
		sourceRoot += "/"
	}
	return &Resolver{repo: repo, sourceRoot: sourceRoot, trees: make(map[string]*object.Tree)}
}

// Repository exposes the underlying repository.
func (r *Resolver) Repository() *git.Repository { return r.repo }

// ResolveCommit turns a revision (hash, branch, tag, HEAD~1...) into a commit hash.
func (r *Resolver) ResolveCommit(ref string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", resolutionError(ref, err)
	}
	if _, err := r.repo.CommitObject(*h); err != nil {
		return "", resolutionError(ref, err)
	}
	return h.String(), nil
}

// RemoteBranchCommit resolves refs/remotes/origin/<branch>, the diff base in
// pull request mode.
func (r *Resolver) RemoteBranchCommit(branch string) (string, error) {
	ref := plumbing.NewRemoteReferenceName("origin", branch)
	resolved, err := r.repo.Reference(ref, true)
	if err != nil {
		return "", resolutionError(ref.String(), err)
	}
	return resolved.Hash().String(), nil
}

// Resolve diffs previousRef against currentRef. An empty previousRef yields
// every path of currentRef as an addition. Renames appear as a deletion plus
// an addition.
func (r *Resolver) Resolve(previousRef, currentRef string) (*ChangeSet, error) {
	cur, err := r.ResolveCommit(currentRef)
	if err != nil {
		return nil, err
	}
	if previousRef == "" {
		all, err := r.ListAll(cur)
		if err != nil {
			return nil, err
		}
		return &ChangeSet{Current: cur, Additions: foldCompanions(all)}, nil
	}

	prev, err := r.ResolveCommit(previousRef)
	if err != nil {
		return nil, err
	}
	prevTree, err := r.tree(prev)
	if err != nil {
		return nil, err
	}
	curTree, err := r.tree(cur)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(prevTree, curTree)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", short(prev), short(cur), err)
	}

	var adds, dels, mods sets.Ordered[string]
	owners := sets.New[string]()
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("classify diff entry: %w", err)
		}
		p := ch.To.Name
		if action == merkletrie.Delete {
			p = ch.From.Name
		}
		if !r.inSourceRoot(p) {
			continue
		}
		if metadata.IsCompanion(p) {
			owners.Add(metadata.OwnerPath(p))
			continue
		}
		switch action {
		case merkletrie.Insert:
			adds.Add(p)
		case merkletrie.Delete:
			dels.Add(p)
		case merkletrie.Modify:
			mods.Add(p)
		}
	}

	// A descriptor-only change still redeploys (or removes) the owning item.
	for _, owner := range sets.Sorted(owners) {
		if adds.Has(owner) || dels.Has(owner) || mods.Has(owner) {
			continue
		}
		inPrev := hasFile(prevTree, owner)
		inCur := hasFile(curTree, owner)
		switch {
		case inPrev && inCur:
			mods.Add(owner)
		case inCur:
			adds.Add(owner)
		case inPrev:
			dels.Add(owner)
		default:
			slog.Warn("Companion file without owning item", logfields.Path(owner+metadata.CompanionSuffix))
		}
	}

	cs := &ChangeSet{Previous: prev, Current: cur}
	for _, p := range adds.Values() {
		if dels.Has(p) {
			// type change (file <-> tree or symlink) reported as delete plus insert
			mods.Add(p)
			continue
		}
		cs.Additions = append(cs.Additions, p)
	}
	for _, p := range dels.Values() {
		if !adds.Has(p) {
			cs.Deletions = append(cs.Deletions, p)
		}
	}
	cs.ModifiedNew = mods.Values()
	cs.ModifiedOld = mods.Values()

	slog.Debug("Resolved change set",
		slog.String("previous", short(prev)),
		logfields.Commit(cur),
		slog.Int("additions", len(cs.Additions)),
		slog.Int("deletions", len(cs.Deletions)),
		slog.Int("modifications", len(cs.ModifiedNew)))
	return cs, nil
}

// ListAll returns every file path under the source root at ref, in tree order.
func (r *Resolver) ListAll(ref string) ([]string, error) {
	hash, err := r.ResolveCommit(ref)
	if err != nil {
		return nil, err
	}
	tree, err := r.tree(hash)
	if err != nil {
		return nil, err
	}
	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if r.inSourceRoot(f.Name) {
			paths = append(paths, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk tree %s: %w", short(hash), err)
	}
	return paths, nil
}

// FetchBlob returns the content of path as recorded at ref.
func (r *Resolver) FetchBlob(path, ref string) ([]byte, error) {
	hash, err := r.ResolveCommit(ref)
	if err != nil {
		return nil, err
	}
	tree, err := r.tree(hash)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, integrityError(path, hash, err)
	}
	rd, err := f.Reader()
	if err != nil {
		return nil, integrityError(path, hash, err)
	}
	defer func() { _ = rd.Close() }()
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, integrityError(path, hash, err)
	}
	return data, nil
}

// At returns a content source pinned to ref.
func (r *Resolver) At(ref string) *Snapshot {
	return &Snapshot{resolver: r, ref: ref}
}

func (r *Resolver) tree(hash string) (*object.Tree, error) {
	if t, ok := r.trees[hash]; ok {
		return t, nil
	}
	c, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, resolutionError(hash, err)
	}
	t, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", short(hash), err)
	}
	r.trees[hash] = t
	return t, nil
}

func (r *Resolver) inSourceRoot(p string) bool {
	return r.sourceRoot == "" || strings.HasPrefix(p, r.sourceRoot)
}

// Snapshot reads file content from one commit.
type Snapshot struct {
	resolver *Resolver
	ref      string
}

// Ref returns the revision the snapshot reads from.
func (s *Snapshot) Ref() string { return s.ref }

// Content returns the bytes of path at the snapshot's commit.
func (s *Snapshot) Content(path string) ([]byte, error) {
	return s.resolver.FetchBlob(path, s.ref)
}

func hasFile(t *object.Tree, p string) bool {
	_, err := t.File(p)
	return err == nil
}

// foldCompanions drops descriptor files whose owner is listed.
func foldCompanions(paths []string) []string {
	present := sets.New(paths...)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if metadata.IsCompanion(p) {
			if !present.Has(metadata.OwnerPath(p)) {
				slog.Warn("Companion file without owning item", logfields.Path(p))
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
