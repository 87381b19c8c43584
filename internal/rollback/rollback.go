// Package rollback builds the archive that restores the state before a
// deployment: it deletes what was added and redeploys what was removed or
// changed, using content from the previous commit.
package rollback

import (
	"fmt"
	"slices"

	"git.home.luguber.info/inful/metadeploy/internal/archive"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
)

// History fetches file content as recorded at a commit.
type History interface {
	FetchBlob(path, ref string) ([]byte, error)
}

// Package is a rollback archive with the manifests it contains.
type Package struct {
	*archive.Archive
	BuildID     string
	Deploy      *manifest.Manifest
	Destructive *manifest.Manifest
}

// Builder constructs rollback packages.
type Builder struct {
	history   History
	manifests *manifest.Builder
	assembler *archive.Assembler
}

// NewBuilder creates a Builder.
func NewBuilder(history History, manifests *manifest.Builder, assembler *archive.Assembler) *Builder {
	return &Builder{history: history, manifests: manifests, assembler: assembler}
}

// Build inverts cs. The destructive manifest lists the additions; the deploy
// manifest lists deletions and pre-change modification paths, whose content is
// read strictly from previousRef.
func (b *Builder) Build(cs *git.ChangeSet, previousRef, buildID string) (*Package, error) {
	if previousRef == "" {
		return nil, errors.ValidationError("rollback requires a previous commit").
			WithContext("build_id", buildID).
			Build()
	}

	restore := slices.Concat(cs.Deletions, cs.ModifiedOld)
	deploy, items := b.manifests.Build(restore, false)
	destructive, _ := b.manifests.Build(cs.Additions, true)

	src := &pinned{history: b.history, ref: previousRef}
	a, err := b.assembler.Assemble(deploy, destructive, items, src)
	if err != nil {
		return nil, err
	}
	return &Package{Archive: a, BuildID: buildID, Deploy: deploy, Destructive: destructive}, nil
}

// FileName is the rollback archive name for a job and build.
func FileName(jobName, buildID string) string {
	return fmt.Sprintf("rollback%s%s.zip", jobName, buildID)
}

type pinned struct {
	history History
	ref     string
}

func (p *pinned) Content(path string) ([]byte, error) {
	return p.history.FetchBlob(path, p.ref)
}
