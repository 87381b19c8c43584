package archive

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/klauspost/compress/zip"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/util/sets"
)

// ContentSource yields file content by repository path.
type ContentSource interface {
	Content(path string) ([]byte, error)
}

// Archive is a fully populated deployment archive.
type Archive struct {
	data    []byte
	entries []string
}

// Bytes returns the zip content.
func (a *Archive) Bytes() []byte { return a.data }

// Entries returns the entry names in write order.
func (a *Archive) Entries() []string { return slices.Clone(a.entries) }

// WriteFile stores the archive at path, creating parent directories.
func (a *Archive) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.FileSystemError("create archive directory").WithCause(err).WithContext("path", path).Build()
	}
	if err := os.WriteFile(path, a.data, 0o600); err != nil {
		return errors.FileSystemError("write archive").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}

// Assembler bundles manifests and content.
type Assembler struct {
	modified time.Time
}

// NewAssembler creates an Assembler. Entries carry a fixed timestamp so equal
// inputs produce equal archives.
func NewAssembler() *Assembler {
	return &Assembler{modified: time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)}
}

type entry struct {
	name string
	data []byte
}

// Assemble produces an archive holding both manifests at the root and each
// item at container/member.extension, plus its -meta.xml descriptor when the
// item requires one. There is no enclosing source folder: submissions use
// singlePackage, so the zip root is the package root. Item content already
// present on the item is used as is; anything else comes from src. A missing
// body or descriptor aborts assembly and no archive is returned. A nil
// destructive manifest is written empty.
func (a *Assembler) Assemble(deploy, destructive *manifest.Manifest, items []metadata.Item, src ContentSource) (*Archive, error) {
	if deploy == nil {
		return nil, errors.InternalError("deploy manifest is required").Build()
	}
	if destructive == nil {
		destructive = manifest.New(deploy.APIVersion, true)
	}

	entries := make([]entry, 0, 2+2*len(items))
	for _, m := range []*manifest.Manifest{deploy, destructive} {
		data, err := m.Marshal()
		if err != nil {
			return nil, errors.PackagingAbort("cannot serialize manifest").WithCause(err).Build()
		}
		entries = append(entries, entry{name: m.FileName(), data: data})
	}

	seen := sets.New[string]()
	for _, item := range items {
		name := item.EntryName()
		if seen.Has(name) {
			slog.Warn("Skipping duplicate archive entry", logfields.Path(item.Path), slog.String("entry", name))
			continue
		}
		seen.Add(name)

		body := item.Content
		if body == nil {
			data, err := fetch(src, item.Path)
			if err != nil {
				return nil, abort("item content unavailable", item.Path, err)
			}
			body = data
		}
		entries = append(entries, entry{name: name, data: body})

		if item.RequiresCompanion {
			data, err := fetch(src, item.CompanionPath())
			if err != nil {
				return nil, abort("companion descriptor unavailable", item.CompanionPath(), err)
			}
			entries = append(entries, entry{name: item.CompanionEntryName(), data: data})
		}
	}

	return a.write(entries)
}

func (a *Assembler) write(entries []entry) (*Archive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: a.modified})
		if err != nil {
			return nil, errors.PackagingAbort("cannot create archive entry").WithCause(err).WithContext("entry", e.name).Build()
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, errors.PackagingAbort("cannot write archive entry").WithCause(err).WithContext("entry", e.name).Build()
		}
		names = append(names, e.name)
	}
	if err := zw.Close(); err != nil {
		return nil, errors.PackagingAbort("cannot finalize archive").WithCause(err).Build()
	}
	return &Archive{data: buf.Bytes(), entries: names}, nil
}

func fetch(src ContentSource, path string) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("no content source for %s", path)
	}
	return src.Content(path)
}

func abort(msg, path string, cause error) error {
	return errors.PackagingAbort(msg).WithCause(cause).WithContext("path", path).Build()
}

// ReadEntries decodes an archive into entry name -> content.
func ReadEntries(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		out[f.Name] = content
	}
	return out, nil
}
