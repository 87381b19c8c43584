package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"git.home.luguber.info/inful/metadeploy/internal/archive"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
)

// InspectCmd implements the 'inspect' command.
type InspectCmd struct {
	Archive string `arg:"" name:"archive" help:"Deployment or rollback zip" type:"existingfile"`
}

func (i *InspectCmd) Run(_ *Global, _ *CLI) error {
	// #nosec G304 -- archive path is supplied by the operator
	data, err := os.ReadFile(i.Archive)
	if err != nil {
		return errors.FileSystemError("read archive").WithCause(err).WithContext("path", i.Archive).Build()
	}
	return inspectArchive(os.Stdout, data)
}

func inspectArchive(w io.Writer, data []byte) error {
	entries, err := archive.ReadEntries(data)
	if err != nil {
		return errors.ValidationError("not a deployment archive").WithCause(err).Build()
	}

	for _, name := range []string{manifest.PackageFile, manifest.DestructiveFile} {
		raw, ok := entries[name]
		if !ok {
			fmt.Fprintf(w, "%s: missing\n", name)
			continue
		}
		m, err := manifest.Parse(raw, name == manifest.DestructiveFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s (API %s, %d members)\n", name, m.APIVersion, m.Len())
		for _, t := range m.Types {
			fmt.Fprintf(w, "  %s: %s\n", t.Name, strings.Join(t.Members, ", "))
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		if name == manifest.PackageFile || name == manifest.DestructiveFile {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "%d content entries\n", len(names))
	for _, name := range names {
		fmt.Fprintf(w, "  %s (%d bytes)\n", name, len(entries[name]))
	}
	return nil
}
