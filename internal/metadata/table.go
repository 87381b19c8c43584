package metadata

import (
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed table.yaml
var embeddedTable []byte

// Entry holds the facts the table records for one extension.
type Entry struct {
	Container    string `yaml:"container"`
	Type         string `yaml:"type"`
	Destructible bool   `yaml:"destructible"`
	Companion    bool   `yaml:"companion"`
}

// Table is the immutable extension lookup table.
type Table struct {
	apiVersion string
	entries    map[string]Entry
}

type tableFile struct {
	APIVersion string           `yaml:"api_version"`
	Extensions map[string]Entry `yaml:"extensions"`
}

// LoadTable parses the table shipped with the binary.
func LoadTable() (*Table, error) {
	return ParseTable(embeddedTable)
}

// ParseTable decodes a YAML extension table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode metadata table: %w", err)
	}
	if f.APIVersion == "" {
		return nil, fmt.Errorf("metadata table: api_version is required")
	}
	for ext, e := range f.Extensions {
		if e.Container == "" || e.Type == "" {
			return nil, fmt.Errorf("metadata table: extension %q needs container and type", ext)
		}
	}
	return &Table{apiVersion: f.APIVersion, entries: maps.Clone(f.Extensions)}, nil
}

// APIVersion returns the Metadata API version manifests are stamped with.
func (t *Table) APIVersion() string { return t.apiVersion }

// Lookup returns the entry for an extension.
func (t *Table) Lookup(ext string) (Entry, bool) {
	e, ok := t.entries[ext]
	return e, ok
}

// Extensions returns the known extensions in sorted order.
func (t *Table) Extensions() []string {
	return slices.Sorted(maps.Keys(t.entries))
}
