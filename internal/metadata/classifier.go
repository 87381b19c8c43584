package metadata

import (
	"path"
	"strings"
)

// Classifier maps repository paths to metadata items.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	table *Table
}

// NewClassifier creates a classifier backed by table.
func NewClassifier(table *Table) *Classifier {
	return &Classifier{table: table}
}

// APIVersion returns the version manifests are stamped with.
func (c *Classifier) APIVersion() string { return c.table.APIVersion() }

// Classify derives an Item from a path. Only the extension decides container,
// type, destructibility and companion requirement. Unknown extensions yield an
// invalid item of type Invalid; that is not an error.
func (c *Classifier) Classify(p string) Item {
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	base := path.Base(p)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	member := strings.TrimSuffix(base, path.Ext(base))

	item := Item{
		Extension: ext,
		Container: unknownContainer,
		Member:    member,
		Type:      TypeInvalid,
		Path:      p,
	}
	if e, ok := c.table.Lookup(ext); ok {
		item.Container = e.Container
		item.Type = e.Type
		item.Destructible = e.Destructible
		item.RequiresCompanion = e.Companion
		item.Valid = true
	}
	return item
}

// ClassifyAll classifies each path in order.
func (c *Classifier) ClassifyAll(paths []string) []Item {
	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, c.Classify(p))
	}
	return items
}
