package git

import "slices"

// ChangeSet is the classified diff between two commits.
//
// Additions, Deletions and ModifiedNew never share a path. ModifiedOld holds
// the pre-change path of each modification; without rename detection it
// mirrors ModifiedNew.
type ChangeSet struct {
	Previous string // resolved hash, empty for a full deployment
	Current  string // resolved hash

	Additions   []string
	Deletions   []string
	ModifiedOld []string
	ModifiedNew []string
}

// Full reports whether the set covers every path of Current.
func (c *ChangeSet) Full() bool { return c.Previous == "" }

// Deployable returns the paths whose current content is deployed: additions
// followed by modifications.
func (c *ChangeSet) Deployable() []string {
	return slices.Concat(c.Additions, c.ModifiedNew)
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return len(c.Additions)+len(c.Deletions)+len(c.ModifiedNew) == 0
}

// HasStructuralChanges reports whether items were added or removed.
func (c *ChangeSet) HasStructuralChanges() bool {
	return len(c.Additions) > 0 || len(c.Deletions) > 0
}
