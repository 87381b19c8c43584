package metadata

import "strings"

const (
	// CompanionSuffix marks the descriptor file that accompanies some items.
	CompanionSuffix = "-meta.xml"

	TypeInvalid     = "Invalid"
	TypeApexClass   = "ApexClass"
	TypeApexTrigger = "ApexTrigger"

	unknownContainer = "empty"
)

// Item is one classified repository file.
type Item struct {
	Extension         string
	Container         string
	Member            string
	Type              string
	Path              string // repository-relative, slash separated
	Destructible      bool
	Valid             bool
	RequiresCompanion bool
	Content           []byte
}

// FullName is the member name with its extension.
func (i Item) FullName() string { return i.Member + "." + i.Extension }

// EntryName is the archive entry for the item: container/member.extension.
func (i Item) EntryName() string { return i.Container + "/" + i.FullName() }

// CompanionEntryName is the archive entry of the item's descriptor file.
func (i Item) CompanionEntryName() string { return i.EntryName() + CompanionSuffix }

// CompanionPath is the repository path of the item's descriptor file.
func (i Item) CompanionPath() string { return i.Path + CompanionSuffix }

// IsCompanion reports whether the item's path is a descriptor file.
func (i Item) IsCompanion() bool { return IsCompanion(i.Path) }

// IsApex reports whether the item is Apex code.
func (i Item) IsApex() bool { return i.Type == TypeApexClass || i.Type == TypeApexTrigger }

// WithContent returns a copy of the item carrying content.
func (i Item) WithContent(content []byte) Item {
	i.Content = content
	return i
}

// IsCompanion reports whether p names a descriptor file.
func IsCompanion(p string) bool { return strings.HasSuffix(p, CompanionSuffix) }

// OwnerPath strips the companion suffix, returning the path of the item the
// descriptor belongs to. Other paths are returned unchanged.
func OwnerPath(p string) string { return strings.TrimSuffix(p, CompanionSuffix) }
