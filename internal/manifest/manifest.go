package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"slices"

	"git.home.luguber.info/inful/metadeploy/internal/metadata"
)

const (
	// Namespace is the Metadata API schema namespace.
	Namespace = "http://soap.sforce.com/2006/04/metadata"

	PackageFile     = "package.xml"
	DestructiveFile = "destructiveChanges.xml"
)

// TypeMembers groups the members of one metadata type.
type TypeMembers struct {
	Name    string
	Members []string
}

// Manifest declares what a deployment adds, updates or deletes.
// A type appears at most once and a member at most once within its type.
type Manifest struct {
	APIVersion  string
	Destructive bool
	Types       []TypeMembers
}

// New returns an empty manifest.
func New(apiVersion string, destructive bool) *Manifest {
	return &Manifest{APIVersion: apiVersion, Destructive: destructive}
}

// FileName is the archive-root name of the manifest document.
func (m *Manifest) FileName() string {
	if m.Destructive {
		return DestructiveFile
	}
	return PackageFile
}

// Len returns the total number of members.
func (m *Manifest) Len() int {
	n := 0
	for _, t := range m.Types {
		n += len(t.Members)
	}
	return n
}

// Members returns the members listed for typeName.
func (m *Manifest) Members(typeName string) []string {
	for _, t := range m.Types {
		if t.Name == typeName {
			return slices.Clone(t.Members)
		}
	}
	return nil
}

// Contains reports whether member is listed under typeName.
func (m *Manifest) Contains(typeName, member string) bool {
	return slices.Contains(m.Members(typeName), member)
}

// ContainsApex reports whether Apex classes or triggers are listed.
func (m *Manifest) ContainsApex() bool {
	return len(m.Members(metadata.TypeApexClass)) > 0 || len(m.Members(metadata.TypeApexTrigger)) > 0
}

type packageXML struct {
	XMLName xml.Name   `xml:"http://soap.sforce.com/2006/04/metadata Package"`
	Types   []typesXML `xml:"types"`
	Version string     `xml:"version"`
}

type typesXML struct {
	Members []string `xml:"members"`
	Name    string   `xml:"name"`
}

// Marshal serializes the manifest in the package.xml wire format.
func (m *Manifest) Marshal() ([]byte, error) {
	doc := packageXML{Version: m.APIVersion}
	for _, t := range m.Types {
		doc.Types = append(doc.Types, typesXML{Members: t.Members, Name: t.Name})
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.FileName(), err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Parse decodes a manifest document. destructive is not recorded in the
// document and must be supplied by the caller.
func Parse(data []byte, destructive bool) (*Manifest, error) {
	var doc packageXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if doc.XMLName.Space != Namespace {
		return nil, fmt.Errorf("decode manifest: unexpected namespace %q", doc.XMLName.Space)
	}
	m := New(doc.Version, destructive)
	for _, t := range doc.Types {
		m.Types = append(m.Types, TypeMembers{Name: t.Name, Members: t.Members})
	}
	return m, nil
}
