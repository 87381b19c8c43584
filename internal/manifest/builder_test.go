package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
)

func newClassifier(t *testing.T) *metadata.Classifier {
	t.Helper()
	table, err := metadata.LoadTable()
	require.NoError(t, err)
	return metadata.NewClassifier(table)
}

func TestBuildGroupsInFirstSeenOrder(t *testing.T) {
	b := NewBuilder(newClassifier(t))

	m, items := b.Build([]string{
		"src/pages/Home.page",
		"src/classes/Zeta.cls",
		"src/classes/Alpha.cls",
		"src/pages/About.page",
		"src/classes/Zeta.cls",
	}, false)

	require.False(t, m.Destructive)
	require.Equal(t, "34.0", m.APIVersion)
	require.Equal(t, []TypeMembers{
		{Name: "ApexPage", Members: []string{"Home", "About"}},
		{Name: "ApexClass", Members: []string{"Zeta", "Alpha"}},
	}, m.Types)
	require.Len(t, items, 4)
	require.True(t, m.ContainsApex())
	require.Equal(t, 4, m.Len())
}

func TestBuildDestructiveDropsNonDestructible(t *testing.T) {
	var dropped []error
	b := NewBuilder(newClassifier(t), WithDropHandler(func(err error) { dropped = append(dropped, err) }))

	paths := []string{
		"src/classes/Old.cls",
		"src/profiles/Admin.profile",
		"src/workflows/Account.workflow",
		"src/objects/Legacy__c.object",
	}
	m, items := b.Build(paths, true)

	require.True(t, m.Destructive)
	require.Equal(t, DestructiveFile, m.FileName())
	for _, item := range items {
		require.True(t, item.Destructible, item.Path)
	}
	for _, tm := range m.Types {
		require.NotEqual(t, "Profile", tm.Name)
		require.NotEqual(t, "Workflow", tm.Name)
	}
	require.Len(t, dropped, 2)
	for _, err := range dropped {
		require.True(t, errors.HasCategory(err, errors.CategoryPolicy))
		require.True(t, errors.HasSeverity(err, errors.SeverityWarning))
	}
}

func TestBuildIncludedItemsAreTheValidSubset(t *testing.T) {
	var dropped []error
	b := NewBuilder(newClassifier(t), WithDropHandler(func(err error) { dropped = append(dropped, err) }))

	paths := []string{
		"src/classes/A.cls",
		"src/classes/A.cls-meta.xml",
		"src/notes/readme.txt",
		"src/triggers/T.trigger",
		"src/classes/A.cls",
		"src/objects/Account.object",
	}
	m, items := b.Build(paths, false)

	got := make([]string, 0, len(items))
	for _, item := range items {
		got = append(got, item.Path)
		require.True(t, m.Contains(item.Type, item.Member), item.Path)
	}
	require.Equal(t, []string{"src/classes/A.cls", "src/triggers/T.trigger", "src/objects/Account.object"}, got)
	require.Equal(t, len(items), m.Len())

	// only the unknown extension is reported; companion descriptors are silent
	require.Len(t, dropped, 1)
	require.True(t, errors.HasCategory(dropped[0], errors.CategoryClassification))
}

func TestBuildEmpty(t *testing.T) {
	m, items := NewBuilder(newClassifier(t)).Build(nil, true)
	require.Empty(t, items)
	require.Empty(t, m.Types)
	require.Equal(t, 0, m.Len())
}
