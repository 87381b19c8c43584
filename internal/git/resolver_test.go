package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	helpers "git.home.luguber.info/inful/metadeploy/internal/testutil/testutils"
	"git.home.luguber.info/inful/metadeploy/internal/util/sets"
)

func TestResolveScenario(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	a := g.Write("src/classes/Foo.cls", "public class Foo {}").
		Write("src/classes/Foo.cls-meta.xml", "<meta/>").
		Write("src/pages/Bar.page", "<apex:page/>").
		Write("src/pages/Bar.page-meta.xml", "<meta/>").
		Commit("A")
	b := g.Remove("src/classes/Foo.cls").
		Remove("src/classes/Foo.cls-meta.xml").
		Write("src/pages/Bar.page", "<apex:page>v2</apex:page>").
		Write("src/triggers/Baz.trigger", "trigger Baz on Account (before insert) {}").
		Write("src/triggers/Baz.trigger-meta.xml", "<meta/>").
		Commit("B")

	r := New(g.Repo, "src/")
	cs, err := r.Resolve(a, b)
	require.NoError(t, err)

	require.Equal(t, []string{"src/classes/Foo.cls"}, cs.Deletions)
	require.Equal(t, []string{"src/triggers/Baz.trigger"}, cs.Additions)
	require.Equal(t, []string{"src/pages/Bar.page"}, cs.ModifiedNew)
	require.Equal(t, []string{"src/pages/Bar.page"}, cs.ModifiedOld)
	require.False(t, cs.Full())
	require.Equal(t, a, cs.Previous)
	require.Equal(t, b, cs.Current)
}

func TestResolveSetsAreDisjoint(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	a := g.Write("src/classes/A.cls", "a").
		Write("src/classes/B.cls", "b").
		Write("src/classes/C.cls", "c").
		Commit("base")
	b := g.Remove("src/classes/A.cls").
		Write("src/classes/A2.cls", "a").
		Write("src/classes/B.cls", "b2").
		Write("src/classes/C.cls-meta.xml", "<meta/>").
		Commit("change")

	cs, err := New(g.Repo, "src").Resolve(a, b)
	require.NoError(t, err)

	adds := sets.New(cs.Additions...)
	dels := sets.New(cs.Deletions...)
	mods := sets.New(cs.ModifiedNew...)
	for _, p := range cs.Additions {
		require.False(t, dels.Has(p) || mods.Has(p), p)
	}
	for _, p := range cs.Deletions {
		require.False(t, adds.Has(p) || mods.Has(p), p)
	}

	// rename is a delete plus an add
	require.Contains(t, cs.Deletions, "src/classes/A.cls")
	require.Contains(t, cs.Additions, "src/classes/A2.cls")
	// descriptor-only change redeploys its owner
	require.ElementsMatch(t, []string{"src/classes/B.cls", "src/classes/C.cls"}, cs.ModifiedNew)
}

func TestResolveIgnoresPathsOutsideSourceRoot(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	a := g.Write("README.md", "x").Write("src/classes/A.cls", "a").Commit("base")
	b := g.Write("README.md", "y").Write("build.xml", "<project/>").Commit("docs")

	cs, err := New(g.Repo, "src/").Resolve(a, b)
	require.NoError(t, err)
	require.True(t, cs.Empty())
}

func TestResolveWithoutPreviousListsEverything(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	head := g.Write("src/classes/A.cls", "a").
		Write("src/classes/A.cls-meta.xml", "<meta/>").
		Write("src/objects/Account.object", "<CustomObject/>").
		Write("tools/script.sh", "#!/bin/sh").
		Commit("init")

	cs, err := New(g.Repo, "src/").Resolve("", head)
	require.NoError(t, err)
	require.True(t, cs.Full())
	require.Equal(t, []string{"src/classes/A.cls", "src/objects/Account.object"}, cs.Additions)
	require.Empty(t, cs.Deletions)
}

func TestResolveUnknownReference(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	head := g.Write("src/classes/A.cls", "a").Commit("init")

	_, err := New(g.Repo, "src/").Resolve("0123456789abcdef0123456789abcdef01234567", head)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryResolution))

	_, err = New(g.Repo, "src/").Resolve("", "no-such-branch")
	require.True(t, errors.HasCategory(err, errors.CategoryResolution))
}

func TestFetchBlobReadsHistoricalContent(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	a := g.Write("src/classes/A.cls", "old").Commit("v1")
	b := g.Write("src/classes/A.cls", "new").Commit("v2")

	r := New(g.Repo, "src/")
	old, err := r.FetchBlob("src/classes/A.cls", a)
	require.NoError(t, err)
	require.Equal(t, "old", string(old))

	cur, err := r.At(b).Content("src/classes/A.cls")
	require.NoError(t, err)
	require.Equal(t, "new", string(cur))

	_, err = r.FetchBlob("src/classes/Missing.cls", b)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryIntegrity))
}

func TestCommitManifest(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	g.Write("src/classes/A.cls", "a").Write("src/package.xml", "<Package/>").Commit("init")

	r := New(g.Repo, "src/")
	require.Equal(t, "src/package.xml", r.FindManifest())

	rel, hash, err := r.CommitManifest([]byte("<Package>new</Package>"), Committer{Name: "ci", Email: "ci@example.com"})
	require.NoError(t, err)
	require.Equal(t, "src/package.xml", rel)
	require.NotEmpty(t, hash)

	data, err := os.ReadFile(filepath.Join(g.Dir, "src", "package.xml"))
	require.NoError(t, err)
	require.Equal(t, "<Package>new</Package>", string(data))

	stored, err := r.FetchBlob("src/package.xml", hash)
	require.NoError(t, err)
	require.Equal(t, "<Package>new</Package>", string(stored))
}

func TestFindManifestDefaultsToUnpackaged(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	g.Write("src/classes/A.cls", "a").Commit("init")
	require.Equal(t, "unpackaged/package.xml", New(g.Repo, "src/").FindManifest())
}

func TestRemoteBranchCommitMissing(t *testing.T) {
	g := helpers.SetupTestGitRepo(t)
	g.Write("src/classes/A.cls", "a").Commit("init")
	_, err := New(g.Repo, "src/").RemoteBranchCommit("main")
	require.True(t, errors.HasCategory(err, errors.CategoryResolution))
}
