package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metadeploy/internal/archive"
	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/history"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/notify"
	"git.home.luguber.info/inful/metadeploy/internal/retry"
	helpers "git.home.luguber.info/inful/metadeploy/internal/testutil/testutils"
)

// fakePlatform accepts every submission and completes after doneAfter
// status checks (never when zero).
type fakePlatform struct {
	doneAfter int
	final     deploy.Status
	details   *deploy.Details

	submitted []deploy.WireOptions
	archives  [][]byte
	checks    int
}

func (f *fakePlatform) Login(context.Context, deploy.Credentials) (deploy.MetadataAPI, error) {
	return f, nil
}

func (f *fakePlatform) Deploy(_ context.Context, zip []byte, opts deploy.WireOptions) (deploy.JobReference, error) {
	f.submitted = append(f.submitted, opts)
	f.archives = append(f.archives, zip)
	return deploy.JobReference(fmt.Sprintf("0Af%012d", len(f.submitted))), nil
}

func (f *fakePlatform) CheckDeployStatus(_ context.Context, job deploy.JobReference, details bool) (*deploy.Status, error) {
	f.checks++
	if f.doneAfter == 0 || f.checks < f.doneAfter {
		return &deploy.Status{ID: job, State: "InProgress"}, nil
	}
	st := f.final
	st.ID = job
	st.Done = true
	if details {
		st.Details = f.details
	}
	return &st, nil
}

func succeedAfter(n int) *fakePlatform {
	return &fakePlatform{
		doneAfter: n,
		final:     deploy.Status{Success: true, State: "Succeeded"},
		details: &deploy.Details{RunTestResult: deploy.RunTestResult{
			NumTestsRun:  2,
			CodeCoverage: []deploy.ClassCoverage{{Name: "Baz", Locations: 10, Uncovered: 2}},
		}},
	}
}

type fixture struct {
	repo       *helpers.GitRepo
	resolver   *git.Resolver
	classifier *metadata.Classifier
	platform   *fakePlatform
	history    *history.SQLiteStore
	events     *notify.MemoryPublisher
	strategy   Strategy
}

func newFixture(t *testing.T, platform *fakePlatform) *fixture {
	t.Helper()
	table, err := metadata.LoadTable()
	require.NoError(t, err)
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := helpers.SetupTestGitRepo(t)
	return &fixture{
		repo:       repo,
		resolver:   git.New(repo.Repo, "src/"),
		classifier: metadata.NewClassifier(table),
		platform:   platform,
		history:    store,
		events:     &notify.MemoryPublisher{},
		strategy: Strategy{
			TestLevel:   config.TestLevelLocal,
			TestPattern: config.DefaultTestRegex,
			Rollback:    true,
			RollbackDir: filepath.Join(t.TempDir(), "sma"),
			Committer:   git.Committer{Name: "ci", Email: "ci@example.com"},
			Policy:      retry.NewPolicy(time.Second, 5),
		},
	}
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.resolver, f.classifier, f.platform, deploy.Credentials{Username: "ci@example.com"}, f.strategy,
		WithHistory(f.history),
		WithPublisher(f.events),
		WithSessionOptions(deploy.WithSleep(func(context.Context, time.Duration) error { return nil })))
	require.NoError(t, err)
	return p
}

// commitScenario builds the two commits used by most tests: the second
// deletes Foo.cls, modifies Bar.page and adds Baz.trigger.
func (f *fixture) commitScenario() (string, string) {
	a := f.repo.
		Write("src/classes/Foo.cls", "public class Foo {}").
		Write("src/classes/Foo.cls-meta.xml", "<ApexClass/>").
		Write("src/pages/Bar.page", "<apex:page>old</apex:page>").
		Write("src/pages/Bar.page-meta.xml", "<ApexPage/>").
		Commit("A")
	b := f.repo.
		Remove("src/classes/Foo.cls").
		Remove("src/classes/Foo.cls-meta.xml").
		Write("src/pages/Bar.page", "<apex:page>new</apex:page>").
		Write("src/triggers/Baz.trigger", "trigger Baz on Account (before insert) {}").
		Write("src/triggers/Baz.trigger-meta.xml", "<ApexTrigger/>").
		Commit("B")
	return a, b
}

func TestRunDeploysChangesAndWritesRollback(t *testing.T) {
	f := newFixture(t, succeedAfter(2))
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{BuildID: "7", JobName: "promote", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, job.Outcome)

	require.Equal(t, []string{"Bar"}, job.Deploy.Members("ApexPage"))
	require.Equal(t, []string{"Baz"}, job.Deploy.Members("ApexTrigger"))
	require.Equal(t, []string{"Foo"}, job.Destructive.Members("ApexClass"))

	require.Len(t, f.platform.submitted, 1)
	opts := f.platform.submitted[0]
	require.True(t, opts.RollbackOnError)
	require.True(t, opts.SinglePackage)
	require.Equal(t, config.TestLevelLocal, opts.TestLevel)

	sent, err := archive.ReadEntries(f.platform.archives[0])
	require.NoError(t, err)
	require.Equal(t, "<apex:page>new</apex:page>", string(sent["pages/Bar.page"]))
	require.Contains(t, sent, "triggers/Baz.trigger-meta.xml")
	require.Contains(t, sent, manifest.PackageFile)

	require.Equal(t, filepath.Join(f.strategy.RollbackDir, "rollbackpromote7.zip"), job.RollbackPath)
	data, err := os.ReadFile(job.RollbackPath)
	require.NoError(t, err)
	restored, err := archive.ReadEntries(data)
	require.NoError(t, err)
	require.Equal(t, "public class Foo {}", string(restored["classes/Foo.cls"]))
	require.Equal(t, "<apex:page>old</apex:page>", string(restored["pages/Bar.page"]))
	undo, err := manifest.Parse(restored[manifest.DestructiveFile], true)
	require.NoError(t, err)
	require.True(t, undo.Contains("ApexTrigger", "Baz"))

	rec, err := f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.Equal(t, history.StateSucceeded, rec.State)
	require.Equal(t, job.RollbackPath, rec.RollbackPath)
	require.InDelta(t, 80.0, rec.Coverage, 1e-9)

	events := f.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, "succeeded", events[0].Outcome)
	require.Equal(t, 2, events[0].Deployed)
	require.Equal(t, 1, events[0].Destructive)
}

func TestRunWithoutChangesSubmitsNothing(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	a := f.repo.Write("src/classes/Foo.cls", "x").Write("src/classes/Foo.cls-meta.xml", "m").Commit("A")
	b := f.repo.Write("README.md", "docs").Commit("B")

	job, err := f.pipeline(t).Run(t.Context(), Request{BuildID: "1", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoChanges, job.Outcome)
	require.Empty(t, f.platform.submitted)
	require.NotContains(t, job.StageDurations, StageSubmit)

	recent, err := f.history.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestRunOnlyUnknownFilesIsNoChange(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	a := f.repo.Write("src/classes/Foo.cls", "x").Write("src/classes/Foo.cls-meta.xml", "m").Commit("A")
	b := f.repo.Write("src/notes/todo.txt", "later").Commit("B")

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoChanges, job.Outcome)
	require.Len(t, job.Dropped, 1)
	require.True(t, errors.HasCategory(job.Dropped[0], errors.CategoryClassification))
	require.NotEmpty(t, job.BuildID, "a build id is generated when none is given")
}

func TestRunTimeoutThenResume(t *testing.T) {
	platform := succeedAfter(0)
	f := newFixture(t, platform)
	a, b := f.commitScenario()
	p := f.pipeline(t)

	job, err := p.Run(t.Context(), Request{BuildID: "9", JobName: "promote", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, job.Outcome)
	require.NotEmpty(t, job.JobRef)
	require.Empty(t, job.RollbackPath)
	require.Equal(t, 5, platform.checks)

	rec, err := f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.Equal(t, history.StateTimedOut, rec.State)

	platform.doneAfter = platform.checks + 1
	resumed, err := p.Resume(t.Context(), job.JobRef, Request{JobName: "promote"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, resumed.Outcome)
	require.Equal(t, "9", resumed.BuildID)
	require.Len(t, platform.submitted, 1, "resume never resubmits")
	require.FileExists(t, filepath.Join(f.strategy.RollbackDir, "rollbackpromote9.zip"))

	rec, err = f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.Equal(t, history.StateSucceeded, rec.State)
}

func TestResumeUnknownJobSkipsRollback(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.repo.Write("src/classes/Foo.cls", "x").Commit("A")

	job, err := f.pipeline(t).Resume(t.Context(), "0AfUNKNOWN", Request{JobName: "promote"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, job.Outcome)
	require.Empty(t, job.RollbackPath)

	rec, err := f.history.Get(t.Context(), "0AfUNKNOWN")
	require.NoError(t, err)
	require.Equal(t, history.StateSucceeded, rec.State)
}

func TestResumeKeepsCheckOnlyFromHistory(t *testing.T) {
	platform := succeedAfter(0)
	f := newFixture(t, platform)
	f.strategy.CheckOnly = true
	f.strategy.UpdateManifest = true
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{BuildID: "9", JobName: "promote", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, job.Outcome)

	rec, err := f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.True(t, rec.CheckOnly)

	// a later resume runs with configuration that has check-only off
	f.strategy.CheckOnly = false
	platform.doneAfter = platform.checks + 1
	resumed, err := f.pipeline(t).Resume(t.Context(), job.JobRef, Request{JobName: "promote"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, resumed.Outcome)
	require.True(t, resumed.CheckOnly)
	require.Empty(t, resumed.RollbackPath)
	require.Empty(t, resumed.ManifestCommit)
	require.NoFileExists(t, filepath.Join(f.strategy.RollbackDir, "rollbackpromote9.zip"))

	events := f.events.Events()
	require.True(t, events[len(events)-1].CheckOnly)

	rec, err = f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.True(t, rec.CheckOnly)
	require.Empty(t, rec.RollbackPath)
}

func TestRunRecordsEffectiveTestLevel(t *testing.T) {
	platform := succeedAfter(0)
	f := newFixture(t, platform)
	f.strategy.TestLevel = config.TestLevelSpecified
	a, b := f.commitScenario()
	p := f.pipeline(t)

	job, err := p.Run(t.Context(), Request{BuildID: "11", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, job.Outcome)
	require.Empty(t, job.Tests)
	require.Equal(t, config.TestLevelNone, platform.submitted[0].TestLevel)

	rec, err := f.history.Get(t.Context(), string(job.JobRef))
	require.NoError(t, err)
	require.Equal(t, string(config.TestLevelNone), rec.TestLevel)

	platform.doneAfter = platform.checks + 1
	resumed, err := p.Resume(t.Context(), job.JobRef, Request{})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, resumed.Outcome)
	require.Equal(t, config.TestLevelNone, resumed.Result.TestLevel)
	require.False(t, resumed.Result.RanTests())
}

func TestRunFailedDeploymentIsAnOutcome(t *testing.T) {
	platform := succeedAfter(1)
	platform.final = deploy.Status{Success: false, State: "Failed"}
	platform.details = &deploy.Details{ComponentFailures: []deploy.ComponentFailure{
		{FileName: "pages/Bar.page", Line: 3, Problem: "Unknown component"},
	}}
	f := newFixture(t, platform)
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{BuildID: "3", PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, job.Outcome)
	require.Len(t, job.Result.ComponentFailures, 1)
	require.Empty(t, job.RollbackPath)
	require.NotContains(t, job.StageDurations, StageRollback)

	events := f.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].ComponentFailures)
}

func TestRunDeployAllForcesLocalTests(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.strategy.DeployAll = true
	f.strategy.TestLevel = config.TestLevelNone
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, job.Outcome)
	require.True(t, job.Full())
	require.Zero(t, job.Destructive.Len())
	require.Equal(t, config.TestLevelLocal, f.platform.submitted[0].TestLevel)
	require.Empty(t, job.RollbackPath)
	require.False(t, job.Deploy.Contains("ApexClass", "Foo"))
	require.True(t, job.Deploy.Contains("ApexPage", "Bar"))
}

func TestRunSelectsSpecifiedTests(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.strategy.TestLevel = config.TestLevelSpecified
	a := f.repo.
		Write("src/classes/Invoice.cls", "v1").
		Write("src/classes/Invoice.cls-meta.xml", "m").
		Write("src/classes/InvoiceTest.cls", "t").
		Write("src/classes/InvoiceTest.cls-meta.xml", "m").
		Commit("A")
	b := f.repo.Write("src/classes/Invoice.cls", "v2").Commit("B")

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, []string{"InvoiceTest"}, job.Tests)
	opts := f.platform.submitted[0]
	require.Equal(t, config.TestLevelSpecified, opts.TestLevel)
	require.Equal(t, []string{"InvoiceTest"}, opts.RunTests)
}

func TestRunPullRequestModeDiffsAgainstTarget(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	a := f.repo.Write("src/classes/Foo.cls", "x").Write("src/classes/Foo.cls-meta.xml", "m").Commit("A")
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", "main"), plumbing.NewHash(a))
	require.NoError(t, f.repo.Repo.Storer.SetReference(ref))
	f.repo.Write("src/pages/Bar.page", "p").Write("src/pages/Bar.page-meta.xml", "m").Commit("B")
	c := f.repo.Write("src/pages/Bar.page", "p2").Commit("C")

	job, err := f.pipeline(t).Run(t.Context(), Request{TargetBranch: "main", PreviousRef: c, CurrentRef: c})
	require.NoError(t, err)
	require.Equal(t, a, job.ChangeSet.Previous)
	require.Equal(t, []string{"src/pages/Bar.page"}, job.ChangeSet.Additions)
}

func TestRunCommitsUpdatedManifest(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.strategy.UpdateManifest = true
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.Equal(t, "unpackaged/package.xml", job.ManifestPath)
	require.NotEmpty(t, job.ManifestCommit)

	stored, err := f.resolver.FetchBlob("unpackaged/package.xml", job.ManifestCommit)
	require.NoError(t, err)
	m, err := manifest.Parse(stored, false)
	require.NoError(t, err)
	require.True(t, m.Contains("ApexTrigger", "Baz"))
	require.True(t, m.Contains("ApexPage", "Bar"))
	require.False(t, m.Contains("ApexClass", "Foo"))
}

func TestRunCheckOnlySkipsRollbackAndManifest(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.strategy.CheckOnly = true
	f.strategy.UpdateManifest = true
	a, b := f.commitScenario()

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: a, CurrentRef: b})
	require.NoError(t, err)
	require.True(t, f.platform.submitted[0].CheckOnly)
	require.Empty(t, job.RollbackPath)
	require.Empty(t, job.ManifestCommit)
}

func TestRunUnknownReferenceBreaksPipeline(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.repo.Write("src/classes/Foo.cls", "x").Commit("A")

	job, err := f.pipeline(t).Run(t.Context(), Request{PreviousRef: "does-not-exist", CurrentRef: "HEAD"})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryResolution))
	require.Equal(t, OutcomeError, job.Outcome)

	events := f.events.Events()
	require.Len(t, events, 1)
	require.Equal(t, "error", events[0].Outcome)
	require.NotEmpty(t, events[0].Error)
}

func TestNewRejectsBadTestPattern(t *testing.T) {
	f := newFixture(t, succeedAfter(1))
	f.strategy.TestPattern = "(["
	_, err := New(f.resolver, f.classifier, f.platform, deploy.Credentials{}, f.strategy)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}
