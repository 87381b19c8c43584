package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/history"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
	"git.home.luguber.info/inful/metadeploy/internal/metrics"
	"git.home.luguber.info/inful/metadeploy/internal/rollback"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageResolve        StageName = "resolve"
	StageManifests      StageName = "manifests"
	StageSelectTests    StageName = "select_tests"
	StageAssemble       StageName = "assemble"
	StageSubmit         StageName = "submit"
	StageResume         StageName = "resume"
	StagePoll           StageName = "poll"
	StageRollback       StageName = "rollback"
	StageUpdateManifest StageName = "update_manifest"
)

// Stage is one step of a run.
type Stage func(ctx context.Context, job *Job) error

// StageDef pairs a stage name with its function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// runStages executes stages in order, recording timing and stopping on the
// first error or once the job reached a terminal outcome.
func (p *Pipeline) runStages(ctx context.Context, job *Job, stages []StageDef) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			p.recorder.IncStageResult(string(st.Name), metrics.ResultFatal)
			return fmt.Errorf("stage %s canceled: %w", st.Name, err)
		}
		t0 := time.Now()
		err := st.Fn(ctx, job)
		dur := time.Since(t0)
		job.StageDurations[st.Name] = dur
		p.recorder.ObserveStageDuration(string(st.Name), dur)

		result := metrics.ResultSuccess
		switch {
		case err != nil:
			result = metrics.ResultFatal
		case len(job.Dropped) > 0 && st.Name == StageManifests:
			result = metrics.ResultWarning
		}
		p.recorder.IncStageResult(string(st.Name), result)
		slog.Debug("Stage complete",
			logfields.BuildID(job.BuildID),
			logfields.Stage(string(st.Name)),
			logfields.DurationMS(float64(dur.Microseconds())/1000))

		if err != nil {
			return err
		}
		if job.done {
			slog.Info("Remaining stages skipped",
				logfields.BuildID(job.BuildID),
				logfields.Stage(string(st.Name)),
				logfields.Status(string(job.Outcome)))
			return nil
		}
	}
	return nil
}

func (p *Pipeline) deployStages() []StageDef {
	return []StageDef{
		{StageResolve, p.stageResolve},
		{StageManifests, p.stageManifests},
		{StageSelectTests, p.stageSelectTests},
		{StageAssemble, p.stageAssemble},
		{StageSubmit, p.stageSubmit},
		{StagePoll, p.stagePoll},
		{StageRollback, p.stageRollback},
		{StageUpdateManifest, p.stageUpdateManifest},
	}
}

func (p *Pipeline) resumeStages() []StageDef {
	return []StageDef{
		{StageResume, p.stageResume},
		{StagePoll, p.stagePoll},
		{StageRollback, p.stageRollback},
	}
}

func (p *Pipeline) stageResolve(_ context.Context, job *Job) error {
	previous := job.PreviousRef
	switch {
	case p.strategy.DeployAll:
		previous = ""
	case job.TargetBranch != "":
		base, err := p.resolver.RemoteBranchCommit(job.TargetBranch)
		if err != nil {
			return err
		}
		previous = base
	}

	cs, err := p.resolver.Resolve(previous, job.CurrentRef)
	if err != nil {
		return err
	}
	job.ChangeSet = cs
	job.snapshot = p.resolver.At(cs.Current)

	slog.Info("Resolved changes",
		logfields.BuildID(job.BuildID),
		slog.String("previous", shortRef(cs.Previous)),
		logfields.Commit(cs.Current),
		slog.Bool("full", cs.Full()),
		slog.Int("additions", len(cs.Additions)),
		slog.Int("deletions", len(cs.Deletions)),
		slog.Int("modifications", len(cs.ModifiedNew)))

	if cs.Empty() {
		job.finish(OutcomeNoChanges)
	}
	return nil
}

func (p *Pipeline) stageManifests(_ context.Context, job *Job) error {
	builder := p.manifestBuilder(func(err error) { job.Dropped = append(job.Dropped, err) })
	job.Deploy, job.Items = builder.Build(job.ChangeSet.Deployable(), false)
	if job.Full() {
		job.Destructive = manifest.New(p.classifier.APIVersion(), true)
	} else {
		job.Destructive, _ = builder.Build(job.ChangeSet.Deletions, true)
	}

	slog.Info("Built manifests",
		logfields.BuildID(job.BuildID),
		slog.Int("deploy_members", job.Deploy.Len()),
		slog.Int("destructive_members", job.Destructive.Len()),
		slog.Int("dropped", len(job.Dropped)))

	if job.Deploy.Len() == 0 && job.Destructive.Len() == 0 {
		job.finish(OutcomeNoChanges)
	}
	return nil
}

func (p *Pipeline) stageSelectTests(_ context.Context, job *Job) error {
	job.TestLevel = p.strategy.TestLevel
	if job.Full() {
		job.TestLevel = config.TestLevelLocal
		return nil
	}
	if job.TestLevel != config.TestLevelSpecified {
		return nil
	}
	all, err := p.resolver.ListAll(job.ChangeSet.Current)
	if err != nil {
		return err
	}
	job.Tests = p.selector.Select(job.Items, p.classifier.ClassifyAll(all))
	slog.Info("Selected tests", logfields.BuildID(job.BuildID), logfields.Count(len(job.Tests)))
	return nil
}

func (p *Pipeline) stageAssemble(_ context.Context, job *Job) error {
	a, err := p.assembler.Assemble(job.Deploy, job.Destructive, job.Items, job.snapshot)
	if err != nil {
		return err
	}
	job.Archive = a
	p.recorder.SetArchiveBytes("deploy", len(a.Bytes()))
	return nil
}

func (p *Pipeline) stageSubmit(ctx context.Context, job *Job) error {
	job.session = p.newSession()
	if err := job.session.Login(ctx, p.creds); err != nil {
		return err
	}
	ref, err := job.session.Submit(ctx, job.Archive.Bytes(), deploy.Options{
		CheckOnly:      job.CheckOnly,
		TestLevel:      job.TestLevel,
		SpecifiedTests: job.Tests,
		ContainsApex:   job.Deploy.ContainsApex(),
	})
	if err != nil {
		return err
	}
	job.JobRef = ref

	if p.history != nil {
		rec := history.Record{
			BuildID:        job.BuildID,
			JobRef:         string(ref),
			State:          history.StateSubmitted,
			TestLevel:      string(job.session.EffectiveLevel()),
			CheckOnly:      job.CheckOnly,
			PreviousCommit: job.ChangeSet.Previous,
			CurrentCommit:  job.ChangeSet.Current,
		}
		if err := p.history.Record(ctx, rec); err != nil {
			slog.Warn("Failed to record submission", logfields.JobRef(string(ref)), logfields.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) stageResume(ctx context.Context, job *Job) error {
	job.session = p.newSession()
	if err := job.session.Login(ctx, p.creds); err != nil {
		return err
	}
	if err := job.session.Resume(job.JobRef, job.TestLevel); err != nil {
		return err
	}
	if job.PreviousRef == "" {
		return nil
	}
	cs, err := p.resolver.Resolve(job.PreviousRef, job.CurrentRef)
	if err != nil {
		return err
	}
	job.ChangeSet = cs
	return nil
}

func (p *Pipeline) stagePoll(ctx context.Context, job *Job) error {
	res, err := job.session.Poll(ctx)
	var timeout *deploy.PollTimeoutError
	switch {
	case stderrors.As(err, &timeout):
		job.finish(OutcomeTimedOut)
		return nil
	case err != nil:
		return err
	}
	job.Result = res
	if !res.Success {
		job.finish(OutcomeFailed)
		return nil
	}
	job.Outcome = OutcomeSucceeded
	return nil
}

func (p *Pipeline) stageRollback(_ context.Context, job *Job) error {
	switch {
	case !p.strategy.Rollback, job.CheckOnly:
		return nil
	case job.ChangeSet == nil, job.Full():
		slog.Debug("No rollback for a full deployment", logfields.BuildID(job.BuildID))
		return nil
	}

	builder := rollback.NewBuilder(p.resolver, p.manifestBuilder(nil), p.assembler)
	pkg, err := builder.Build(job.ChangeSet, job.ChangeSet.Previous, job.BuildID)
	if err != nil {
		return err
	}
	path := filepath.Join(p.strategy.RollbackDir, rollback.FileName(job.JobName, job.BuildID))
	if err := pkg.WriteFile(path); err != nil {
		return err
	}
	job.Rollback = pkg
	job.RollbackPath = path
	p.recorder.SetArchiveBytes("rollback", len(pkg.Bytes()))
	slog.Info("Wrote rollback archive",
		logfields.BuildID(job.BuildID),
		logfields.Path(path),
		slog.Int("restore_members", pkg.Deploy.Len()),
		slog.Int("destructive_members", pkg.Destructive.Len()))
	return nil
}

// stageUpdateManifest commits a package.xml describing every tracked member
// of the deployed commit when items were added or removed.
func (p *Pipeline) stageUpdateManifest(_ context.Context, job *Job) error {
	if !p.strategy.UpdateManifest || job.CheckOnly || !job.ChangeSet.HasStructuralChanges() {
		return nil
	}
	all, err := p.resolver.ListAll(job.ChangeSet.Current)
	if err != nil {
		return err
	}
	m, _ := p.manifestBuilder(nil).Build(all, false)
	data, err := m.Marshal()
	if err != nil {
		return errors.InternalError("serialize repository manifest").WithCause(err).Build()
	}
	rel, hash, err := p.resolver.CommitManifest(data, p.strategy.Committer)
	if err != nil {
		return err
	}
	job.ManifestPath = rel
	job.ManifestCommit = hash
	return nil
}

func (p *Pipeline) manifestBuilder(onDrop func(error)) *manifest.Builder {
	return manifest.NewBuilder(p.classifier, manifest.WithDropHandler(func(err error) {
		p.recorder.IncDroppedItem(string(errors.GetCategory(err)))
		if onDrop != nil {
			onDrop(err)
		}
	}))
}

func shortRef(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
