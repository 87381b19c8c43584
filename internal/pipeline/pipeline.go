package pipeline

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/metadeploy/internal/archive"
	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/history"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/metrics"
	"git.home.luguber.info/inful/metadeploy/internal/notify"
	"git.home.luguber.info/inful/metadeploy/internal/testselect"
)

// Pipeline runs deployment jobs against one repository. Jobs run one at a
// time; a Pipeline must not be used concurrently.
type Pipeline struct {
	resolver   *git.Resolver
	classifier *metadata.Classifier
	auth       deploy.Authenticator
	creds      deploy.Credentials
	strategy   Strategy
	selector   *testselect.Selector
	assembler  *archive.Assembler

	history     history.Store
	publisher   notify.Publisher
	recorder    metrics.Recorder
	sessionOpts []deploy.SessionOption
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistory records every submission in store.
func WithHistory(store history.Store) Option {
	return func(p *Pipeline) { p.history = store }
}

// WithPublisher announces every outcome on pub.
func WithPublisher(pub notify.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithSessionOptions passes extra options to every deployment session.
func WithSessionOptions(opts ...deploy.SessionOption) Option {
	return func(p *Pipeline) { p.sessionOpts = append(p.sessionOpts, opts...) }
}

// New creates a Pipeline.
func New(resolver *git.Resolver, classifier *metadata.Classifier, auth deploy.Authenticator, creds deploy.Credentials, strategy Strategy, opts ...Option) (*Pipeline, error) {
	if err := strategy.Policy.Validate(); err != nil {
		return nil, errors.ConfigError("invalid poll policy").WithCause(err).Build()
	}
	if strategy.TestPattern == "" {
		strategy.TestPattern = config.DefaultTestRegex
	}
	selector, err := testselect.New(strategy.TestPattern)
	if err != nil {
		return nil, errors.ConfigError("invalid test pattern").WithCause(err).Build()
	}

	p := &Pipeline{
		resolver:   resolver,
		classifier: classifier,
		auth:       auth,
		creds:      creds,
		strategy:   strategy,
		selector:   selector,
		assembler:  archive.NewAssembler(),
		publisher:  notify.NoopPublisher{},
		recorder:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run deploys the changes between req.PreviousRef (or the pull request base)
// and req.CurrentRef. A deployment that completes unsuccessfully or outlives
// the poll budget is reported through Job.Outcome, not as an error. An error
// means the pipeline itself broke.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Job, error) {
	if req.BuildID == "" {
		req.BuildID = uuid.NewString()
	}
	job := newJob(req)
	job.CheckOnly = p.strategy.CheckOnly
	slog.Info("Starting deployment",
		logfields.BuildID(job.BuildID),
		slog.String("previous", job.PreviousRef),
		slog.String("current", job.CurrentRef),
		slog.String("target_branch", job.TargetBranch),
		slog.Bool("deploy_all", p.strategy.DeployAll),
		slog.Bool("check_only", job.CheckOnly))

	err := p.runStages(ctx, job, p.deployStages())
	p.finalize(ctx, job, err)
	return job, err
}

// Resume re-enters the poll loop for a job submitted earlier. When the
// ledger knows the job, its build ID, commits, check-only flag and effective
// test level are restored so the rollback archive can still be written.
func (p *Pipeline) Resume(ctx context.Context, ref deploy.JobReference, req Request) (*Job, error) {
	level := p.strategy.TestLevel
	checkOnly := p.strategy.CheckOnly
	if p.history != nil {
		rec, err := p.history.Get(ctx, string(ref))
		switch {
		case err == nil:
			req.BuildID = rec.BuildID
			req.PreviousRef = rec.PreviousCommit
			req.CurrentRef = rec.CurrentCommit
			level = config.TestLevel(rec.TestLevel)
			checkOnly = rec.CheckOnly
		case stderrors.Is(err, history.ErrNotFound):
			slog.Warn("Job not found in history; resuming without rollback", logfields.JobRef(string(ref)))
		default:
			return nil, err
		}
	}
	if req.BuildID == "" {
		req.BuildID = uuid.NewString()
	}

	job := newJob(req)
	job.JobRef = ref
	job.TestLevel = level
	job.CheckOnly = checkOnly

	slog.Info("Resuming deployment", logfields.BuildID(job.BuildID), logfields.JobRef(string(ref)))
	err := p.runStages(ctx, job, p.resumeStages())
	p.finalize(ctx, job, err)
	return job, err
}

func (p *Pipeline) newSession() *deploy.Session {
	opts := append([]deploy.SessionOption{
		deploy.WithPolicy(p.strategy.Policy),
		deploy.WithRecorder(p.recorder),
	}, p.sessionOpts...)
	return deploy.NewSession(p.auth, opts...)
}

// finalize records the outcome in the ledger, the metrics and the event stream.
// Failures here are logged and never change the outcome.
func (p *Pipeline) finalize(ctx context.Context, job *Job, runErr error) {
	if runErr != nil && job.Outcome == OutcomePending {
		job.Outcome = OutcomeError
	}
	p.recorder.IncDeployOutcome(job.Outcome.label())

	var coverage float64
	if job.Result != nil && job.Result.RanTests() {
		coverage = job.Result.TotalCoverage
	}

	if p.history != nil && job.JobRef != "" {
		p.complete(ctx, job, coverage)
	}

	event := &notify.DeploymentEvent{
		BuildID:        job.BuildID,
		JobRef:         string(job.JobRef),
		Outcome:        string(job.Outcome),
		TestLevel:      string(job.TestLevel),
		CheckOnly:      job.CheckOnly,
		Coverage:       coverage,
		RollbackPath:   job.RollbackPath,
		ManifestCommit: job.ManifestCommit,
		Timestamp:      time.Now(),
	}
	if job.ChangeSet != nil {
		event.PreviousCommit = job.ChangeSet.Previous
		event.CurrentCommit = job.ChangeSet.Current
	}
	if job.Deploy != nil {
		event.Deployed = job.Deploy.Len()
	}
	if job.Destructive != nil {
		event.Destructive = job.Destructive.Len()
	}
	if job.Result != nil {
		event.ComponentFailures = len(job.Result.ComponentFailures)
		event.TestFailures = len(job.Result.TestFailures)
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		slog.Warn("Failed to publish deployment event", logfields.BuildID(job.BuildID), logfields.Error(err))
	}

	slog.Info("Deployment finished",
		logfields.BuildID(job.BuildID),
		logfields.JobRef(string(job.JobRef)),
		logfields.Status(string(job.Outcome)))
}

func (p *Pipeline) complete(ctx context.Context, job *Job, coverage float64) {
	state := historyState(job.Outcome)
	err := p.history.Complete(ctx, string(job.JobRef), state, coverage, job.RollbackPath)
	if stderrors.Is(err, history.ErrNotFound) {
		rec := history.Record{
			BuildID:      job.BuildID,
			JobRef:       string(job.JobRef),
			State:        state,
			TestLevel:    string(job.TestLevel),
			CheckOnly:    job.CheckOnly,
			RollbackPath: job.RollbackPath,
			Coverage:     coverage,
		}
		if job.Result != nil {
			rec.TestLevel = string(job.Result.TestLevel)
		}
		if job.ChangeSet != nil {
			rec.PreviousCommit = job.ChangeSet.Previous
			rec.CurrentCommit = job.ChangeSet.Current
		}
		err = p.history.Record(ctx, rec)
	}
	if err != nil {
		slog.Warn("Failed to update deployment history", logfields.JobRef(string(job.JobRef)), logfields.Error(err))
	}
}

func historyState(o Outcome) history.State {
	switch o {
	case OutcomeSucceeded:
		return history.StateSucceeded
	case OutcomeFailed:
		return history.StateFailed
	case OutcomeTimedOut:
		return history.StateTimedOut
	default:
		return history.StateError
	}
}
