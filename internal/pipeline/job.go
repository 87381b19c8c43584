package pipeline

import (
	"time"

	"git.home.luguber.info/inful/metadeploy/internal/archive"
	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/metrics"
	"git.home.luguber.info/inful/metadeploy/internal/rollback"
)

// Outcome is the terminal state of a run that did not break.
type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeNoChanges Outcome = "no_changes"
	OutcomeError     Outcome = "error"
)

func (o Outcome) label() metrics.OutcomeLabel {
	switch o {
	case OutcomeSucceeded:
		return metrics.OutcomeSucceeded
	case OutcomeFailed:
		return metrics.OutcomeFailed
	case OutcomeTimedOut:
		return metrics.OutcomeTimedOut
	case OutcomeNoChanges:
		return metrics.OutcomeNoChanges
	default:
		return metrics.OutcomeError
	}
}

// Request carries the values supplied by the orchestrator for one run.
type Request struct {
	BuildID string
	JobName string // prefix of the rollback archive name

	// PreviousRef is the last deployed commit. Empty means a full deployment.
	PreviousRef string
	// CurrentRef defaults to HEAD.
	CurrentRef string
	// TargetBranch switches to pull request mode: the diff base is
	// origin/<TargetBranch> and PreviousRef is ignored.
	TargetBranch string
}

// Job owns everything produced during one run.
type Job struct {
	Request

	ChangeSet   *git.ChangeSet
	Deploy      *manifest.Manifest
	Destructive *manifest.Manifest
	Items       []metadata.Item
	Dropped     []error

	// CheckOnly is taken from the strategy on Run and from the ledger on Resume.
	CheckOnly bool
	TestLevel config.TestLevel
	Tests     []string

	Archive *archive.Archive
	JobRef  deploy.JobReference
	Result  *deploy.Result

	Rollback     *rollback.Package
	RollbackPath string

	ManifestPath   string
	ManifestCommit string

	Outcome        Outcome
	StageDurations map[StageName]time.Duration

	session  *deploy.Session
	snapshot *git.Snapshot
	done     bool
}

func newJob(req Request) *Job {
	if req.CurrentRef == "" {
		req.CurrentRef = "HEAD"
	}
	return &Job{Request: req, StageDurations: make(map[StageName]time.Duration)}
}

// finish sets a terminal outcome; remaining stages are skipped.
func (j *Job) finish(o Outcome) {
	j.Outcome = o
	j.done = true
}

// Full reports whether the whole tree is being deployed.
func (j *Job) Full() bool { return j.ChangeSet != nil && j.ChangeSet.Full() }
