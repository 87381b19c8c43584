package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// OutcomeLabel enumerates terminal deployment outcomes.
type OutcomeLabel string

const (
	OutcomeSucceeded OutcomeLabel = "succeeded"
	OutcomeFailed    OutcomeLabel = "failed"
	OutcomeTimedOut  OutcomeLabel = "timed_out"
	OutcomeError     OutcomeLabel = "error"
	OutcomeNoChanges OutcomeLabel = "no_changes"
)

// Recorder defines observability hooks for pipeline stages and remote jobs.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncPollAttempt(withDetails bool)
	IncDroppedItem(reason string)
	IncDeployOutcome(outcome OutcomeLabel)
	SetCoverage(percent float64)
	SetArchiveBytes(kind string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncPollAttempt(bool)                        {}
func (NoopRecorder) IncDroppedItem(string)                      {}
func (NoopRecorder) IncDeployOutcome(OutcomeLabel)              {}
func (NoopRecorder) SetCoverage(float64)                        {}
func (NoopRecorder) SetArchiveBytes(string, int)                {}
