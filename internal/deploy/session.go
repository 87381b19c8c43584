package deploy

import (
	"context"
	stderrors "errors"
	"log/slog"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metrics"
	"git.home.luguber.info/inful/metadeploy/internal/retry"
)

// State is a Session lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateSubmitted
	StatePolling
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// detailCadence: full detail is requested on every third status check.
const detailCadence = 3

// Session drives a single deployment job. It is not safe for concurrent use.
type Session struct {
	auth     Authenticator
	api      MetadataAPI
	policy   retry.Policy
	sleep    retry.SleepFunc
	recorder metrics.Recorder

	state State
	job   JobReference
	level config.TestLevel
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPolicy sets the poll interval and attempt bound.
func WithPolicy(p retry.Policy) SessionOption { return func(s *Session) { s.policy = p } }

// WithSleep replaces the wall-clock wait between status checks.
func WithSleep(fn retry.SleepFunc) SessionOption { return func(s *Session) { s.sleep = fn } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewSession creates an unauthenticated session.
func NewSession(auth Authenticator, opts ...SessionOption) *Session {
	s := &Session{
		auth:     auth,
		policy:   retry.DefaultPolicy(),
		sleep:    retry.Sleep,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Job returns the reference of the submitted job, if any.
func (s *Session) Job() JobReference { return s.job }

// Login authenticates once. Failure is a fatal submission error.
func (s *Session) Login(ctx context.Context, creds Credentials) error {
	if s.state != StateUnauthenticated {
		return s.transitionError("login")
	}
	api, err := s.auth.Login(ctx, creds)
	if err != nil {
		return errors.SubmissionError("authentication failed").
			WithCause(err).
			WithContext("username", creds.Username).
			Build()
	}
	s.api = api
	s.state = StateAuthenticated
	slog.Debug("Authenticated", slog.String("username", creds.Username))
	return nil
}

// Submit sends the archive and returns the job reference. It is never retried.
func (s *Session) Submit(ctx context.Context, zip []byte, opts Options) (JobReference, error) {
	if s.state != StateAuthenticated {
		return "", s.transitionError("submit")
	}
	wire := opts.wireOptions()
	if opts.TestLevel == config.TestLevelSpecified && wire.TestLevel == config.TestLevelNone {
		slog.Warn("No tests selected for RunSpecifiedTests; submitting with NoTestRun")
	}
	job, err := s.api.Deploy(ctx, zip, wire)
	if err != nil {
		return "", errors.SubmissionError("deployment submission failed").WithCause(err).Build()
	}
	s.job = job
	s.level = wire.TestLevel
	s.state = StateSubmitted
	slog.Info("Deployment submitted",
		logfields.JobRef(string(job)),
		logfields.TestLevel(string(wire.TestLevel)),
		slog.Bool("check_only", wire.CheckOnly),
		logfields.Count(len(wire.RunTests)))
	return job, nil
}

// EffectiveLevel is the test level the submitted job actually runs with. It
// differs from the requested level after a RunSpecifiedTests downgrade or when
// the level was left to the platform.
func (s *Session) EffectiveLevel() config.TestLevel { return s.level }

// Resume adopts a job submitted earlier (possibly by another process) so it
// can be polled without resubmitting.
func (s *Session) Resume(job JobReference, level config.TestLevel) error {
	if s.state != StateAuthenticated {
		return s.transitionError("resume")
	}
	s.job = job
	s.level = level
	s.state = StateSubmitted
	return nil
}

// Poll waits for the job to finish. A job that never completes yields a
// *PollTimeoutError after exactly MaxAttempts waits. A job that completes
// unsuccessfully is a Result with Success false, except when the platform
// reports an error status code, which is a submission error.
func (s *Session) Poll(ctx context.Context) (*Result, error) {
	if s.state != StateSubmitted {
		return nil, s.transitionError("poll")
	}
	s.state = StatePolling

	var final *Status
	var detailed bool
	err := s.policy.Poll(ctx, s.sleep, func(attempt int) (bool, error) {
		detailed = attempt%detailCadence == 0
		s.recorder.IncPollAttempt(detailed)
		st, err := s.api.CheckDeployStatus(ctx, s.job, detailed)
		if err != nil {
			return false, err
		}
		slog.Debug("Deployment status",
			logfields.JobRef(string(s.job)),
			logfields.Attempt(attempt),
			logfields.Status(st.State),
			slog.Int("components_done", st.ComponentsDone),
			slog.Int("components_total", st.ComponentsTotal),
			slog.Int("tests_completed", st.TestsCompleted),
			slog.Int("tests_total", st.TestsTotal))
		if !st.Done {
			return false, nil
		}
		final = st
		return true, nil
	})
	switch {
	case stderrors.Is(err, retry.ErrExhausted):
		s.state = StateTimedOut
		slog.Warn("Deployment still running; resume tracking with the job reference",
			logfields.JobRef(string(s.job)),
			slog.Int("attempts", s.policy.MaxAttempts))
		return nil, &PollTimeoutError{Job: s.job, Attempts: s.policy.MaxAttempts}
	case err != nil:
		s.state = StateFailed
		return nil, err
	}

	if !final.Success && final.ErrorStatusCode != "" {
		s.state = StateFailed
		return nil, errors.SubmissionError("platform reported an error status").
			WithContext("job_ref", string(s.job)).
			WithContext("status_code", final.ErrorStatusCode).
			WithContext("message", final.ErrorMessage).
			Build()
	}

	if !detailed || final.Details == nil {
		s.recorder.IncPollAttempt(true)
		st, err := s.api.CheckDeployStatus(ctx, s.job, true)
		if err != nil {
			s.state = StateFailed
			return nil, err
		}
		final = st
	}

	result := NewResult(final, s.level)
	if result.Success {
		s.state = StateSucceeded
	} else {
		s.state = StateFailed
	}
	if result.RanTests() {
		s.recorder.SetCoverage(result.TotalCoverage)
	}
	slog.Info("Deployment finished",
		logfields.JobRef(string(s.job)),
		logfields.Status(final.State),
		slog.Bool("success", result.Success),
		slog.Int("component_failures", len(result.ComponentFailures)),
		slog.Int("test_failures", len(result.TestFailures)))
	return result, nil
}

// Deploy submits the archive and polls it to completion.
func (s *Session) Deploy(ctx context.Context, zip []byte, opts Options) (*Result, error) {
	if _, err := s.Submit(ctx, zip, opts); err != nil {
		return nil, err
	}
	return s.Poll(ctx)
}

func (s *Session) transitionError(op string) error {
	return errors.InternalError("invalid session state for "+op).
		WithContext("state", s.state.String()).
		Build()
}
