package deploy

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/retry"
)

type statusCall struct {
	job     JobReference
	details bool
}

// fakeAPI completes after doneAfter status checks (never when zero).
type fakeAPI struct {
	loginErr  error
	deployErr error
	job       JobReference
	doneAfter int
	final     Status
	details   *Details
	checkErr  error

	submitted []WireOptions
	calls     []statusCall
}

func (f *fakeAPI) Login(context.Context, Credentials) (MetadataAPI, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f, nil
}

func (f *fakeAPI) Deploy(_ context.Context, _ []byte, opts WireOptions) (JobReference, error) {
	f.submitted = append(f.submitted, opts)
	if f.deployErr != nil {
		return "", f.deployErr
	}
	return f.job, nil
}

func (f *fakeAPI) CheckDeployStatus(_ context.Context, job JobReference, details bool) (*Status, error) {
	f.calls = append(f.calls, statusCall{job: job, details: details})
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	if f.doneAfter == 0 || len(f.calls) < f.doneAfter {
		return &Status{ID: job, State: "InProgress"}, nil
	}
	st := f.final
	st.ID = job
	st.Done = true
	if details {
		st.Details = f.details
	}
	return &st, nil
}

type countingSleep struct{ n int }

func (c *countingSleep) Sleep(context.Context, time.Duration) error {
	c.n++
	return nil
}

func newTestSession(api *fakeAPI, attempts int, sleep *countingSleep) *Session {
	return NewSession(api,
		WithPolicy(retry.NewPolicy(time.Second, attempts)),
		WithSleep(sleep.Sleep))
}

func login(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Login(context.Background(), Credentials{Username: "ci@example.com"}))
	require.Equal(t, StateAuthenticated, s.State())
}

func TestPollTimeoutCarriesJobReference(t *testing.T) {
	api := &fakeAPI{job: "0Af000000000001"}
	sleep := &countingSleep{}
	s := newTestSession(api, 5, sleep)
	login(t, s)

	job, err := s.Submit(context.Background(), []byte("zip"), Options{})
	require.NoError(t, err)

	res, err := s.Poll(context.Background())
	require.Nil(t, res)

	var timeout *PollTimeoutError
	require.True(t, stderrors.As(err, &timeout))
	require.Equal(t, job, timeout.Job)
	require.Equal(t, 5, timeout.Attempts)
	require.Equal(t, 5, sleep.n)
	require.Len(t, api.calls, 5)
	require.Equal(t, StateTimedOut, s.State())
	require.True(t, errors.HasCategory(err, errors.CategoryPollTimeout))
}

func TestPollFetchesDetailsEveryThirdAttempt(t *testing.T) {
	api := &fakeAPI{job: "0Af2", doneAfter: 4, final: Status{Success: true, State: "Succeeded"}, details: &Details{}}
	s := newTestSession(api, 10, &countingSleep{})
	login(t, s)

	res, err := s.Deploy(context.Background(), []byte("zip"), Options{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, StateSucceeded, s.State())

	// attempts 1..4, detail on 3, then a detailed fetch because 4 observed completion without it
	require.Equal(t, []bool{false, false, true, false, true}, detailFlags(api.calls))
}

func TestPollCompletionOnDetailedAttemptNeedsNoExtraFetch(t *testing.T) {
	api := &fakeAPI{job: "0Af3", doneAfter: 3, final: Status{Success: true}, details: &Details{}}
	s := newTestSession(api, 10, &countingSleep{})
	login(t, s)

	_, err := s.Deploy(context.Background(), nil, Options{})
	require.NoError(t, err)
	require.Equal(t, []bool{false, false, true}, detailFlags(api.calls))
}

func TestPollFailedDeploymentIsAResult(t *testing.T) {
	api := &fakeAPI{
		job:       "0Af4",
		doneAfter: 1,
		final:     Status{Success: false, State: "Failed"},
		details: &Details{
			ComponentFailures: []ComponentFailure{{FileName: "classes/Foo.cls", Line: 3, Column: 7, Problem: "Unexpected token"}},
			RunTestResult: RunTestResult{
				Failures: []TestFailure{{Name: "FooTest", Method: "testIt", Message: "assert failed", StackTrace: "Class.FooTest.testIt: line 5"}},
			},
		},
	}
	s := newTestSession(api, 3, &countingSleep{})
	login(t, s)

	res, err := s.Deploy(context.Background(), nil, Options{TestLevel: config.TestLevelLocal, ContainsApex: true})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, StateFailed, s.State())
	require.Len(t, res.ComponentFailures, 1)
	require.Equal(t, "FooTest", res.TestFailures[0].QualifiedName())
	require.True(t, res.RanTests())
}

func TestPollErrorStatusCodeIsSubmissionError(t *testing.T) {
	api := &fakeAPI{job: "0Af5", doneAfter: 1, final: Status{Success: false, ErrorStatusCode: "INVALID_CROSS_REFERENCE_KEY", ErrorMessage: "bad"}}
	s := newTestSession(api, 3, &countingSleep{})
	login(t, s)

	_, err := s.Deploy(context.Background(), nil, Options{})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategorySubmission))
}

func TestPollPropagatesTransientErrors(t *testing.T) {
	api := &fakeAPI{job: "0Af6", checkErr: stderrors.New("connection reset")}
	s := newTestSession(api, 3, &countingSleep{})
	login(t, s)

	_, err := s.Deploy(context.Background(), nil, Options{})
	require.ErrorIs(t, err, api.checkErr)
	require.Len(t, api.submitted, 1, "submission must not be repeated")
}

func TestLoginFailureIsSubmissionError(t *testing.T) {
	s := NewSession(&fakeAPI{loginErr: stderrors.New("INVALID_LOGIN")})
	err := s.Login(context.Background(), Credentials{Username: "u"})
	require.True(t, errors.HasCategory(err, errors.CategorySubmission))
	require.Equal(t, StateUnauthenticated, s.State())
}

func TestSubmitFailureIsSubmissionError(t *testing.T) {
	api := &fakeAPI{deployErr: stderrors.New("503")}
	s := NewSession(api)
	login(t, s)
	_, err := s.Submit(context.Background(), nil, Options{})
	require.True(t, errors.HasCategory(err, errors.CategorySubmission))
}

func TestOperationsOutOfOrder(t *testing.T) {
	s := NewSession(&fakeAPI{})
	_, err := s.Submit(context.Background(), nil, Options{})
	require.True(t, errors.HasCategory(err, errors.CategoryInternal))
	_, err = s.Poll(context.Background())
	require.Error(t, err)
}

func TestResumePollsExistingJob(t *testing.T) {
	api := &fakeAPI{doneAfter: 2, final: Status{Success: true}, details: &Details{}}
	s := newTestSession(api, 5, &countingSleep{})
	login(t, s)

	require.NoError(t, s.Resume("0AfRESUMED", config.TestLevelNone))
	res, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, JobReference("0AfRESUMED"), res.Job)
	require.Empty(t, api.submitted)
	for _, c := range api.calls {
		require.Equal(t, JobReference("0AfRESUMED"), c.job)
	}
}

func detailFlags(calls []statusCall) []bool {
	out := make([]bool, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.details)
	}
	return out
}

func TestEffectiveLevelAfterDowngrade(t *testing.T) {
	api := &fakeAPI{doneAfter: 1, final: Status{Success: true}, details: &Details{}}
	s := newTestSession(api, 3, &countingSleep{})
	login(t, s)

	_, err := s.Submit(context.Background(), []byte("zip"), Options{TestLevel: config.TestLevelSpecified})
	require.NoError(t, err)
	require.Equal(t, config.TestLevelNone, s.EffectiveLevel())

	res, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, config.TestLevelNone, res.TestLevel)
	require.False(t, res.RanTests())
}
