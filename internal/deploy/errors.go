package deploy

import (
	"fmt"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

// PollTimeoutError reports a job still running after the last permitted
// status check. The job keeps running remotely; Job can be used to resume.
type PollTimeoutError struct {
	Job      JobReference
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("deployment %s still running after %d status checks", e.Job, e.Attempts)
}

// Unwrap exposes the classified form so exit codes and logging pick it up.
func (e *PollTimeoutError) Unwrap() error {
	return errors.NewError(errors.CategoryPollTimeout, "deployment polling timed out").
		WithSeverity(errors.SeverityError).
		UserAction().
		WithContext("job_ref", string(e.Job)).
		WithContext("attempts", e.Attempts).
		Build()
}
