// Package history keeps a ledger of submitted deployments so that a job that
// outlived its poll budget can be resumed by reference.
package history

import (
	"context"
	stderrors "errors"
	"time"
)

// State of a recorded deployment.
type State string

const (
	StateSubmitted State = "submitted"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateError     State = "error"
)

// ErrNotFound is returned when no deployment matches a job reference.
var ErrNotFound = stderrors.New("deployment not found")

// Record is one ledger row.
type Record struct {
	BuildID        string
	JobRef         string
	State          State
	TestLevel      string
	CheckOnly      bool
	PreviousCommit string
	CurrentCommit  string
	RollbackPath   string
	Coverage       float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists deployment records.
type Store interface {
	// Record inserts a submitted deployment.
	Record(ctx context.Context, r Record) error

	// Complete moves a deployment to a terminal state.
	Complete(ctx context.Context, jobRef string, state State, coverage float64, rollbackPath string) error

	// Get returns the deployment for a job reference.
	Get(ctx context.Context, jobRef string) (*Record, error)

	// Recent returns up to limit deployments, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close closes the store and releases resources.
	Close() error
}
