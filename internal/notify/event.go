// Package notify publishes deployment outcomes to NATS for downstream consumers
// such as chat bots and audit dashboards.
package notify

import "time"

// DeploymentEvent describes the end of one pipeline run.
type DeploymentEvent struct {
	BuildID   string `json:"build_id"`
	JobRef    string `json:"job_ref,omitempty"`
	Outcome   string `json:"outcome"`
	TestLevel string `json:"test_level,omitempty"`
	CheckOnly bool   `json:"check_only"`

	PreviousCommit string `json:"previous_commit,omitempty"`
	CurrentCommit  string `json:"current_commit,omitempty"`

	Deployed    int `json:"deployed"`    // members in package.xml
	Destructive int `json:"destructive"` // members in destructiveChanges.xml

	ComponentFailures int     `json:"component_failures"`
	TestFailures      int     `json:"test_failures"`
	Coverage          float64 `json:"coverage,omitempty"`
	RollbackPath      string  `json:"rollback_path,omitempty"`
	ManifestCommit    string  `json:"manifest_commit,omitempty"`
	Error             string  `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
