package deploy

import (
	"context"

	"git.home.luguber.info/inful/metadeploy/internal/config"
)

// JobReference identifies a remote asynchronous deployment.
type JobReference string

// Credentials authenticate against the platform.
type Credentials struct {
	Username      string
	Password      string
	SecurityToken string
}

// Authenticator exchanges credentials for a metadata endpoint bound to a session.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (MetadataAPI, error)
}

// MetadataAPI is the subset of the remote Metadata API a Session needs.
type MetadataAPI interface {
	Deploy(ctx context.Context, zip []byte, opts WireOptions) (JobReference, error)
	CheckDeployStatus(ctx context.Context, job JobReference, includeDetails bool) (*Status, error)
}

// WireOptions are the deploy options sent with a submission.
// An empty TestLevel leaves the choice to the platform.
type WireOptions struct {
	CheckOnly       bool
	RollbackOnError bool
	SinglePackage   bool
	PerformRetrieve bool
	TestLevel       config.TestLevel
	RunTests        []string
}

// Status is one answer to a status check.
type Status struct {
	ID              JobReference
	Done            bool
	Success         bool
	CheckOnly       bool
	State           string // Queued, InProgress, Succeeded, Failed, Canceled...
	ErrorStatusCode string
	ErrorMessage    string

	ComponentsTotal int
	ComponentsDone  int
	ComponentErrors int
	TestsTotal      int
	TestsCompleted  int
	TestErrors      int
	StateDetail     string
	Details         *Details // nil unless requested
}

// Details carries the diagnostic payload of a status check.
type Details struct {
	ComponentFailures []ComponentFailure
	RunTestResult     RunTestResult
}

// RunTestResult is the test section of Details.
type RunTestResult struct {
	NumTestsRun          int
	NumFailures          int
	Failures             []TestFailure
	CodeCoverage         []ClassCoverage
	CodeCoverageWarnings []CoverageWarning
}

// ComponentFailure describes one component the platform rejected.
type ComponentFailure struct {
	FileName      string
	FullName      string
	ComponentType string
	Line          int // 0 when unknown
	Column        int
	Problem       string
}

// TestFailure describes one failing test method.
type TestFailure struct {
	Namespace  string
	Name       string
	Method     string
	Message    string
	StackTrace string
}

// QualifiedName is the namespace-prefixed class name.
func (f TestFailure) QualifiedName() string { return qualify(f.Namespace, f.Name) }

// ClassCoverage is the coverage reported for one class or trigger.
type ClassCoverage struct {
	Namespace string
	Name      string
	Locations int
	Uncovered int
}

// QualifiedName is the namespace-prefixed class name.
func (c ClassCoverage) QualifiedName() string { return qualify(c.Namespace, c.Name) }

// Percent is the class's own coverage; zero when it has no locations.
func (c ClassCoverage) Percent() float64 {
	if c.Locations <= 0 {
		return 0
	}
	return coverage(c.Uncovered, c.Locations)
}

// CoverageWarning is a coverage requirement the platform flagged.
type CoverageWarning struct {
	Namespace string
	Name      string // empty for org-wide warnings
	Message   string
}

// QualifiedName is the namespace-prefixed class name.
func (w CoverageWarning) QualifiedName() string { return qualify(w.Namespace, w.Name) }

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func coverage(uncovered, total int) float64 {
	return (1 - float64(uncovered)/float64(total)) * 100
}
