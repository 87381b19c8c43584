package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/manifest"
	"git.home.luguber.info/inful/metadeploy/internal/pipeline"
)

// newPrinter formats numbers for the locale named by LC_ALL or LANG.
func newPrinter() *message.Printer {
	return message.NewPrinter(localeTag())
}

func localeTag() language.Tag {
	for _, key := range []string{"LC_ALL", "LANG"} {
		raw := os.Getenv(key)
		if raw == "" || raw == "C" || raw == "POSIX" {
			continue
		}
		raw, _, _ = strings.Cut(raw, ".")
		if tag, err := language.Parse(raw); err == nil {
			return tag
		}
	}
	return language.English
}

// writeReport prints the human readable summary of a run.
func writeReport(w io.Writer, job *pipeline.Job, p *message.Printer) {
	fmt.Fprintf(w, "Build %s\n", job.BuildID)
	if job.ChangeSet != nil {
		if job.ChangeSet.Full() {
			p.Fprintf(w, "Deploying every tracked item at %s\n", short(job.ChangeSet.Current))
		} else {
			p.Fprintf(w, "Changes %s..%s: %d added, %d deleted, %d modified\n",
				short(job.ChangeSet.Previous), short(job.ChangeSet.Current),
				len(job.ChangeSet.Additions), len(job.ChangeSet.Deletions), len(job.ChangeSet.ModifiedNew))
		}
	}
	writeManifest(w, "Deploying", job.Deploy)
	writeManifest(w, "Deleting", job.Destructive)
	if len(job.Tests) > 0 {
		fmt.Fprintf(w, "Specified tests: %s\n", strings.Join(job.Tests, ", "))
	}
	if job.JobRef != "" {
		fmt.Fprintf(w, "Job reference: %s\n", job.JobRef)
	}
	if job.Result != nil {
		writeResult(w, job.Result, p)
	}
	if job.RollbackPath != "" {
		fmt.Fprintf(w, "Rollback archive: %s\n", job.RollbackPath)
	}
	if job.ManifestCommit != "" {
		fmt.Fprintf(w, "Updated %s in %s\n", job.ManifestPath, short(job.ManifestCommit))
	}
	fmt.Fprintf(w, "Outcome: %s\n", outcomeText(job.Outcome))
}

func writeManifest(w io.Writer, verb string, m *manifest.Manifest) {
	if m == nil || m.Len() == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", verb)
	for _, t := range m.Types {
		fmt.Fprintf(w, "  %s: %s\n", t.Name, strings.Join(t.Members, ", "))
	}
}

func writeResult(w io.Writer, r *deploy.Result, p *message.Printer) {
	if len(r.ComponentFailures) > 0 {
		fmt.Fprintln(w, "Component failures:")
		for _, f := range r.ComponentFailures {
			fmt.Fprintf(w, "  %s%s: %s\n", f.FileName, location(f), f.Problem)
		}
	}
	if r.TestLevel != config.TestLevelNone && len(r.TestFailures) > 0 {
		fmt.Fprintln(w, "Test failures:")
		for _, f := range r.TestFailures {
			fmt.Fprintf(w, "  %s.%s -- %s\n", f.QualifiedName(), f.Method, f.Message)
			if f.StackTrace != "" {
				fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(strings.TrimSpace(f.StackTrace), "\n", "\n    "))
			}
		}
	}
	if !r.Success || !r.RanTests() {
		return
	}
	if len(r.Coverage) > 0 {
		fmt.Fprintln(w, "Code coverage:")
		for _, c := range r.Coverage {
			p.Fprintf(w, "  %s -- %.2f%%\n", c.QualifiedName(), c.Percent())
		}
		p.Fprintf(w, "Total code coverage -- %.2f%%\n", r.TotalCoverage)
	}
	if len(r.CoverageWarnings) > 0 {
		fmt.Fprintln(w, "Code coverage warnings:")
		for _, cw := range r.CoverageWarnings {
			if name := cw.QualifiedName(); name != "" {
				fmt.Fprintf(w, "  %s -- %s\n", name, cw.Message)
				continue
			}
			fmt.Fprintf(w, "  %s\n", cw.Message)
		}
	}
}

// location renders "(line,column)" or, when no line is known and the full
// name differs from the file name, "(fullName)".
func location(f deploy.ComponentFailure) string {
	if f.Line != 0 {
		return fmt.Sprintf("(%d,%d)", f.Line, f.Column)
	}
	if f.FullName != "" && f.FullName != f.FileName {
		return "(" + f.FullName + ")"
	}
	return ""
}

func outcomeText(o pipeline.Outcome) string {
	switch o {
	case pipeline.OutcomeSucceeded:
		return "deployment succeeded"
	case pipeline.OutcomeFailed:
		return "deployment failed"
	case pipeline.OutcomeTimedOut:
		return "deployment still running; resume with the job reference"
	case pipeline.OutcomeNoChanges:
		return "nothing to deploy"
	default:
		return "pipeline error"
	}
}

// outcomeError maps unsuccessful outcomes to classified errors so the process
// exit code reflects them.
func outcomeError(job *pipeline.Job) error {
	switch job.Outcome {
	case pipeline.OutcomeFailed:
		b := errors.DeploymentFailure("deployment failed").WithContext("job_ref", string(job.JobRef))
		if job.Result != nil {
			b = b.WithContext("component_failures", len(job.Result.ComponentFailures)).
				WithContext("test_failures", len(job.Result.TestFailures))
		}
		return b.Build()
	case pipeline.OutcomeTimedOut:
		return errors.NewError(errors.CategoryPollTimeout, "deployment still running").
			WithContext("job_ref", string(job.JobRef)).
			UserAction().
			Build()
	default:
		return nil
	}
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
