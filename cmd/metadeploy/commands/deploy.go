package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/pipeline"
)

// DeployCmd implements the 'deploy' command.
type DeployCmd struct {
	Repo         string `short:"C" name:"repo" help:"Repository working directory" default:"."`
	Previous     string `name:"previous" help:"Last deployed commit; empty deploys every tracked item" env:"GIT_PREVIOUS_SUCCESSFUL_COMMIT"`
	Current      string `name:"current" help:"Commit to deploy" default:"HEAD" env:"GIT_COMMIT"`
	TargetBranch string `name:"target-branch" help:"Pull request mode: diff against origin/<branch>" env:"CHANGE_TARGET"`
	BuildID      string `name:"build-id" help:"Build identifier used in the rollback archive name" env:"BUILD_NUMBER"`
	JobName      string `name:"job-name" help:"Job name used in the rollback archive name" env:"JOB_NAME"`
	TestLevel    string `name:"test-level" help:"Override deploy.test_level (none|relevant|local|all)"`
	CheckOnly    bool   `name:"check-only" help:"Validate the archive without saving changes"`
	DeployAll    bool   `name:"deploy-all" help:"Deploy every tracked item"`
	ReportFile   string `name:"report" help:"Also write the result report to this file"`
}

func (d *DeployCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	strategy, err := d.strategy(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx, cfg, d.Repo, strategy)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	job, runErr := env.pipeline.Run(ctx, pipeline.Request{
		BuildID:      d.BuildID,
		JobName:      d.JobName,
		PreviousRef:  d.Previous,
		CurrentRef:   d.Current,
		TargetBranch: d.TargetBranch,
	})
	if err := emitReport(job, d.ReportFile); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return outcomeError(job)
}

func (d *DeployCmd) strategy(cfg *config.Config) (pipeline.Strategy, error) {
	s := pipeline.StrategyFromConfig(cfg)
	if d.TestLevel != "" {
		level, err := config.ParseTestLevel(d.TestLevel)
		if err != nil {
			return s, errors.ValidationError("invalid --test-level").
				WithCause(err).
				WithContext("value", d.TestLevel).
				Build()
		}
		s.TestLevel = level
	}
	s.CheckOnly = s.CheckOnly || d.CheckOnly
	s.DeployAll = s.DeployAll || d.DeployAll
	return s, nil
}

func emitReport(job *pipeline.Job, reportFile string) error {
	if job == nil {
		return nil
	}
	p := newPrinter()
	writeReport(os.Stdout, job, p)
	if reportFile == "" {
		return nil
	}
	// #nosec G304 -- report path is supplied by the operator
	f, err := os.Create(reportFile)
	if err != nil {
		return errors.FileSystemError("create report file").WithCause(err).WithContext("path", reportFile).Build()
	}
	writeReport(f, job, p)
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
