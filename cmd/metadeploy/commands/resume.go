package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/pipeline"
)

// ResumeCmd implements the 'resume' command.
type ResumeCmd struct {
	JobRef     string `arg:"" name:"job-ref" help:"Reference printed when polling gave up"`
	Repo       string `short:"C" name:"repo" help:"Repository working directory" default:"."`
	JobName    string `name:"job-name" help:"Job name used in the rollback archive name" env:"JOB_NAME"`
	ReportFile string `name:"report" help:"Also write the result report to this file"`
}

func (r *ResumeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx, cfg, r.Repo, pipeline.StrategyFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	job, runErr := env.pipeline.Resume(ctx, deploy.JobReference(r.JobRef), pipeline.Request{JobName: r.JobName})
	if err := emitReport(job, r.ReportFile); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return outcomeError(job)
}
