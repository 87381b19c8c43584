package pipeline

import (
	"path/filepath"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/retry"
)

// DefaultRollbackDir is used when no rollback directory is configured.
const DefaultRollbackDir = "sma"

// Strategy selects the optional stages and submission options of a run.
type Strategy struct {
	// DeployAll deploys every tracked path, with RunLocalTests and no
	// destructive manifest or rollback.
	DeployAll bool
	CheckOnly bool

	TestLevel   config.TestLevel
	TestPattern string

	Rollback    bool
	RollbackDir string

	UpdateManifest bool
	Committer      git.Committer

	Policy retry.Policy
}

// StrategyFromConfig derives a Strategy from loaded configuration.
func StrategyFromConfig(cfg *config.Config) Strategy {
	dir := cfg.Output.RollbackDir
	if dir == "" {
		dir = DefaultRollbackDir
	}
	return Strategy{
		DeployAll:      cfg.Features.DeployAll,
		CheckOnly:      cfg.Deploy.CheckOnly,
		TestLevel:      cfg.Deploy.TestLevel,
		TestPattern:    cfg.Deploy.TestRegex,
		Rollback:       !cfg.Features.SkipRollback,
		RollbackDir:    filepath.Clean(dir),
		UpdateManifest: cfg.Features.UpdateManifest,
		Committer:      git.Committer{Name: cfg.Git.CommitterName, Email: cfg.Git.CommitterEmail},
		Policy:         retry.NewPolicy(cfg.Deploy.PollInterval, cfg.Deploy.MaxAttempts),
	}
}
