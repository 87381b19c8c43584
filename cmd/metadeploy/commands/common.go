package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/metadeploy/internal/config"
	"git.home.luguber.info/inful/metadeploy/internal/deploy"
	"git.home.luguber.info/inful/metadeploy/internal/git"
	"git.home.luguber.info/inful/metadeploy/internal/history"
	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/metrics"
	"git.home.luguber.info/inful/metadeploy/internal/notify"
	"git.home.luguber.info/inful/metadeploy/internal/pipeline"
	"git.home.luguber.info/inful/metadeploy/internal/platform"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"metadeploy.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Deploy   DeployCmd   `cmd:"" help:"Deploy the metadata changed between two commits"`
	Resume   ResumeCmd   `cmd:"" help:"Resume tracking a deployment that outlived the poll budget"`
	Classify ClassifyCmd `cmd:"" help:"Show the metadata type of repository paths"`
	History  HistoryCmd  `cmd:"" help:"List recorded deployments"`
	Inspect  InspectCmd  `cmd:"" help:"List the entries and manifests of a deployment archive"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// configureLogging replaces the default logger once the config file is known.
// The -v flag always wins over the configured level.
func configureLogging(cfg config.LoggingConfig, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Logging, root.Verbose)
	return cfg, nil
}

// environment holds the collaborators shared by deploy and resume.
type environment struct {
	pipeline  *pipeline.Pipeline
	history   history.Store
	publisher notify.Publisher
	recorder  *metrics.PrometheusRecorder
	cfg       *config.Config
}

func newEnvironment(ctx context.Context, cfg *config.Config, repoDir string, strategy pipeline.Strategy) (*environment, error) {
	table, err := metadata.LoadTable()
	if err != nil {
		return nil, err
	}
	classifier := metadata.NewClassifier(table)

	resolver, err := git.Open(repoDir, cfg.Deploy.SourceRoot)
	if err != nil {
		return nil, err
	}

	client, err := platform.NewClient(cfg.Org.ServerURL, classifier.APIVersion(), cfg.Org.Proxy)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, recorder: metrics.NewPrometheusRecorder(nil)}
	opts := []pipeline.Option{pipeline.WithRecorder(env.recorder)}

	if cfg.History.Path != "" {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		env.history = store
		opts = append(opts, pipeline.WithHistory(store))
	}

	pub, err := notify.NewPublisher(ctx, cfg.Notify)
	if err != nil {
		slog.Warn("Deployment events disabled", logfields.Error(err))
		pub = notify.NoopPublisher{}
	}
	env.publisher = pub
	opts = append(opts, pipeline.WithPublisher(pub))

	creds := deploy.Credentials{
		Username:      cfg.Org.Username,
		Password:      cfg.Org.Password,
		SecurityToken: cfg.Org.SecurityToken,
	}
	p, err := pipeline.New(resolver, classifier, client, creds, strategy, opts...)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	env.pipeline = p
	return env, nil
}

// Close flushes metrics and releases the ledger and broker connection.
func (e *environment) Close() error {
	if path := e.cfg.Metrics.TextfilePath; path != "" {
		if err := metrics.WriteTextfile(path, e.recorder.Registry()); err != nil {
			slog.Warn("Failed to write metrics textfile", logfields.Path(path), logfields.Error(err))
		}
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			slog.Warn("Failed to close event publisher", logfields.Error(err))
		}
	}
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			return fmt.Errorf("close history: %w", err)
		}
	}
	return nil
}
