package config

import (
	"strings"
	"time"
)

const (
	DefaultServerURL    = "https://login.salesforce.com"
	DefaultPollInterval = 30 * time.Second
	DefaultMaxAttempts  = 200
	DefaultTestRegex    = ".*[T|t]est.*"
	DefaultSourceRoot   = "src/"
	DefaultSubject      = "metadeploy.deployments"
	DefaultCommitter    = "metadeploy"
)

// applyDefaults fills unset fields. Test level normalization happens in Validate
// so that an unknown value is reported instead of silently replaced.
func applyDefaults(cfg *Config) {
	if cfg.Org.ServerURL == "" {
		cfg.Org.ServerURL = DefaultServerURL
	}
	cfg.Org.ServerURL = strings.TrimSuffix(cfg.Org.ServerURL, "/")

	if cfg.Deploy.PollInterval <= 0 {
		cfg.Deploy.PollInterval = DefaultPollInterval
	}
	if cfg.Deploy.MaxAttempts <= 0 {
		cfg.Deploy.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Deploy.TestRegex == "" {
		cfg.Deploy.TestRegex = DefaultTestRegex
	}
	if cfg.Deploy.SourceRoot == "" {
		cfg.Deploy.SourceRoot = DefaultSourceRoot
	}
	if !strings.HasSuffix(cfg.Deploy.SourceRoot, "/") {
		cfg.Deploy.SourceRoot += "/"
	}

	if cfg.Notify.NATSURL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultSubject
	}

	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))

	if cfg.Git.CommitterName == "" {
		cfg.Git.CommitterName = DefaultCommitter
	}
	if cfg.Git.CommitterEmail == "" {
		cfg.Git.CommitterEmail = DefaultCommitter + "@localhost"
	}
}
