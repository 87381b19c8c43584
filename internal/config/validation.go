package config

import (
	"net/url"
	"regexp"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

// Validate checks the configuration after defaults have been applied.
func Validate(cfg *Config) error {
	if cfg.Org.Username == "" {
		return errors.ConfigError("org.username is required").Build()
	}
	if u, err := url.Parse(cfg.Org.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ConfigError("org.server_url must be an absolute URL").
			WithContext("server_url", cfg.Org.ServerURL).
			WithCause(err).
			Build()
	}
	if cfg.Org.Proxy != nil && cfg.Org.Proxy.URL != "" {
		if _, err := url.Parse(cfg.Org.Proxy.URL); err != nil {
			return errors.ConfigError("org.proxy.url is invalid").WithCause(err).Build()
		}
	}

	level, err := ParseTestLevel(string(cfg.Deploy.TestLevel))
	if err != nil {
		return errors.ConfigError("deploy.test_level is invalid").WithCause(err).Build()
	}
	cfg.Deploy.TestLevel = level

	if _, err := regexp.Compile(cfg.Deploy.TestRegex); err != nil {
		return errors.ConfigError("deploy.test_regex does not compile").
			WithContext("test_regex", cfg.Deploy.TestRegex).
			WithCause(err).
			Build()
	}
	if cfg.Deploy.MaxAttempts < 1 {
		return errors.ConfigError("deploy.max_attempts must be positive").Build()
	}
	return nil
}
