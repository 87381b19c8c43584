package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Org      OrgConfig     `yaml:"org"`
	Deploy   DeployConfig  `yaml:"deploy"`
	Features FeatureConfig `yaml:"features"`
	Output   OutputConfig  `yaml:"output"`
	History  HistoryConfig `yaml:"history"`
	Notify   NotifyConfig  `yaml:"notify"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
	Git      GitConfig     `yaml:"git"`
}

// OrgConfig holds the credentials and login endpoint of the target org.
type OrgConfig struct {
	Username      string       `yaml:"username"`
	Password      string       `yaml:"password"`
	SecurityToken string       `yaml:"security_token,omitempty"`
	ServerURL     string       `yaml:"server_url,omitempty"` // login.salesforce.com or test.salesforce.com
	Proxy         *ProxyConfig `yaml:"proxy,omitempty"`
}

// ProxyConfig routes platform traffic through an HTTP(S) proxy.
type ProxyConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DeployConfig controls submission and status polling.
type DeployConfig struct {
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`
	TestLevel    TestLevel     `yaml:"test_level,omitempty"`
	TestRegex    string        `yaml:"test_regex,omitempty"`
	CheckOnly    bool          `yaml:"check_only,omitempty"`
	SourceRoot   string        `yaml:"source_root,omitempty"`
}

// FeatureConfig toggles optional pipeline stages.
type FeatureConfig struct {
	DeployAll      bool `yaml:"deploy_all,omitempty"`
	SkipRollback   bool `yaml:"skip_rollback,omitempty"`
	UpdateManifest bool `yaml:"update_manifest,omitempty"`
}

// OutputConfig represents where generated archives are written.
type OutputConfig struct {
	RollbackDir string `yaml:"rollback_dir,omitempty"`
}

// HistoryConfig enables the job reference ledger. An empty path disables it.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig enables deployment outcome events on NATS. An empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig enables a Prometheus textfile export after each run.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path,omitempty"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// GitConfig identifies the committer used when the manifest is written back.
type GitConfig struct {
	CommitterName  string `yaml:"committer_name,omitempty"`
	CommitterEmail string `yaml:"committer_email,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just note it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	// #nosec G304 -- config path is supplied by the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML content, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Org: OrgConfig{
			Username:      "${SF_USERNAME}",
			Password:      "${SF_PASSWORD}",
			SecurityToken: "${SF_SECURITY_TOKEN}",
			ServerURL:     DefaultServerURL,
		},
		Deploy: DeployConfig{
			PollInterval: DefaultPollInterval,
			MaxAttempts:  DefaultMaxAttempts,
			TestLevel:    TestLevelSpecified,
			TestRegex:    DefaultTestRegex,
			SourceRoot:   DefaultSourceRoot,
		},
		Output:  OutputConfig{RollbackDir: "sma"},
		History: HistoryConfig{Path: "sma/history.db"},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
