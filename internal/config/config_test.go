package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("org:\n  username: ci@example.com\n  password: secret\n"))
	require.NoError(t, err)

	require.Equal(t, DefaultServerURL, cfg.Org.ServerURL)
	require.Equal(t, DefaultPollInterval, cfg.Deploy.PollInterval)
	require.Equal(t, DefaultMaxAttempts, cfg.Deploy.MaxAttempts)
	require.Equal(t, DefaultTestRegex, cfg.Deploy.TestRegex)
	require.Equal(t, "src/", cfg.Deploy.SourceRoot)
	require.Equal(t, TestLevelNone, cfg.Deploy.TestLevel)
	require.Equal(t, LogLevelInfo, cfg.Logging.Level)
	require.Equal(t, LogFormatText, cfg.Logging.Format)
	require.Equal(t, DefaultCommitter, cfg.Git.CommitterName)
}

func TestParseExplicitValues(t *testing.T) {
	raw := `
org:
  username: ci@example.com
  server_url: https://test.salesforce.com/
  proxy:
    url: http://proxy.local:3128
deploy:
  poll_interval: 5s
  max_attempts: 12
  test_level: relevant
  source_root: force-app
notify:
  nats_url: nats://127.0.0.1:4222
logging:
  level: DEBUG
  format: json
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.Equal(t, "https://test.salesforce.com", cfg.Org.ServerURL)
	require.Equal(t, 5*time.Second, cfg.Deploy.PollInterval)
	require.Equal(t, 12, cfg.Deploy.MaxAttempts)
	require.Equal(t, TestLevelSpecified, cfg.Deploy.TestLevel)
	require.Equal(t, "force-app/", cfg.Deploy.SourceRoot)
	require.Equal(t, DefaultSubject, cfg.Notify.Subject)
	require.Equal(t, LogLevelDebug, cfg.Logging.Level)
	require.Equal(t, LogFormatJSON, cfg.Logging.Format)
	require.Equal(t, "http://proxy.local:3128", cfg.Org.Proxy.URL)
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing username": "org:\n  password: x\n",
		"bad test level":   "org:\n  username: u\ndeploy:\n  test_level: sometimes\n",
		"bad regex":        "org:\n  username: u\ndeploy:\n  test_regex: \"([\"\n",
		"relative server":  "org:\n  username: u\n  server_url: login.salesforce.com\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			require.True(t, errors.HasCategory(err, errors.CategoryConfig), "got %v", err)
		})
	}
}

func TestParseTestLevelAliases(t *testing.T) {
	for raw, want := range map[string]TestLevel{
		"NoTestRun":        TestLevelNone,
		"none":             TestLevelNone,
		"runlocaltests":    TestLevelLocal,
		"all":              TestLevelAllInOrg,
		"RunAllTestsInOrg": TestLevelAllInOrg,
	} {
		got, err := ParseTestLevel(raw)
		require.NoError(t, err)
		require.Equal(t, want, got, raw)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("METADEPLOY_TEST_USER", "env-user@example.com")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("org:\n  username: ${METADEPLOY_TEST_USER}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-user@example.com", cfg.Org.Username)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	t.Setenv("SF_USERNAME", "init@example.com")
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "second init without force must fail")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "init@example.com", cfg.Org.Username)
	require.Equal(t, TestLevelSpecified, cfg.Deploy.TestLevel)
}
