package config

import (
	"git.home.luguber.info/inful/metadeploy/internal/foundation/normalization"
)

// TestLevel selects which Apex tests the platform runs during a deployment.
type TestLevel string

const (
	TestLevelNone      TestLevel = "NoTestRun"
	TestLevelSpecified TestLevel = "RunSpecifiedTests"
	TestLevelLocal     TestLevel = "RunLocalTests"
	TestLevelAllInOrg  TestLevel = "RunAllTestsInOrg"
)

var testLevelNormalizer = normalization.NewNormalizer(map[string]TestLevel{
	"NoTestRun":         TestLevelNone,
	"none":              TestLevelNone,
	"RunSpecifiedTests": TestLevelSpecified,
	"relevant":          TestLevelSpecified,
	"RunLocalTests":     TestLevelLocal,
	"local":             TestLevelLocal,
	"RunAllTestsInOrg":  TestLevelAllInOrg,
	"all":               TestLevelAllInOrg,
}, TestLevelNone)

// ParseTestLevel accepts the wire names and the short aliases none|relevant|local|all.
func ParseTestLevel(raw string) (TestLevel, error) {
	return testLevelNormalizer.NormalizeWithError(raw)
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug": LogLevelDebug,
	"info":  LogLevelInfo,
	"warn":  LogLevelWarn,
	"error": LogLevelError,
}, LogLevelInfo)

func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}
