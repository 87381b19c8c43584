package deploy

import "git.home.luguber.info/inful/metadeploy/internal/config"

// Options are the caller's submission choices. RollbackOnError and
// SinglePackage are always set on the wire.
type Options struct {
	CheckOnly      bool
	TestLevel      config.TestLevel
	SpecifiedTests []string
	ContainsApex   bool
}

// wireOptions applies the test-execution policy:
//   - RunSpecifiedTests with an empty test list is sent as NoTestRun;
//   - other levels are sent only when the archive contains Apex, otherwise
//     the platform default applies.
func (o Options) wireOptions() WireOptions {
	w := WireOptions{
		CheckOnly:       o.CheckOnly,
		RollbackOnError: true,
		SinglePackage:   true,
	}
	switch {
	case o.TestLevel == config.TestLevelSpecified:
		if len(o.SpecifiedTests) > 0 {
			w.TestLevel = config.TestLevelSpecified
			w.RunTests = append([]string(nil), o.SpecifiedTests...)
		} else {
			w.TestLevel = config.TestLevelNone
		}
	case o.ContainsApex:
		w.TestLevel = o.TestLevel
	}
	return w
}
