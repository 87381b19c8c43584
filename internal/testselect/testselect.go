// Package testselect picks the Apex test classes to run for a
// RunSpecifiedTests deployment.
package testselect

import (
	"fmt"
	"log/slog"
	"regexp"

	"git.home.luguber.info/inful/metadeploy/internal/logfields"
	"git.home.luguber.info/inful/metadeploy/internal/metadata"
	"git.home.luguber.info/inful/metadeploy/internal/util/sets"
)

// Selector maps deployed classes to test classes by naming convention.
type Selector struct {
	pattern string
	isTest  *regexp.Regexp
}

// New compiles the test-class pattern (for example ".*[T|t]est.*").
func New(pattern string) (*Selector, error) {
	isTest, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile test pattern %q: %w", pattern, err)
	}
	return &Selector{pattern: pattern, isTest: isTest}, nil
}

// Select returns the tests for the deployed Apex classes, in first-seen
// order without repeats. A deployed class whose name matches the pattern is
// itself a test. For any other class the first class in all matching
// <name><pattern> is used, then <pattern><name>. Classes with no match are
// skipped with a warning.
func (s *Selector) Select(deployed, all []metadata.Item) []string {
	candidates := apexClasses(all)
	var tests sets.Ordered[string]
	for _, name := range apexClasses(deployed) {
		if s.isTest.MatchString(name) {
			tests.Add(name)
			continue
		}
		quoted := regexp.QuoteMeta(name)
		match, ok := s.search(candidates, quoted+s.pattern)
		if !ok {
			match, ok = s.search(candidates, s.pattern+quoted)
		}
		if !ok {
			slog.Warn("No test class found", logfields.Member(name), slog.String("pattern", s.pattern))
			continue
		}
		tests.Add(match)
	}
	return tests.Values()
}

func (s *Selector) search(candidates []string, expr string) (string, bool) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", false
	}
	for _, c := range candidates {
		if re.MatchString(c) {
			return c, true
		}
	}
	return "", false
}

func apexClasses(items []metadata.Item) []string {
	var out []string
	for _, item := range items {
		if item.Valid && item.Type == metadata.TypeApexClass {
			out = append(out, item.Member)
		}
	}
	return out
}
