// Package normalization maps loosely written configuration values onto typed enums.
package normalization

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Normalizer matches raw strings case-insensitively against a fixed set of
// spellings, each bound to one enum value.
type Normalizer[T comparable] struct {
	values   map[string]T
	fallback T
}

// NewNormalizer builds a Normalizer. fallback is returned for empty input.
func NewNormalizer[T comparable](values map[string]T, fallback T) *Normalizer[T] {
	n := &Normalizer[T]{values: make(map[string]T, len(values)), fallback: fallback}
	for k, v := range values {
		n.values[fold(k)] = v
	}
	return n
}

// Normalize returns the matching value or the fallback.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[fold(raw)]; ok {
		return v
	}
	return n.fallback
}

// NormalizeWithError rejects unrecognized non-empty input.
func (n *Normalizer[T]) NormalizeWithError(raw string) (T, error) {
	key := fold(raw)
	if key == "" {
		return n.fallback, nil
	}
	if v, ok := n.values[key]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid value %q, valid options: %s", raw, strings.Join(n.ValidKeys(), ", "))
}

// ValidKeys lists the accepted spellings, lower-cased and sorted.
func (n *Normalizer[T]) ValidKeys() []string {
	return slices.Sorted(maps.Keys(n.values))
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
