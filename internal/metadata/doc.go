// Package metadata classifies repository paths against the platform metadata
// taxonomy.
//
// Classification is a pure function of a file's extension. The lookup table is
// an immutable value parsed once (usually from the embedded resource) and
// handed to every Classifier that needs it.
package metadata
