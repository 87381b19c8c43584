// Package errors classifies the failures of a metadata deployment run.
//
// Every stage reports failures as a ClassifiedError built through the fluent
// ErrorBuilder. The category says which stage family failed (resolution,
// packaging, submission and so on) and drives the CLI exit code. Warnings
// such as dropped manifest entries use the same type with warning severity.
//
//	err := errors.ResolutionError("cannot resolve commit").
//		WithContext("ref", ref).
//		WithCause(originalErr).
//		Build()
package errors
