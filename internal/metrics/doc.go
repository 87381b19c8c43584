// Package metrics provides observability hooks for deployment runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	session := deploy.NewSession(auth, deploy.WithRecorder(recorder))
//
// A CLI run is short lived, so the Prometheus implementation is exported by
// writing its registry to a node_exporter textfile once the run finishes
// (see WriteTextfile) rather than by serving /metrics.
package metrics
