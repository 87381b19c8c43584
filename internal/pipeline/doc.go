// Package pipeline runs one deployment job end to end: resolve the change
// set, build manifests, pick tests, assemble the archive, submit and poll the
// remote job, then write the rollback archive and optionally commit the
// updated package.xml.
//
// Optional behaviour is selected by a Strategy value. All per-run state lives
// on a Job, which owns the change set, manifests, archive and result.
package pipeline
