// Package deploy drives one remote deployment job: it authenticates, submits
// an archive, polls the asynchronous job and turns the final status into a
// Result.
//
// A Session moves through
//
//	Unauthenticated -> Authenticated -> Submitted -> Polling -> Succeeded|Failed
//
// with TimedOut reachable only from Polling. A Session never resubmits: a
// failed submission or a status check error is returned to the caller, and a
// timeout hands back the JobReference so tracking can be resumed later.
package deploy
