// Package git resolves change sets between two commits of a source repository.
//
// This package handles:
//   - Commit reference resolution (hashes, branches, remote tracking refs)
//   - Tree diffs classified into additions, deletions and modifications
//   - Historical blob retrieval for rollback packaging
//   - Writing the generated manifest back to the repository
//
// Only paths under the configured source root take part in resolution.
// Companion descriptor files are folded onto the item they describe.
package git
