// Package manifest builds deploy and destructive-change manifests from
// classified repository paths and serializes them in the package.xml format.
package manifest
