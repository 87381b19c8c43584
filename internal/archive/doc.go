// Package archive assembles deployable zip archives from manifests and item
// content. Assembly is all-or-nothing: every entry is gathered in memory
// before the first byte of the archive is written.
package archive
