// Package stashfs contains core domain types and interfaces for StashFS, an
// in-memory filesystem whose state is persisted encrypted inside an image.
package stashfs
