// Package storage defines the output directory abstraction.
package storage

import "github.com/starford/pagetree/internal/models"

// Provider is the interface for output file operations. Paths are relative
// to the output root.
type Provider interface {
	// Create atomically replaces the file at path with content.
	Create(path string, content []byte) error
	// Append opens path, appends content and closes it again. The file must exist.
	Append(path string, content []byte) error
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a file exists at path.
	Exists(path string) (bool, error)
	// List returns metadata for every file with the given extension under dir.
	List(dir, ext string) ([]models.OutputFile, error)
}
