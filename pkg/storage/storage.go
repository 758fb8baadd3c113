package storage

import (
	"errors"
	"io"
)

// ErrFileNotFound is returned when no stored file matches an id.
var ErrFileNotFound = errors.New("file not found")

// FileInfo describes a stored file.
type FileInfo struct {
	ID       string // unique identifier
	Name     string // original filename
	Size     int64  // size in bytes
	MimeType string
	Path     string // implementation-specific storage path
}

// Storage stores uploaded files. Implementations exist for the local
// filesystem and MinIO.
type Storage interface {
	// Save stores the file and returns its info.
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get returns the file content.
	Get(id string) (io.ReadCloser, error)

	// Delete removes the file.
	Delete(id string) error

	// List returns all stored files.
	List() ([]FileInfo, error)

	// Exists reports whether a file with the id is stored.
	Exists(id string) (bool, error)
}

// Factory builds a Storage from its configuration.
type Factory func(cfg interface{}) (Storage, error)
