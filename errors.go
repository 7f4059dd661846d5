package stashfs

import "errors"

// Failures returned by tree operations. Callers should match with errors.Is
// since operations wrap them in a *PathError.
var (
	ErrPathNotFound  = errors.New("path not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrNotAFile      = errors.New("not a file")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("no such entry")
	ErrInvalidName   = errors.New("invalid name")
)

// Failures of the persistence layer. Load recovers from both internally.
var (
	ErrDecryption   = errors.New("decryption failed")
	ErrCorruptState = errors.New("corrupt state")
)

// PathError records a failed tree operation and the path it was given
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}
