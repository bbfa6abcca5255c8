package archive

import (
	"errors"
	"fmt"
)

// ErrArchive matches every *ArchiveError.
var ErrArchive = errors.New("archive failed")

// ArchiveError reports which step of building or reading a zip failed.
type ArchiveError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

func (e *ArchiveError) Is(target error) bool { return target == ErrArchive }

func archiveErr(op, path string, err error) error {
	return &ArchiveError{Op: op, Path: path, Err: err}
}
