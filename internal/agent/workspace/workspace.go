// Package workspace manages the Dentread/<username> tree the agent syncs from.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
)

// RootDirName is the top-level directory holding every user's tree.
const RootDirName = "Dentread"

// DirMode is applied to the user directory and everything below it.
const DirMode os.FileMode = 0o777

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrNoWorkspace   = errors.New("workspace directory does not exist")
	ErrNotFound      = errors.New("target does not exist")
)

type Manager struct {
	fs  billy.Filesystem
	log logging.Logger
}

func New(fsys billy.Filesystem, log logging.Logger) *Manager {
	return &Manager{fs: fsys, log: log}
}

// CreateResult reports the user directory and whether this call made it.
type CreateResult struct {
	Path    string
	Created bool
}

// Entry is one item returned by List.
type Entry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
}

// ValidName reports whether name is usable as a single path element.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`) &&
		!strings.ContainsRune(name, 0)
}

// UserDir returns Dentread/<username>.
func (m *Manager) UserDir(username string) (string, error) {
	if !ValidName(username) {
		return "", fmt.Errorf("%w: username %q", ErrInvalidTarget, username)
	}
	return m.fs.Join(RootDirName, username), nil
}

// ResolveTarget returns Dentread/<username>/<targetID>.
func (m *Manager) ResolveTarget(username, targetID string) (string, error) {
	dir, err := m.UserDir(username)
	if err != nil {
		return "", err
	}
	if !ValidName(targetID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, targetID)
	}
	return m.fs.Join(dir, targetID), nil
}

// Create makes the user directory with DirMode applied to it and its
// contents. An existing directory is left as is and reported with Created
// false.
func (m *Manager) Create(ctx context.Context, username string) (CreateResult, error) {
	dir, err := m.UserDir(username)
	if err != nil {
		return CreateResult{}, err
	}

	exists, err := fsx.Exists(m.fs, dir)
	if err != nil {
		return CreateResult{}, err
	}
	if exists {
		m.log.Debug(ctx, "workspace already exists", "path", dir)
		return CreateResult{Path: dir}, nil
	}

	if err := m.fs.MkdirAll(dir, DirMode); err != nil {
		return CreateResult{}, fmt.Errorf("create %q: %w", dir, err)
	}
	if err := fsx.Chmod(m.fs, dir, DirMode); err != nil && !errors.Is(err, fsx.ErrChmodUnsupported) {
		return CreateResult{}, err
	}
	if err := fsx.ChmodTree(m.fs, dir, DirMode); err != nil && !errors.Is(err, fsx.ErrChmodUnsupported) {
		return CreateResult{}, err
	}

	m.log.Info(ctx, "workspace created", "path", dir)
	return CreateResult{Path: dir, Created: true}, nil
}

// DeleteAll removes the whole Dentread tree.
func (m *Manager) DeleteAll(ctx context.Context) error {
	exists, err := fsx.Exists(m.fs, RootDirName)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoWorkspace
	}
	if err := fsx.RemoveAll(m.fs, RootDirName); err != nil {
		return err
	}
	m.log.Info(ctx, "workspace deleted", "path", RootDirName)
	return nil
}

// Empty removes a synced target, a directory with all its contents or a
// single file, and returns a human readable message.
func (m *Manager) Empty(ctx context.Context, username, targetID string) (string, error) {
	target, err := m.ResolveTarget(username, targetID)
	if err != nil {
		return "", err
	}

	info, err := m.fs.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", target, err)
	}

	switch {
	case info.IsDir():
		if err := fsx.RemoveAll(m.fs, target); err != nil {
			return "", err
		}
		m.log.Info(ctx, "sync completed", "path", target)
		return fmt.Sprintf("Directory emptied: %s", target), nil
	case info.Mode().IsRegular():
		if err := m.fs.Remove(target); err != nil {
			return "", fmt.Errorf("remove %q: %w", target, err)
		}
		m.log.Info(ctx, "sync completed", "path", target)
		return fmt.Sprintf("File removed: %s", target), nil
	default:
		return "", fmt.Errorf("%w: neither a file nor a directory: %s", ErrInvalidTarget, target)
	}
}

// List returns the entries of dir. Errors are logged and yield an empty list.
func (m *Manager) List(ctx context.Context, dir string) []Entry {
	infos, err := fsx.ReadDirSorted(m.fs, dir)
	if err != nil {
		m.log.Error(ctx, "error listing files and folders", "dir", dir, "error", err)
		return []Entry{}
	}

	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, Entry{Name: fi.Name(), IsDirectory: fi.IsDir()})
	}
	return out
}
