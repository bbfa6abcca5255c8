// Package fsx is the filesystem capability the agent works against.
//
// Everything that touches disk takes a billy.Filesystem so the same code runs
// over the real OS (osfs, rooted at the agent's working directory) and over
// memfs in tests. Paths handed to these helpers are relative to that root and
// use the filesystem's own separator rules (fs.Join).
package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// ErrChmodUnsupported is returned by ChmodTree when the filesystem cannot
// change permissions.
var ErrChmodUnsupported = errors.New("filesystem does not support chmod")

// SkipDir may be returned from a WalkFunc to skip a directory's contents.
var SkipDir = errors.New("skip this directory")

// Chmoder is implemented by filesystems that can change permissions.
type Chmoder interface {
	Chmod(name string, mode os.FileMode) error
}

type osFS struct {
	billy.Filesystem
	root string
}

// OS returns a filesystem bound to dir. Files it opens are plain *os.File
// wrappers, so Sync reaches the disk. Relative dirs are resolved against the
// working directory first; Lstat and Readlink need an absolute base.
func OS(dir string) billy.Filesystem {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &osFS{Filesystem: osfs.New(dir, osfs.WithBoundOS()), root: dir}
}

func (o *osFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(filepath.Join(o.root, name), mode)
}

// memFS adds permission tracking on top of memfs, which has none.
type memFS struct {
	billy.Filesystem

	mu    sync.Mutex
	modes map[string]os.FileMode
}

// Memory returns an empty in-memory filesystem.
func Memory() billy.Filesystem {
	return &memFS{Filesystem: memfs.New(), modes: make(map[string]os.FileMode)}
}

func memKey(name string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
}

func (m *memFS) Chmod(name string, mode os.FileMode) error {
	if _, err := m.Filesystem.Stat(name); err != nil {
		return err
	}
	m.mu.Lock()
	m.modes[memKey(name)] = mode.Perm()
	m.mu.Unlock()
	return nil
}

func (m *memFS) Stat(name string) (os.FileInfo, error) {
	info, err := m.Filesystem.Stat(name)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	perm, ok := m.modes[memKey(name)]
	m.mu.Unlock()
	if !ok {
		return info, nil
	}
	return modeInfo{FileInfo: info, mode: info.Mode().Type() | perm}, nil
}

type modeInfo struct {
	os.FileInfo
	mode os.FileMode
}

func (i modeInfo) Mode() os.FileMode { return i.mode }

// Exists reports whether path exists.
func Exists(fsys billy.Filesystem, path string) (bool, error) {
	_, err := fsys.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
}

// Entry is one item visited by Walk.
type Entry struct {
	// Path is the full path within the filesystem.
	Path string
	// Rel is Path relative to the walk root, always '/'-separated.
	Rel  string
	Info os.FileInfo
}

type WalkFunc func(e Entry) error

// ReadDirSorted lists dir ordered by name.
func ReadDirSorted(fsys billy.Filesystem, dir string) ([]os.FileInfo, error) {
	list, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("readdir %q: %w", dir, err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list, nil
}

// Walk visits every entry below root (root itself excluded), depth-first,
// parents before children, siblings in lexical order.
func Walk(fsys billy.Filesystem, root string, fn WalkFunc) error {
	type frame struct {
		path string
		rel  string
		info os.FileInfo
	}

	push := func(stack []frame, dir, rel string) ([]frame, error) {
		list, err := ReadDirSorted(fsys, dir)
		if err != nil {
			return stack, err
		}
		for i := len(list) - 1; i >= 0; i-- {
			name := list[i].Name()
			childRel := name
			if rel != "" {
				childRel = rel + "/" + name
			}
			stack = append(stack, frame{path: fsys.Join(dir, name), rel: childRel, info: list[i]})
		}
		return stack, nil
	}

	stack, err := push(nil, root, "")
	if err != nil {
		return err
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		err := fn(Entry{Path: top.path, Rel: top.rel, Info: top.info})
		if errors.Is(err, SkipDir) {
			continue
		}
		if err != nil {
			return err
		}

		if top.info.IsDir() {
			if stack, err = push(stack, top.path, top.rel); err != nil {
				return err
			}
		}
	}
	return nil
}

// ChmodTree applies mode to every entry below root, root excluded.
func ChmodTree(fsys billy.Filesystem, root string, mode os.FileMode) error {
	ch, ok := fsys.(Chmoder)
	if !ok {
		return ErrChmodUnsupported
	}
	return Walk(fsys, root, func(e Entry) error {
		if e.Info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if err := ch.Chmod(e.Path, mode); err != nil {
			return fmt.Errorf("chmod %q: %w", e.Path, err)
		}
		return nil
	})
}

// Chmod changes the mode of a single path.
func Chmod(fsys billy.Filesystem, name string, mode os.FileMode) error {
	ch, ok := fsys.(Chmoder)
	if !ok {
		return ErrChmodUnsupported
	}
	if err := ch.Chmod(name, mode); err != nil {
		return fmt.Errorf("chmod %q: %w", name, err)
	}
	return nil
}

// RemoveAll removes path and anything below it. A missing path is not an error.
func RemoveAll(fsys billy.Filesystem, path string) error {
	if err := util.RemoveAll(fsys, path); err != nil {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst byte for byte, replacing dst.
func CopyFile(fsys billy.Filesystem, src, dst string) (int64, error) {
	return CopyFileBetween(fsys, src, fsys, dst)
}

// CopyFileBetween copies src on from to dst on to. Links at src are followed.
func CopyFileBetween(from billy.Filesystem, src string, to billy.Filesystem, dst string) (int64, error) {
	in, err := from.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	mode := os.FileMode(0o644)
	if info, err := from.Stat(src); err == nil {
		mode = info.Mode().Perm()
	}

	out, err := to.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", dst, err)
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("copy %q -> %q: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %q: %w", dst, err)
	}
	return n, nil
}

// Sync flushes f to stable storage when the underlying file supports it.
func Sync(f billy.File) error {
	if s, ok := f.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Base returns the last element of a '/' or filesystem-separated path.
func Base(p string) string {
	p = strings.TrimRight(p, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
