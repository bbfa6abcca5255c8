// Package archive turns a directory tree into a single zip file and back.
//
// Entries are stored relative to the archived directory with '/' separators.
// Directories get their own "name/" entries, so empty subdirectories survive
// a round trip. File data is deflated at best compression. Symbolic links are
// stored as link entries whose body is the link target; they are not followed.
package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Ext is appended to a directory path to name its transient archive.
const Ext = ".zip"

type Archiver struct {
	fs  billy.Filesystem
	log logging.Logger
}

func New(fsys billy.Filesystem, log logging.Logger) *Archiver {
	return &Archiver{fs: fsys, log: log}
}

// ArchiveDirectory zips src into src+".zip", replacing any existing file,
// and returns the archive path.
func (a *Archiver) ArchiveDirectory(ctx context.Context, src string) (string, error) {
	dst := src + Ext
	if err := a.Archive(ctx, src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Archive zips the contents of src into dst. It returns only after the
// archive has been finalized, synced and closed. On failure dst is removed.
func (a *Archiver) Archive(ctx context.Context, src, dst string) error {
	return a.ArchiveFrom(ctx, a.fs, src, dst)
}

// ArchiveFrom is Archive with src read from the filesystem from; dst is
// still written through the archiver's own filesystem.
func (a *Archiver) ArchiveFrom(ctx context.Context, from billy.Filesystem, src, dst string) (err error) {
	info, err := from.Stat(src)
	if err != nil {
		return archiveErr("stat", src, err)
	}
	if !info.IsDir() {
		return archiveErr("stat", src, errors.New("not a directory"))
	}

	f, err := a.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return archiveErr("create", dst, err)
	}

	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		if rmErr := a.fs.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			a.log.Warn(ctx, "failed to remove partial archive", "path", dst, "error", rmErr)
		}
	}()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	var entries int
	err = fsx.Walk(from, src, func(e fsx.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries++
		return addEntry(zw, from, e)
	})
	if err != nil {
		var ae *ArchiveError
		if errors.As(err, &ae) {
			return err
		}
		return archiveErr("walk", src, err)
	}

	if err = zw.Close(); err != nil {
		return archiveErr("finalize", dst, err)
	}
	if err = fsx.Sync(f); err != nil {
		return archiveErr("sync", dst, err)
	}
	closed = true
	if err = f.Close(); err != nil {
		return archiveErr("close", dst, err)
	}

	a.log.Debug(ctx, "archive written", "source", src, "archive", dst, "entries", entries)
	return nil
}

func addEntry(zw *zip.Writer, from billy.Filesystem, e fsx.Entry) error {
	hdr, err := zip.FileInfoHeader(e.Info)
	if err != nil {
		return archiveErr("header", e.Path, err)
	}
	hdr.Name = e.Rel

	if e.Info.IsDir() {
		hdr.Name += "/"
		hdr.Method = zip.Store
		if _, err := zw.CreateHeader(hdr); err != nil {
			return archiveErr("write", e.Path, err)
		}
		return nil
	}

	if e.Info.Mode()&os.ModeSymlink != 0 {
		target, err := from.Readlink(e.Path)
		if err != nil {
			return archiveErr("readlink", e.Path, err)
		}
		hdr.Method = zip.Store
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return archiveErr("write", e.Path, err)
		}
		if _, err := io.WriteString(w, filepath.ToSlash(target)); err != nil {
			return archiveErr("write", e.Path, err)
		}
		return nil
	}

	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return archiveErr("write", e.Path, err)
	}

	in, err := from.Open(e.Path)
	if err != nil {
		return archiveErr("open", e.Path, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return archiveErr("write", e.Path, err)
	}
	return nil
}
