package archive

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is wrapped when an entry would land outside the target.
var ErrUnsafePath = errors.New("entry escapes destination")

// Extract unpacks the zip at src into dest, creating dest if needed.
func (a *Archiver) Extract(ctx context.Context, src, dest string) error {
	f, err := a.fs.Open(src)
	if err != nil {
		return archiveErr("open", src, err)
	}
	defer f.Close()

	info, err := a.fs.Stat(src)
	if err != nil {
		return archiveErr("stat", src, err)
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return archiveErr("read", src, err)
	}

	if err := a.fs.MkdirAll(dest, 0o755); err != nil {
		return archiveErr("mkdir", dest, err)
	}

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return archiveErr("extract", src, err)
		}

		name := strings.TrimSuffix(zf.Name, "/")
		if !fs.ValidPath(name) || name == "." {
			return archiveErr("extract", zf.Name, ErrUnsafePath)
		}
		target := a.fs.Join(dest, name)

		if zf.FileInfo().IsDir() {
			if err := a.fs.MkdirAll(target, 0o755); err != nil {
				return archiveErr("mkdir", target, err)
			}
			continue
		}

		if zf.Mode()&os.ModeSymlink != 0 {
			if err := a.extractLink(zf, name, target); err != nil {
				return err
			}
			continue
		}

		if err := a.extractFile(zf, target); err != nil {
			return err
		}
	}
	return nil
}

// extractLink recreates a link entry. Targets must be relative and resolve
// inside the extracted tree. An existing entry at the link path is an error.
func (a *Archiver) extractLink(zf *zip.File, name, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return archiveErr("read", zf.Name, err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return archiveErr("read", zf.Name, err)
	}

	link := string(body)
	if path.IsAbs(link) || filepath.IsAbs(link) ||
		!fs.ValidPath(path.Join(path.Dir(name), link)) {
		return archiveErr("extract", zf.Name, ErrUnsafePath)
	}

	if dir := parentOf(target); dir != "" {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return archiveErr("mkdir", dir, err)
		}
	}
	if _, err := a.fs.Lstat(target); err == nil {
		return archiveErr("symlink", target, os.ErrExist)
	}
	if err := a.fs.Symlink(filepath.FromSlash(link), target); err != nil {
		return archiveErr("symlink", target, err)
	}
	return nil
}

func (a *Archiver) extractFile(zf *zip.File, target string) error {
	if dir := parentOf(target); dir != "" {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return archiveErr("mkdir", dir, err)
		}
	}

	rc, err := zf.Open()
	if err != nil {
		return archiveErr("read", zf.Name, err)
	}
	defer rc.Close()

	out, err := a.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return archiveErr("create", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return archiveErr("write", target, err)
	}
	if err := out.Close(); err != nil {
		return archiveErr("close", target, err)
	}
	return nil
}

func parentOf(p string) string {
	i := strings.LastIndexAny(p, `/\`)
	if i <= 0 {
		return ""
	}
	return p[:i]
}
