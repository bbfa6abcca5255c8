package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fsys billy.Filesystem, name, body string) {
	t.Helper()
	require.NoError(t, util.WriteFile(fsys, name, []byte(body), 0o644))
}

func readFile(t *testing.T, fsys billy.Filesystem, name string) string {
	t.Helper()
	b, err := util.ReadFile(fsys, name)
	require.NoError(t, err)
	return string(b)
}

func seedTree(t *testing.T, fsys billy.Filesystem) {
	t.Helper()
	writeFile(t, fsys, "case-1/scan.stl", "solid tooth\nendsolid\n")
	writeFile(t, fsys, "case-1/notes/summary.txt", "patient notes")
	writeFile(t, fsys, "case-1/xray/a.dcm", string([]byte{0, 1, 2, 3, 255}))
	require.NoError(t, fsys.MkdirAll("case-1/empty/inner", 0o755))
}

func zipNames(t *testing.T, fsys billy.Filesystem, name string) []string {
	t.Helper()
	f, err := fsys.Open(name)
	require.NoError(t, err)
	defer f.Close()
	info, err := fsys.Stat(name)
	require.NoError(t, err)

	zr, err := zip.NewReader(f, info.Size())
	require.NoError(t, err)

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	return names
}

func TestArchiveDirectory_RoundTrip(t *testing.T) {
	fsys := fsx.Memory()
	seedTree(t, fsys)
	a := New(fsys, logging.Discard())

	zipPath, err := a.ArchiveDirectory(context.Background(), "case-1")
	require.NoError(t, err)
	assert.Equal(t, "case-1.zip", zipPath)

	require.NoError(t, a.Extract(context.Background(), zipPath, "out"))

	assert.Equal(t, "solid tooth\nendsolid\n", readFile(t, fsys, "out/scan.stl"))
	assert.Equal(t, "patient notes", readFile(t, fsys, "out/notes/summary.txt"))
	assert.Equal(t, string([]byte{0, 1, 2, 3, 255}), readFile(t, fsys, "out/xray/a.dcm"))

	info, err := fsys.Stat("out/empty/inner")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	list, err := fsys.ReadDir("out/empty/inner")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func seedLinkedTree(t *testing.T, fsys billy.Filesystem) {
	t.Helper()
	writeFile(t, fsys, "case-2/model.stl", "solid crown")
	writeFile(t, fsys, "case-2/xray/a.dcm", "dicom")
	require.NoError(t, fsys.Symlink("model.stl", "case-2/model-link.stl"))
	require.NoError(t, fsys.Symlink("xray", "case-2/xray-link"))
}

func assertLinkedTree(t *testing.T, fsys billy.Filesystem, dir string) {
	t.Helper()
	target, err := fsys.Readlink(fsys.Join(dir, "model-link.stl"))
	require.NoError(t, err)
	assert.Equal(t, "model.stl", target)
	assert.Equal(t, "solid crown", readFile(t, fsys, fsys.Join(dir, "model-link.stl")))

	target, err = fsys.Readlink(fsys.Join(dir, "xray-link"))
	require.NoError(t, err)
	assert.Equal(t, "xray", target)

	list, err := fsys.ReadDir(fsys.Join(dir, "xray-link"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a.dcm", list[0].Name())
}

func TestArchive_LinksStoredAsLinkEntries(t *testing.T) {
	fsys := fsx.Memory()
	seedLinkedTree(t, fsys)
	a := New(fsys, logging.Discard())

	require.NoError(t, a.Archive(context.Background(), "case-2", "case-2.zip"))

	f, err := fsys.Open("case-2.zip")
	require.NoError(t, err)
	defer f.Close()
	info, err := fsys.Stat("case-2.zip")
	require.NoError(t, err)
	zr, err := zip.NewReader(f, info.Size())
	require.NoError(t, err)

	links := map[string]string{}
	for _, zf := range zr.File {
		if zf.Mode()&os.ModeSymlink == 0 {
			continue
		}
		assert.Equal(t, zip.Store, zf.Method, zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		links[zf.Name] = string(body)
	}
	assert.Equal(t, map[string]string{
		"model-link.stl": "model.stl",
		"xray-link":      "xray",
	}, links)
	assert.NotContains(t, zipNames(t, fsys, "case-2.zip"), "xray-link/a.dcm")

	require.NoError(t, a.Extract(context.Background(), "case-2.zip", "out"))
	assertLinkedTree(t, fsys, "out")
}

func TestArchive_LinksRoundTripOnDisk(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	fsys := fsx.OS(dir)
	writeFile(t, fsys, "case-2/model.stl", "solid crown")
	writeFile(t, fsys, "case-2/xray/a.dcm", "dicom")
	require.NoError(t, os.Symlink("model.stl", filepath.Join(dir, "case-2", "model-link.stl")))
	require.NoError(t, os.Symlink("xray", filepath.Join(dir, "case-2", "xray-link")))

	a := New(fsys, logging.Discard())
	zipPath, err := a.ArchiveDirectory(context.Background(), "case-2")
	require.NoError(t, err)
	require.NoError(t, a.Extract(context.Background(), zipPath, "out"))

	assertLinkedTree(t, fsys, "out")
	info, err := os.Lstat(filepath.Join(dir, "out", "xray-link"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
}

func TestArchiveFrom_ReadsOtherFilesystem(t *testing.T) {
	src := fsx.OS(t.TempDir())
	seedTree(t, src)
	dst := fsx.Memory()
	a := New(dst, logging.Discard())

	require.NoError(t, a.ArchiveFrom(context.Background(), src, "case-1", "staged/case-1.zip"))

	ok, err := fsx.Exists(src, "staged/case-1.zip")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Extract(context.Background(), "staged/case-1.zip", "out"))
	assert.Equal(t, "solid tooth\nendsolid\n", readFile(t, dst, "out/scan.stl"))
	assert.Equal(t, "patient notes", readFile(t, dst, "out/notes/summary.txt"))
}

func TestArchive_EntriesRelativeAndOrdered(t *testing.T) {
	fsys := fsx.Memory()
	seedTree(t, fsys)
	a := New(fsys, logging.Discard())

	require.NoError(t, a.Archive(context.Background(), "case-1", "bundle.zip"))

	names := zipNames(t, fsys, "bundle.zip")
	assert.Equal(t, []string{
		"empty/",
		"empty/inner/",
		"notes/",
		"notes/summary.txt",
		"scan.stl",
		"xray/",
		"xray/a.dcm",
	}, names)
	assert.True(t, sort.StringsAreSorted(names))
	for _, n := range names {
		assert.NotContains(t, n, "case-1")
	}
}

func TestArchive_UsesDeflate(t *testing.T) {
	fsys := fsx.Memory()
	body := make([]byte, 64*1024)
	for i := range body {
		body[i] = byte('a' + i%3)
	}
	writeFile(t, fsys, "d/big.txt", string(body))

	a := New(fsys, logging.Discard())
	require.NoError(t, a.Archive(context.Background(), "d", "d.zip"))

	f, err := fsys.Open("d.zip")
	require.NoError(t, err)
	defer f.Close()
	info, _ := fsys.Stat("d.zip")
	zr, err := zip.NewReader(f, info.Size())
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
	assert.Less(t, zr.File[0].CompressedSize64, zr.File[0].UncompressedSize64)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestArchive_OverwritesExisting(t *testing.T) {
	fsys := fsx.Memory()
	writeFile(t, fsys, "d/one.txt", "1")
	writeFile(t, fsys, "d.zip", "stale bytes that are not a zip")

	a := New(fsys, logging.Discard())
	_, err := a.ArchiveDirectory(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"one.txt"}, zipNames(t, fsys, "d.zip"))
}

func TestArchive_EmptyDirectory(t *testing.T) {
	fsys := fsx.Memory()
	require.NoError(t, fsys.MkdirAll("blank", 0o755))

	a := New(fsys, logging.Discard())
	require.NoError(t, a.Archive(context.Background(), "blank", "blank.zip"))
	assert.Empty(t, zipNames(t, fsys, "blank.zip"))
}

func TestArchive_MissingSource(t *testing.T) {
	fsys := fsx.Memory()
	a := New(fsys, logging.Discard())

	_, err := a.ArchiveDirectory(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchive)
	assert.ErrorIs(t, err, os.ErrNotExist)

	var ae *ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "stat", ae.Op)
	assert.Equal(t, "nope", ae.Path)

	ok, err := fsx.Exists(fsys, "nope.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchive_SourceIsFile(t *testing.T) {
	fsys := fsx.Memory()
	writeFile(t, fsys, "scan.stl", "x")

	_, err := New(fsys, logging.Discard()).ArchiveDirectory(context.Background(), "scan.stl")
	assert.ErrorIs(t, err, ErrArchive)
}

func TestArchive_CancelledRemovesPartial(t *testing.T) {
	fsys := fsx.Memory()
	seedTree(t, fsys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fsys, logging.Discard()).ArchiveDirectory(ctx, "case-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArchive)
	assert.True(t, errors.Is(err, context.Canceled))

	ok, err := fsx.Exists(fsys, "case-1.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingOpenFS struct {
	billy.Filesystem
	bad string
}

func (f failingOpenFS) Open(name string) (billy.File, error) {
	if name == f.bad {
		return nil, os.ErrPermission
	}
	return f.Filesystem.Open(name)
}

func TestArchive_UnreadableEntryRemovesPartial(t *testing.T) {
	mem := fsx.Memory()
	seedTree(t, mem)
	fsys := failingOpenFS{Filesystem: mem, bad: mem.Join("case-1", "scan.stl")}

	_, err := New(fsys, logging.Discard()).ArchiveDirectory(context.Background(), "case-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)

	var ae *ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "open", ae.Op)

	ok, err := fsx.Exists(mem, "case-1.zip")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	fsys := fsx.Memory()

	f, err := fsys.Create("evil.zip")
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../outside.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("boom"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	err = New(fsys, logging.Discard()).Extract(context.Background(), "evil.zip", "dest")
	require.ErrorIs(t, err, ErrUnsafePath)

	ok, _ := fsx.Exists(fsys, "outside.txt")
	assert.False(t, ok)
}

func TestExtract_RejectsEscapingLinks(t *testing.T) {
	for _, target := range []string{"../../outside", "/etc/passwd", "sub/../../.."} {
		t.Run(target, func(t *testing.T) {
			fsys := fsx.Memory()

			f, err := fsys.Create("evil.zip")
			require.NoError(t, err)
			zw := zip.NewWriter(f)
			hdr := &zip.FileHeader{Name: "dir/up", Method: zip.Store}
			hdr.SetMode(os.ModeSymlink | 0o777)
			w, err := zw.CreateHeader(hdr)
			require.NoError(t, err)
			_, _ = w.Write([]byte(target))
			require.NoError(t, zw.Close())
			require.NoError(t, f.Close())

			err = New(fsys, logging.Discard()).Extract(context.Background(), "evil.zip", "dest")
			require.ErrorIs(t, err, ErrUnsafePath)

			_, err = fsys.Lstat("dest/dir/up")
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestExtract_NotAZip(t *testing.T) {
	fsys := fsx.Memory()
	writeFile(t, fsys, "bad.zip", "definitely not a zip")

	err := New(fsys, logging.Discard()).Extract(context.Background(), "bad.zip", "dest")
	require.ErrorIs(t, err, ErrArchive)
}
