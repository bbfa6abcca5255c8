package workspace

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/syncagent/internal/fsx"
	"github.com/dmitrijs2005/syncagent/internal/logging"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTarget(t *testing.T) {
	m := New(fsx.Memory(), logging.Discard())

	got, err := m.ResolveTarget("alice", "case-1")
	require.NoError(t, err)
	assert.Equal(t, m.fs.Join("Dentread", "alice", "case-1"), got)

	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "../etc"} {
		_, err := m.ResolveTarget("alice", bad)
		assert.ErrorIs(t, err, ErrInvalidTarget, "target %q", bad)
	}
	_, err = m.ResolveTarget("../bob", "case-1")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestCreate(t *testing.T) {
	fsys := fsx.Memory()
	m := New(fsys, logging.Discard())
	ctx := context.Background()

	res, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, fsys.Join("Dentread", "alice"), res.Path)

	info, err := fsys.Stat(res.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, DirMode, info.Mode().Perm())

	require.NoError(t, util.WriteFile(fsys, fsys.Join(res.Path, "keep.txt"), []byte("x"), 0o644))

	res, err = m.Create(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Created)

	ok, err := fsx.Exists(fsys, fsys.Join(res.Path, "keep.txt"))
	require.NoError(t, err)
	assert.True(t, ok, "existing workspace must be left alone")
}

func TestCreate_OS(t *testing.T) {
	dir := t.TempDir()
	m := New(fsx.OS(dir), logging.Discard())

	res, err := m.Create(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, res.Created)

	info, err := os.Stat(filepath.Join(dir, "Dentread", "alice"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDeleteAll(t *testing.T) {
	fsys := fsx.Memory()
	m := New(fsys, logging.Discard())
	ctx := context.Background()

	assert.ErrorIs(t, m.DeleteAll(ctx), ErrNoWorkspace)

	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/case-1/a.stl", []byte("a"), 0o644))
	require.NoError(t, m.DeleteAll(ctx))

	ok, err := fsx.Exists(fsys, "Dentread")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEmpty(t *testing.T) {
	fsys := fsx.Memory()
	m := New(fsys, logging.Discard())
	ctx := context.Background()

	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/case-1/a.stl", []byte("a"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/case-1/sub/b.stl", []byte("b"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/scan.pdf", []byte("%PDF"), 0o644))

	msg, err := m.Empty(ctx, "alice", "case-1")
	require.NoError(t, err)
	assert.Contains(t, msg, "Directory emptied")
	ok, _ := fsx.Exists(fsys, "Dentread/alice/case-1")
	assert.False(t, ok)

	msg, err = m.Empty(ctx, "alice", "scan.pdf")
	require.NoError(t, err)
	assert.Contains(t, msg, "File removed")
	ok, _ = fsx.Exists(fsys, "Dentread/alice/scan.pdf")
	assert.False(t, ok)

	_, err = m.Empty(ctx, "alice", "case-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Empty(ctx, "alice", "..")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestEmpty_Symlink(t *testing.T) {
	fsys := fsx.Memory()
	m := New(fsys, logging.Discard())

	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/real.pdf", []byte("%PDF"), 0o644))
	require.NoError(t, fsys.Symlink("real.pdf", "Dentread/alice/link.pdf"))

	_, err := m.Empty(context.Background(), "alice", "link.pdf")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestList(t *testing.T) {
	fsys := fsx.Memory()
	require.NoError(t, util.WriteFile(fsys, "Dentread/alice/b.pdf", []byte("b"), 0o644))
	require.NoError(t, fsys.MkdirAll("Dentread/alice/a-case", 0o755))

	var logs bytes.Buffer
	m := New(fsys, logging.New(&logs, "info"))

	got := m.List(context.Background(), "Dentread/alice")
	assert.Equal(t, []Entry{
		{Name: "a-case", IsDirectory: true},
		{Name: "b.pdf", IsDirectory: false},
	}, got)

	got = m.List(context.Background(), "Dentread/nobody")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Contains(t, logs.String(), "error listing files and folders")
}
