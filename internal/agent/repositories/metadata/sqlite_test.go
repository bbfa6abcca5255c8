package metadata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key        TEXT PRIMARY KEY,
  value      BLOB NOT NULL,
  updated_at TIMESTAMP
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "savedUsername", []byte("alice")))

	v, err := r.Get(ctx, "savedUsername")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), v)
}

func TestGet_Absent_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "folderNames", []byte(`["a"]`)))
	require.NoError(t, r.Set(ctx, "folderNames", []byte(`["a","b"]`)))

	v, err := r.Get(ctx, "folderNames")
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(v))
}

func TestEntries_SizesAndTimesWithoutValues(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	require.NoError(t, r.Set(ctx, "token", []byte(`{"access":"acc-1"}`)))
	require.NoError(t, r.Set(ctx, "folderNames", []byte(`["a","b"]`)))
	require.NoError(t, r.Set(ctx, "savedUsername", nil))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, []string{"folderNames", "savedUsername", "token"},
		[]string{entries[0].Key, entries[1].Key, entries[2].Key})
	assert.Equal(t, int64(9), entries[0].Size)
	assert.Equal(t, int64(0), entries[1].Size)
	assert.Equal(t, int64(18), entries[2].Size)
	assert.True(t, entries[2].UpdatedAt.Equal(at), entries[2].UpdatedAt)
}

func TestEntries_LegacyRowHasZeroTime(t *testing.T) {
	db := setupDB(t)
	_, err := db.Exec(`INSERT INTO metadata (key, value) VALUES ('filenames', '[]')`)
	require.NoError(t, err)

	entries, err := NewSQLiteRepository(db).Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].UpdatedAt.IsZero())
}

func TestSet_RestampsOnOverwrite(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	r.now = func() time.Time { return first }
	require.NoError(t, r.Set(ctx, "token", []byte("a")))
	r.now = func() time.Time { return second }
	require.NoError(t, r.Set(ctx, "token", []byte("bb")))

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].Size)
	assert.True(t, entries[0].UpdatedAt.Equal(second), entries[0].UpdatedAt)
}

func TestDelete_SeveralKeysAndIdempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "token", []byte(`{}`)))
	require.NoError(t, r.Set(ctx, "savedUsername", []byte("alice")))
	require.NoError(t, r.Set(ctx, "filenames", []byte(`["a.stl"]`)))

	require.NoError(t, r.Delete(ctx, "token", "savedUsername"))
	require.NoError(t, r.Delete(ctx, "token"))
	require.NoError(t, r.Delete(ctx))

	v, err := r.Get(ctx, "token")
	require.NoError(t, err)
	assert.Nil(t, v)

	entries, err := r.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "filenames", entries[0].Key)
}

func TestClosedDB_ErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, `metadata: get "k"`)

	require.ErrorContains(t, r.Set(ctx, "k", []byte("v")), `metadata: set "k"`)
	require.ErrorContains(t, r.Delete(ctx, "k"), "metadata: delete")

	_, err = r.Entries(ctx)
	require.ErrorContains(t, err, "metadata: entries")
}
