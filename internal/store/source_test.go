package store

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLegacyStore creates an unversioned store shaped like the ones the
// original collection scripts produced.
func writeLegacyStore(t *testing.T, table string, msgs []RawMessage) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.sqlite3")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(fmt.Sprintf(`CREATE TABLE %s (
		srcml_path TEXT, version INTEGER, rank INTEGER, start TEXT, "end" TEXT, text TEXT,
		PRIMARY KEY (srcml_path, version, rank))`, table))
	require.NoError(t, err)

	for _, m := range msgs {
		_, err := db.Exec(fmt.Sprintf(`INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?)`, table),
			m.SrcMLPath, m.Version, m.Rank, m.Start, m.End, m.Text)
		require.NoError(t, err)
	}
	return path
}

func collect(t *testing.T, src *Source) []RawMessage {
	t.Helper()
	var out []RawMessage
	require.NoError(t, src.Each(context.Background(), func(m RawMessage) error {
		out = append(out, m)
		return nil
	}))
	return out
}

func TestOpenSource_Current(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slice.sqlite3")
	st := NewTestStoreAt(t, path)
	want := msg("srcml-1/project-2/src-3.xml", 1, `missing \x27;\x27`)
	_, err := st.InsertBatch(context.Background(), []RawMessage{want})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	src, err := OpenSource(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	assert.False(t, src.Legacy())
	got := collect(t, src)
	require.Len(t, got, 1)
	assert.Equal(t, want.Fingerprint(), got[0].Fingerprint())
	assert.Equal(t, "test.sqlite3", got[0].SourceDB)
	assert.True(t, want.CollectedAt.Equal(got[0].CollectedAt))
}

func TestOpenSource_Legacy(t *testing.T) {
	for _, table := range legacyTables {
		t.Run(table, func(t *testing.T) {
			path := writeLegacyStore(t, table, []RawMessage{
				msg("a.xml", 2, "not a statement"),
				msg("a.xml", 1, "';' expected"),
			})

			src, err := OpenSource(context.Background(), path)
			require.NoError(t, err)
			defer src.Close()

			assert.True(t, src.Legacy())
			got := collect(t, src)
			require.Len(t, got, 2)
			assert.Equal(t, 1, got[0].Rank)
			assert.Equal(t, "legacy.sqlite3", got[0].SourceDB)
			assert.False(t, got[0].CollectedAt.IsZero())
		})
	}
}

func TestOpenSource_LegacyNullRowsSkipped(t *testing.T) {
	path := writeLegacyStore(t, "messages", []RawMessage{msg("a.xml", 1, "';' expected")})
	db, err := sql.Open(DriverName, path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO messages (srcml_path, version, rank, start, "end", text) VALUES
		('b.xml', 1, NULL, NULL, NULL, 'not a statement'),
		('c.xml', 1, 1, NULL, NULL, NULL),
		('d.xml', NULL, 1, NULL, NULL, 'missing return statement')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := OpenSource(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	got := collect(t, src)
	require.Len(t, got, 2)
	assert.Equal(t, "a.xml", got[0].SrcMLPath)
	assert.Equal(t, "d.xml", got[1].SrcMLPath)
	assert.False(t, got[1].Version.Valid)
	assert.Equal(t, 2, src.Skipped())
}

func TestOpenSource_Errors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := OpenSource(ctx, filepath.Join(dir, "nope.sqlite3"))
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := OpenSource(ctx, dir)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.sqlite3")
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("definitely not sqlite "), 400), 0o644))

		_, err := OpenSource(ctx, path)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("empty database", func(t *testing.T) {
		path := filepath.Join(dir, "empty.sqlite3")
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE unrelated (id INTEGER)`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = OpenSource(ctx, path)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("legacy table missing column", func(t *testing.T) {
		path := filepath.Join(dir, "partial.sqlite3")
		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE all_messages (srcml_path TEXT, text TEXT)`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = OpenSource(ctx, path)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})

	t.Run("newer schema version", func(t *testing.T) {
		path := filepath.Join(dir, "future.sqlite3")
		st := NewTestStoreAt(t, path)
		_, err := st.DB().Exec(`UPDATE schema_migrations SET version = 99`)
		require.NoError(t, err)
		require.NoError(t, st.Close())

		_, err = OpenSource(ctx, path)
		assert.ErrorIs(t, err, ErrSchemaMismatch)
	})
}

func TestOpenSource_DoesNotModify(t *testing.T) {
	path := writeLegacyStore(t, "all_messages", []RawMessage{msg("a.xml", 1, "x")})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	src, err := OpenSource(context.Background(), path)
	require.NoError(t, err)
	collect(t, src)
	require.NoError(t, src.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
