package store

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func msg(path string, rank int, text string) RawMessage {
	return RawMessage{
		SrcMLPath:   path,
		Version:     sql.NullInt64{Int64: 1, Valid: true},
		Rank:        rank,
		Start:       sql.NullString{String: "3:5", Valid: true},
		End:         sql.NullString{String: "3:9", Valid: true},
		Text:        text,
		SourceDB:    "test.sqlite3",
		CollectedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	st := NewTestStore(t)
	ctx := context.Background()

	tables, err := listTables(ctx, st.DB())
	require.NoError(t, err)
	for _, name := range []string{"messages", "sources", "sanitized_messages", "escape_errors", "enrichment_runs", "explanations", "first_messages", "schema_migrations"} {
		assert.Contains(t, tables, name)
	}

	n, err := st.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.sqlite3")
	ctx := context.Background()

	st, err := Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	_, err = st.InsertBatch(ctx, []RawMessage{msg("a.xml", 1, "';' expected")})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer st.Close()

	n, err := st.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.sqlite3")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a sqlite file "), 512), 0o644))

	_, err := Open(context.Background(), path, zap.NewNop())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpen_DirtyVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.sqlite3")
	st := NewTestStoreAt(t, path)
	_, err := st.DB().Exec(`UPDATE schema_migrations SET dirty = 1`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), path, zap.NewNop())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpen_LegacyStoreRejected(t *testing.T) {
	path := writeLegacyStore(t, "all_messages", []RawMessage{msg("a.xml", 1, "x")})

	_, err := Open(context.Background(), path, zap.NewNop())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpen_ForeignDatabaseRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.sqlite3")
	db, err := sql.Open(DriverName, path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE widgets (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), path, zap.NewNop())
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	// The file is left exactly as it was.
	db, err = sql.Open(DriverName, path)
	require.NoError(t, err)
	defer db.Close()
	tables, err := listTables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"widgets": {}}, tables)
}

func TestInsertBatch_Dedup(t *testing.T) {
	st := NewTestStore(t)
	ctx := context.Background()

	batch := []RawMessage{
		msg("srcml-2016/project-7/src-42.xml", 1, "';' expected"),
		msg("srcml-2016/project-7/src-42.xml", 2, "not a statement"),
	}
	n, err := st.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same observation from another store at another time is a duplicate.
	again := batch[0]
	again.SourceDB = "other.sqlite3"
	again.CollectedAt = time.Now()
	n, err = st.InsertBatch(ctx, []RawMessage{again})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var slice string
	var project, file int64
	err = st.DB().QueryRow(`SELECT slice, project_id, source_file_id FROM sources`).Scan(&slice, &project, &file)
	require.NoError(t, err)
	assert.Equal(t, "2016", slice)
	assert.Equal(t, int64(7), project)
	assert.Equal(t, int64(42), file)

	var first int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM first_messages`).Scan(&first))
	assert.Equal(t, 1, first)
}

func TestFingerprint(t *testing.T) {
	base := msg("a.xml", 1, "x")

	same := base
	same.SourceDB = "elsewhere"
	same.CollectedAt = time.Time{}
	assert.Equal(t, base.Fingerprint(), same.Fingerprint(), "source and time are not part of the identity")

	nullStart := base
	nullStart.Start = sql.NullString{}
	emptyStart := base
	emptyStart.Start = sql.NullString{Valid: true}
	assert.NotEqual(t, nullStart.Fingerprint(), emptyStart.Fingerprint(), "NULL must differ from empty")

	shifted := base
	shifted.SrcMLPath = "a.xm"
	shifted.Start = sql.NullString{String: "l3:5", Valid: true}
	assert.NotEqual(t, base.Fingerprint(), shifted.Fingerprint(), "field boundaries matter")

	assert.Len(t, base.Fingerprint(), 64)
}

func TestParseSrcMLPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want SourceFile
		ok   bool
	}{
		{"unix", "/data/mini/srcml-2016-09/project-123/src-456.xml", SourceFile{"2016-09", 123, 456}, true},
		{"windows", `D:\mini\srcml-a\project-1\src-2.xml`, SourceFile{"a", 1, 2}, true},
		{"wrong extension", "/data/srcml-a/project-1/src-2.java", SourceFile{}, false},
		{"missing project", "/data/srcml-a/src-2.xml", SourceFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSrcMLPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 1, 12, 30, 15, 123456789, time.FixedZone("CET", 3600))
	out, err := ParseTime(FormatTime(in))
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	// Fixed width keeps text order equal to time order.
	assert.Less(t, FormatTime(in), FormatTime(in.Add(time.Nanosecond)))
	assert.Less(t, FormatTime(in.Add(-500*time.Millisecond)), FormatTime(in))
}

func TestWithTx_RollsBack(t *testing.T) {
	st := NewTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := NewInserter(ctx, tx)
		require.NoError(t, err)
		defer in.Close()
		_, err = in.Insert(ctx, msg("a.xml", 1, "x"))
		require.NoError(t, err)
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	n, err := st.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
