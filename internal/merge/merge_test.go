package merge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bbmini/errdb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func raw(path string, rank int, text string) store.RawMessage {
	return store.RawMessage{
		SrcMLPath:   path,
		Version:     sql.NullInt64{Int64: 1, Valid: true},
		Rank:        rank,
		Start:       sql.NullString{String: "1:1", Valid: true},
		End:         sql.NullString{String: "1:2", Valid: true},
		Text:        text,
		SourceDB:    "collector",
		CollectedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// makeSource writes msgs into a new store file named name inside dir.
func makeSource(t *testing.T, dir, name string, msgs ...store.RawMessage) string {
	t.Helper()
	path := filepath.Join(dir, name)
	st, err := store.Open(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	_, err = st.InsertBatch(context.Background(), msgs)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return path
}

func count(t *testing.T, st *store.Store) int {
	t.Helper()
	n, err := st.CountMessages(context.Background())
	require.NoError(t, err)
	return n
}

func TestMerge_Idempotent(t *testing.T) {
	dir := t.TempDir()
	src := makeSource(t, dir, "a.sqlite3",
		raw("p/src-1.xml", 1, "';' expected"),
		raw("p/src-1.xml", 2, "not a statement"),
	)
	target := store.NewTestStore(t)
	m := New(target, zap.NewNop())
	ctx := context.Background()

	first, err := m.Merge(ctx, []string{src})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, Result{Source: src, Read: 2, Inserted: 2}, first[0])

	second, err := m.Merge(ctx, []string{src})
	require.NoError(t, err)
	assert.Equal(t, Result{Source: src, Read: 2, Duplicates: 2}, second[0])
	assert.Equal(t, 2, count(t, target))
}

func TestMerge_UnionOfDistinctFingerprints(t *testing.T) {
	dir := t.TempDir()
	shared := raw("p/src-1.xml", 1, "cannot find symbol -   class Dcuk")
	a := makeSource(t, dir, "a.sqlite3", shared, raw("p/src-1.xml", 2, "x"))
	b := makeSource(t, dir, "b.sqlite3", shared, raw("p/src-2.xml", 1, "y"), raw("p/src-3.xml", 1, "z"))

	target := store.NewTestStore(t)
	results, err := New(target, nil).Merge(context.Background(), []string{b, a})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].Source, "sources are merged in sorted order")
	assert.Equal(t, 4, count(t, target))
	assert.Equal(t, 1, results[1].Duplicates)
}

func TestMerge_SameErrorInTwoStores(t *testing.T) {
	dir := t.TempDir()
	m := raw("srcml-x/project-1/src-1.xml", 1, "error: ';' expected")
	a := makeSource(t, dir, "a.sqlite3", m)

	other := m
	other.SourceDB = "second collector"
	other.CollectedAt = time.Now()
	b := makeSource(t, dir, "b.sqlite3", other)

	target := store.NewTestStore(t)
	_, err := New(target, nil).Merge(context.Background(), []string{a, b})
	require.NoError(t, err)

	var n int
	require.NoError(t, target.DB().QueryRow(`SELECT COUNT(*) FROM messages WHERE text = ?`, "error: ';' expected").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMerge_FailingSourceLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	good := makeSource(t, dir, "a.sqlite3", raw("p/src-1.xml", 1, "x"))
	bad := filepath.Join(dir, "b.sqlite3")
	require.NoError(t, os.WriteFile(bad, []byte(fmt.Sprintf("%01000d", 7)), 0o644))
	never := makeSource(t, dir, "c.sqlite3", raw("p/src-9.xml", 1, "never merged"))

	target := store.NewTestStore(t)
	results, err := New(target, nil).Merge(context.Background(), []string{never, bad, good})
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	require.Len(t, results, 1)
	assert.Equal(t, good, results[0].Source)
	assert.Equal(t, 1, count(t, target))
}

func TestMerge_SchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "other.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE notes (body TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	target := store.NewTestStore(t)
	_, err = New(target, nil).Merge(context.Background(), []string{path})
	assert.ErrorIs(t, err, store.ErrSchemaMismatch)
}

func TestMerge_LegacySource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mini-2016.sqlite3")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE all_messages (srcml_path TEXT, version INTEGER, rank INTEGER, start TEXT, "end" TEXT, text TEXT,
			PRIMARY KEY (srcml_path, version, rank));
		INSERT INTO all_messages VALUES ('srcml-a/project-1/src-2.xml', 3, 1, '4:1', '4:8', 'not a statement');
		INSERT INTO all_messages VALUES ('srcml-a/project-1/src-2.xml', 3, 2, '9:1', '9:3', '''else'' without ''if''');
		INSERT INTO all_messages VALUES ('srcml-a/project-1/src-3.xml', 3, NULL, NULL, NULL, 'class, interface, or enum expected');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	target := store.NewTestStore(t)
	results, err := New(target, nil).Merge(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Legacy)
	assert.Equal(t, 2, results[0].Read)
	assert.Equal(t, 2, results[0].Inserted)
	assert.Equal(t, 1, results[0].Skipped)

	var sourceDB string
	require.NoError(t, target.DB().QueryRow(`SELECT DISTINCT source_db FROM messages`).Scan(&sourceDB))
	assert.Equal(t, "mini-2016.sqlite3", sourceDB)
}

func TestMerge_Cancelled(t *testing.T) {
	dir := t.TempDir()
	src := makeSource(t, dir, "a.sqlite3", raw("p/src-1.xml", 1, "x"))
	target := store.NewTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(target, nil).Merge(ctx, []string{src})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, count(t, target))
}

func TestMerge_SkipsTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.sqlite3")
	target := store.NewTestStoreAt(t, path)

	results, err := New(target, nil).Merge(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMerge_SkipsLinksToTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "errors.sqlite3")
	target := store.NewTestStoreAt(t, path)

	symlink := filepath.Join(dir, "alias.sqlite3")
	require.NoError(t, os.Symlink(path, symlink))
	hardlink := filepath.Join(dir, "copy.sqlite3")
	require.NoError(t, os.Link(path, hardlink))

	results, err := New(target, nil).Merge(context.Background(), []string{symlink, hardlink})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.sqlite3")
	require.NoError(t, os.WriteFile(a, nil, 0o600))
	link := filepath.Join(dir, "link.sqlite3")
	require.NoError(t, os.Symlink(a, link))

	tests := []struct {
		name string
		x, y string
		want bool
	}{
		{"cleaned path", a, filepath.Join(dir, ".", "a.sqlite3"), true},
		{"symlink", link, a, true},
		{"different files", a, filepath.Join(dir, "b.sqlite3"), false},
		{"missing files compare by path", filepath.Join(dir, "gone.sqlite3"), filepath.Join(dir, "gone.sqlite3"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameFile(tt.x, tt.y))
		})
	}
}
