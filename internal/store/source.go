package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// legacyTables are the message tables written by the original collection
// scripts, in lookup order.
var legacyTables = []string{"all_messages", "messages"}

var legacyColumns = []string{"srcml_path", "version", "rank", "start", "end", "text"}

// Source is a store opened read-only as a merge input.
type Source struct {
	db      *sql.DB
	path    string
	legacy  string
	modTime time.Time
	skipped int
}

// OpenSource opens the store at path without modifying it. Both stores
// created by Open and unversioned stores from the original scripts are
// accepted.
func OpenSource(ctx context.Context, path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrStoreUnavailable, path)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=query_only(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}
	db.SetMaxOpenConns(1)

	src := &Source{db: db, path: path, modTime: info.ModTime()}
	if err := src.detect(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return src, nil
}

func (s *Source) detect(ctx context.Context) error {
	tables, err := listTables(ctx, s.db)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}

	if _, ok := tables["schema_migrations"]; ok {
		var (
			version int64
			dirty   bool
		)
		err := s.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
		if err != nil {
			return fmt.Errorf("%w: %s: read schema version: %v", ErrSchemaMismatch, s.path, err)
		}
		if dirty || version != int64(SchemaVersion) {
			return fmt.Errorf("%w: %s is at version %d (dirty=%t), want %d", ErrSchemaMismatch, s.path, version, dirty, SchemaVersion)
		}
		if _, ok := tables["messages"]; !ok {
			return fmt.Errorf("%w: %s has no messages table", ErrSchemaMismatch, s.path)
		}
		return nil
	}

	for _, name := range legacyTables {
		if _, ok := tables[name]; !ok {
			continue
		}
		cols, err := tableColumns(ctx, s.db, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
		}
		for _, want := range legacyColumns {
			if _, ok := cols[want]; !ok {
				return fmt.Errorf("%w: %s: table %s lacks column %s", ErrSchemaMismatch, s.path, name, want)
			}
		}
		s.legacy = name
		return nil
	}

	return fmt.Errorf("%w: %s has no message table", ErrSchemaMismatch, s.path)
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// Path returns the file the source was opened from.
func (s *Source) Path() string {
	return s.path
}

// Legacy reports whether the source predates versioned stores.
func (s *Source) Legacy() bool {
	return s.legacy != ""
}

// Skipped returns how many legacy rows Each left out because a required
// column was NULL.
func (s *Source) Skipped() int {
	return s.skipped
}

// Close closes the source.
func (s *Source) Close() error {
	return s.db.Close()
}

// Each streams every message in the source to fn, stopping at the first
// error. Legacy rows are attributed to the source file and stamped with its
// modification time. Legacy rows missing a path, rank or text cannot be
// fingerprinted and are skipped; see Skipped.
func (s *Source) Each(ctx context.Context, fn func(RawMessage) error) error {
	var query string
	if s.legacy != "" {
		// s.legacy is one of legacyTables, never user input.
		query = fmt.Sprintf(`SELECT srcml_path, version, rank, start, "end", text FROM %s ORDER BY srcml_path, version, rank`, s.legacy)
	} else {
		query = `SELECT srcml_path, version, rank, start, "end", text, source_db, collected_at FROM messages ORDER BY fingerprint`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m RawMessage
		if s.legacy != "" {
			var (
				srcml, text sql.NullString
				rank        sql.NullInt64
			)
			if err := rows.Scan(&srcml, &m.Version, &rank, &m.Start, &m.End, &text); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, s.path, err)
			}
			if !srcml.Valid || !rank.Valid || !text.Valid {
				s.skipped++
				continue
			}
			m.SrcMLPath = srcml.String
			m.Rank = int(rank.Int64)
			m.Text = text.String
			m.SourceDB = filepath.Base(s.path)
			m.CollectedAt = s.modTime
		} else {
			var collected string
			if err := rows.Scan(&m.SrcMLPath, &m.Version, &m.Rank, &m.Start, &m.End, &m.Text, &m.SourceDB, &collected); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, s.path, err)
			}
			t, err := ParseTime(collected)
			if err != nil {
				return fmt.Errorf("%w: %s: collected_at %q: %v", ErrSchemaMismatch, s.path, collected, err)
			}
			m.CollectedAt = t
		}

		if err := fn(m); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}
	return nil
}
