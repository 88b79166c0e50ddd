// Package store owns the single-file SQLite database that holds collected
// compiler messages and everything derived from them.
//
// Stores are versioned with golang-migrate. Open creates or upgrades a target
// store; OpenSource opens another store read-only so that it can be merged.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// SchemaVersion is the newest schema version this build understands.
const SchemaVersion uint = 1

// TimeLayout is the fixed-width UTC layout used for every timestamp column,
// so that timestamps order correctly as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Errors returned when a store cannot be used.
var (
	// ErrStoreUnavailable indicates the file is missing, unreadable or not a
	// SQLite database.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSchemaMismatch indicates the file is a SQLite database without the
	// expected tables, or with a dirty or unknown schema version.
	ErrSchemaMismatch = errors.New("store schema mismatch")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is an open message store.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (or creates) the store at path and migrates it to
// SchemaVersion.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

// migrate applies the embedded migrations. The migrate instance is not
// closed because that would close the shared *sql.DB.
func (s *Store) migrate(ctx context.Context) error {
	tables, err := listTables(ctx, s.db)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}
	if _, versioned := tables["schema_migrations"]; !versioned {
		for _, legacy := range legacyTables {
			if _, ok := tables[legacy]; ok {
				return fmt.Errorf("%w: %s has an unversioned %q table; merge it into a new store instead",
					ErrSchemaMismatch, s.path, legacy)
			}
		}
		if len(tables) > 0 {
			return fmt.Errorf("%w: %s is a SQLite database without an errdb schema (%d tables)",
				ErrSchemaMismatch, s.path, len(tables))
		}
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, s.path, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		return fmt.Errorf("%w: %s is at dirty version %d", ErrSchemaMismatch, s.path, version)
	case version > SchemaVersion:
		return fmt.Errorf("%w: %s is at version %d, this build knows %d", ErrSchemaMismatch, s.path, version, SchemaVersion)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle for read queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CountMessages returns the number of raw messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// DistinctTexts returns every distinct message text in ascending order.
func (s *Store) DistinctTexts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT text FROM messages ORDER BY text`)
	if err != nil {
		return nil, fmt.Errorf("query texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp column written with FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

func listTables(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = struct{}{}
	}
	return tables, rows.Err()
}
