// Package merge folds message stores into a target store.
//
// Each source is merged inside its own transaction on the target, so a
// source either lands completely or not at all. Rows are keyed by
// fingerprint, which makes merging idempotent: merging the same source twice
// adds nothing the second time.
package merge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bbmini/errdb/internal/store"
	"go.uber.org/zap"
)

// Result reports what merging one source did.
type Result struct {
	Source     string `json:"source"`
	Legacy     bool   `json:"legacy"`
	Read       int    `json:"read"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped,omitempty"`
}

// Merger merges sources into a target store.
type Merger struct {
	target *store.Store
	logger *zap.Logger
}

// New creates a Merger writing into target.
func New(target *store.Store, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{target: target, logger: logger}
}

// Merge merges every path in sorted order and stops at the first failing
// source. Results for sources merged before the failure are returned along
// with the error; the failing source leaves the target untouched.
// Cancellation is honoured between sources and between rows.
func (m *Merger) Merge(ctx context.Context, paths []string) ([]Result, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	results := make([]Result, 0, len(sorted))
	for _, path := range sorted {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if m.IsTarget(path) {
			m.logger.Warn("skipping target store listed as a source", zap.String("source", path))
			continue
		}

		res, err := m.MergeOne(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// MergeOne merges a single source.
func (m *Merger) MergeOne(ctx context.Context, path string) (Result, error) {
	res := Result{Source: path}

	src, err := store.OpenSource(ctx, path)
	if err != nil {
		return res, fmt.Errorf("merge %s: %w", path, err)
	}
	defer src.Close()
	res.Legacy = src.Legacy()

	err = m.target.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := store.NewInserter(ctx, tx)
		if err != nil {
			return err
		}
		defer in.Close()

		return src.Each(ctx, func(msg store.RawMessage) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Read++
			added, err := in.Insert(ctx, msg)
			if err != nil {
				return err
			}
			if added {
				res.Inserted++
			} else {
				res.Duplicates++
			}
			return nil
		})
	})
	if err != nil {
		return Result{Source: path, Legacy: res.Legacy}, fmt.Errorf("merge %s: %w", path, err)
	}

	if res.Skipped = src.Skipped(); res.Skipped > 0 {
		m.logger.Warn("skipped legacy rows with NULL path, rank or text",
			zap.String("source", path),
			zap.Int("skipped", res.Skipped))
	}

	m.logger.Info("merged source",
		zap.String("source", path),
		zap.Bool("legacy", res.Legacy),
		zap.Int("read", res.Read),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// IsTarget reports whether path names the target store, including through
// a symlink or hard link.
func (m *Merger) IsTarget(path string) bool {
	return SameFile(path, m.target.Path())
}

// SameFile reports whether a and b name the same file, falling back to
// comparing absolute paths when either cannot be stat'ed.
func SameFile(a, b string) bool {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(ia, ib)
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
