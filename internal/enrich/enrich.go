// Package enrich regenerates the derived sanitized_messages and escape_errors
// tables from the raw messages in a store.
//
// A run replaces the previous output in a single transaction. Cancelling a
// run before it commits leaves the previous output in place.
package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bbmini/errdb/internal/escape"
	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/bbmini/errdb/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultProgressEvery is how many texts pass between progress reports.
const DefaultProgressEvery = 1000

// Progress is reported to the caller while a run is in flight.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Summary describes a finished run.
type Summary struct {
	RunID            string                `json:"run_id"`
	StartedAt        time.Time             `json:"started_at"`
	FinishedAt       time.Time             `json:"finished_at"`
	Texts            int                   `json:"texts"`
	Candidates       int                   `json:"candidates"`
	MalformedEscapes int                   `json:"malformed_escapes"`
	Ambiguous        int                   `json:"ambiguous"`
	ByKind           map[sanitize.Kind]int `json:"by_kind"`
}

// Enricher runs the sanitizer over a store.
type Enricher struct {
	sanitizer     *sanitize.Sanitizer
	decode        bool
	progress      func(Progress)
	progressEvery int
	logger        *zap.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithProgress registers a callback invoked every WithProgressEvery texts and
// once more when all texts have been processed.
func WithProgress(fn func(Progress)) Option {
	return func(e *Enricher) { e.progress = fn }
}

// WithProgressEvery sets the progress interval. Values below one are ignored.
func WithProgressEvery(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.progressEvery = n
		}
	}
}

// WithDecodeEscapes toggles escape decoding before sanitization. It is on by
// default.
func WithDecodeEscapes(on bool) Option {
	return func(e *Enricher) { e.decode = on }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Enricher around s.
func New(s *sanitize.Sanitizer, opts ...Option) *Enricher {
	e := &Enricher{
		sanitizer:     s,
		decode:        true,
		progressEvery: DefaultProgressEvery,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run recomputes the derived tables of st. Rows are keyed by the stored text;
// sanitization sees the decoded text.
func (e *Enricher) Run(ctx context.Context, st *store.Store) (*Summary, error) {
	started := time.Now()

	texts, err := st.DistinctTexts(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Texts:     len(texts),
		ByKind:    make(map[sanitize.Kind]int),
	}
	e.logger.Info("enrichment started", zap.String("run_id", sum.RunID), zap.Int("texts", len(texts)))

	err = st.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sanitized_messages`); err != nil {
			return fmt.Errorf("clear sanitized messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM escape_errors`); err != nil {
			return fmt.Errorf("clear escape errors: %w", err)
		}

		insCand, err := tx.PrepareContext(ctx, `INSERT INTO sanitized_messages (text, rank, sanitized_text, kind, javac_name) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare candidate insert: %w", err)
		}
		defer insCand.Close()

		insEsc, err := tx.PrepareContext(ctx, `INSERT INTO escape_errors (text, byte_offset, sequence, reason) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare escape insert: %w", err)
		}
		defer insEsc.Close()

		for i, text := range texts {
			if err := ctx.Err(); err != nil {
				return err
			}

			input := text
			if e.decode {
				var bad []escape.MalformedEscape
				input, bad = escape.Decode(text)
				for _, m := range bad {
					if _, err := insEsc.ExecContext(ctx, text, m.Offset, m.Sequence, m.Reason); err != nil {
						return fmt.Errorf("record escape error: %w", err)
					}
				}
				if len(bad) > 0 {
					e.logger.Debug("malformed escapes", zap.String("text", text), zap.Int("count", len(bad)))
				}
				sum.MalformedEscapes += len(bad)
			}

			a := e.sanitizer.Analyze(input)
			if a.Ambiguous {
				sum.Ambiguous++
			}
			for _, c := range a.Candidates {
				if _, err := insCand.ExecContext(ctx, text, c.Rank, c.Sanitized, string(c.Kind), nullString(c.JavacName)); err != nil {
					return fmt.Errorf("insert candidate: %w", err)
				}
				sum.Candidates++
			}
			sum.ByKind[a.Best().Kind]++

			if done := i + 1; e.progress != nil && done%e.progressEvery == 0 && done != len(texts) {
				e.progress(Progress{Done: done, Total: len(texts)})
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		sum.FinishedAt = time.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO enrichment_runs (id, started_at, finished_at, texts, candidates, malformed_escapes, ambiguous) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, store.FormatTime(sum.StartedAt), store.FormatTime(sum.FinishedAt),
			sum.Texts, sum.Candidates, sum.MalformedEscapes, sum.Ambiguous)
		if err != nil {
			return fmt.Errorf("record enrichment run: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("enrichment rolled back", zap.String("run_id", sum.RunID), zap.Error(err))
		return nil, fmt.Errorf("enrich: %w", err)
	}

	if e.progress != nil {
		e.progress(Progress{Done: len(texts), Total: len(texts)})
	}

	e.logger.Info("enrichment finished",
		zap.String("run_id", sum.RunID),
		zap.Int("texts", sum.Texts),
		zap.Int("candidates", sum.Candidates),
		zap.Int("malformed_escapes", sum.MalformedEscapes),
		zap.Int("ambiguous", sum.Ambiguous),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)))
	return sum, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
