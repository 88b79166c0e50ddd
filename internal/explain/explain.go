// Package explain asks a language model to explain the most frequent
// sanitized compiler messages and stores the answers in the store.
package explain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bbmini/errdb/internal/llm"
	"github.com/bbmini/errdb/internal/prompt"
	"github.com/bbmini/errdb/internal/report"
	"github.com/bbmini/errdb/internal/store"
	"go.uber.org/zap"
)

// DefaultTop is the number of clusters considered when none is given.
const DefaultTop = 10

// Explanation is a stored answer for one cluster.
type Explanation struct {
	Sanitized string    `json:"sanitized"`
	JavacName string    `json:"javac_name,omitempty"`
	Count     int       `json:"count"`
	Percent   float64   `json:"percent"`
	Model     string    `json:"model"`
	Text      string    `json:"explanation"`
	CreatedAt time.Time `json:"created_at"`
	Cached    bool      `json:"cached"`
}

// Result describes one Explain call.
type Result struct {
	Clusters     int           `json:"clusters"`
	Cached       int           `json:"cached"`
	Generated    int           `json:"generated"`
	Failed       int           `json:"failed"`
	Explanations []Explanation `json:"explanations"`
}

// Suggestion is a proposed javac pattern for an unmatched text.
type Suggestion struct {
	Text       string `json:"text"`
	Count      int    `json:"count"`
	Suggestion string `json:"suggestion"`
}

// Options configures an Explainer.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

// Explainer generates and caches explanations.
type Explainer struct {
	st       *store.Store
	reporter *report.Reporter
	provider llm.Provider
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an Explainer writing to st.
func New(st *store.Store, provider llm.Provider, opts Options) *Explainer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explainer{
		st:       st,
		reporter: report.New(st),
		provider: provider,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Check verifies that the provider is reachable and the model is installed.
func (e *Explainer) Check(ctx context.Context) error {
	if err := e.provider.Heartbeat(ctx); err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	if e.opts.Model == "" {
		return nil
	}
	ok, err := e.provider.ModelAvailable(ctx, e.opts.Model)
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	if !ok {
		return fmt.Errorf("explain: %w: %s (pull it with: ollama pull %s)", llm.ErrModelNotFound, e.opts.Model, e.opts.Model)
	}
	return nil
}

// Explain makes sure each of the top clusters matched by q has an
// explanation. Stored explanations are reused. A cluster whose request fails
// is logged and skipped; cancellation stops the call.
func (e *Explainer) Explain(ctx context.Context, q report.Query) (*Result, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultTop
	}
	clusters, err := e.reporter.TopClusters(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}

	res := &Result{Clusters: len(clusters)}
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("explain: %w", err)
		}

		stored, err := e.lookup(ctx, c.Sanitized)
		if err != nil {
			return res, fmt.Errorf("explain: %w", err)
		}
		if stored != nil {
			stored.Count, stored.Percent = c.Count, c.Percent
			res.Cached++
			res.Explanations = append(res.Explanations, *stored)
			continue
		}

		ex, err := e.generate(ctx, c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("explain: %w", ctxErr)
			}
			e.logger.Warn("explanation failed",
				zap.String("sanitized", c.Sanitized),
				zap.Error(err))
			res.Failed++
			continue
		}
		res.Generated++
		res.Explanations = append(res.Explanations, *ex)
	}

	e.logger.Info("explain finished",
		zap.Int("clusters", res.Clusters),
		zap.Int("cached", res.Cached),
		zap.Int("generated", res.Generated),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (e *Explainer) generate(ctx context.Context, c report.Cluster) (*Explanation, error) {
	examples, err := e.examples(ctx, c.Sanitized)
	if err != nil {
		return nil, err
	}
	msgs, err := prompt.Build(prompt.TypeExplain, prompt.BuildOptions{
		Message:   c.Sanitized,
		JavacName: c.JavacName,
		Count:     c.Count,
		Percent:   c.Percent,
		Examples:  examples,
	})
	if err != nil {
		return nil, err
	}

	resp, err := e.provider.Chat(ctx, msgs, e.chatOptions())
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, errors.New("empty response")
	}
	model := e.opts.Model
	if model == "" {
		model = resp.Model
	}

	ex := &Explanation{
		Sanitized: c.Sanitized,
		JavacName: c.JavacName,
		Count:     c.Count,
		Percent:   c.Percent,
		Model:     model,
		Text:      text,
		CreatedAt: e.now().UTC(),
	}
	_, err = e.st.DB().ExecContext(ctx, `
		INSERT OR REPLACE INTO explanations (sanitized_text, javac_name, model, explanation, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ex.Sanitized, nullString(ex.JavacName), ex.Model, ex.Text, store.FormatTime(ex.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("store explanation: %w", err)
	}
	return ex, nil
}

// Suggest proposes javac patterns for the limit most frequent unmatched
// texts. Suggestions are not stored.
func (e *Explainer) Suggest(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = DefaultTop
	}
	unmatched, err := e.reporter.Unmatched(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	var out []Suggestion
	for _, u := range unmatched {
		msgs, err := prompt.Build(prompt.TypeSuggestPattern, prompt.BuildOptions{
			Message: u.Text,
			Count:   u.Count,
		})
		if err != nil {
			return out, fmt.Errorf("suggest: %w", err)
		}
		resp, err := e.provider.Chat(ctx, msgs, e.chatOptions())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, fmt.Errorf("suggest: %w", ctxErr)
			}
			e.logger.Warn("suggestion failed", zap.String("text", u.Text), zap.Error(err))
			continue
		}
		out = append(out, Suggestion{
			Text:       u.Text,
			Count:      u.Count,
			Suggestion: strings.TrimSpace(resp.Content),
		})
	}
	return out, nil
}

// Stored returns every stored explanation ordered by sanitized text.
func (e *Explainer) Stored(ctx context.Context) ([]Explanation, error) {
	rows, err := e.st.DB().QueryContext(ctx, `
		SELECT sanitized_text, javac_name, model, explanation, created_at
		FROM explanations
		ORDER BY sanitized_text`)
	if err != nil {
		return nil, fmt.Errorf("query explanations: %w", err)
	}
	defer rows.Close()

	var out []Explanation
	for rows.Next() {
		ex, err := scanExplanation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ex)
	}
	return out, rows.Err()
}

func (e *Explainer) lookup(ctx context.Context, sanitized string) (*Explanation, error) {
	row := e.st.DB().QueryRowContext(ctx, `
		SELECT sanitized_text, javac_name, model, explanation, created_at
		FROM explanations
		WHERE sanitized_text = ?`, sanitized)
	ex, err := scanExplanation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ex.Cached = true
	return ex, nil
}

// examples returns a few raw texts that sanitize to sanitized.
func (e *Explainer) examples(ctx context.Context, sanitized string) ([]string, error) {
	rows, err := e.st.DB().QueryContext(ctx, `
		SELECT text FROM sanitized_messages
		WHERE rank = 1 AND sanitized_text = ?
		ORDER BY text
		LIMIT ?`, sanitized, prompt.MaxExamples)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

func (e *Explainer) chatOptions() *llm.ChatOptions {
	return &llm.ChatOptions{
		Model:       e.opts.Model,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExplanation(s scanner) (*Explanation, error) {
	var (
		ex      Explanation
		javac   sql.NullString
		created string
	)
	if err := s.Scan(&ex.Sanitized, &javac, &ex.Model, &ex.Text, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan explanation: %w", err)
	}
	ex.JavacName = javac.String
	t, err := store.ParseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	ex.CreatedAt = t
	return &ex, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
