// Package report runs the read-only aggregate queries over an enriched
// store.
//
// Every query groups messages by the rank-1 sanitized form of their text.
// Messages whose text has not been enriched yet do not take part.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/bbmini/errdb/internal/store"
	"github.com/jmoiron/sqlx"
)

// Query selects the clusters returned by TopClusters.
type Query struct {
	// Limit caps the number of clusters; zero returns all of them.
	Limit int

	// FirstOnly keeps only the first error of each compilation.
	FirstOnly bool

	// Since keeps only messages collected at or after this time.
	Since time.Time

	// Kind keeps only clusters whose rank-1 candidate has this kind.
	Kind sanitize.Kind
}

// Cluster is one group of messages sharing a sanitized form.
type Cluster struct {
	Position   int           `json:"position"`
	Sanitized  string        `json:"sanitized" db:"sanitized"`
	JavacName  string        `json:"javac_name,omitempty" db:"javac_name"`
	Kind       sanitize.Kind `json:"kind" db:"kind"`
	Count      int           `json:"count" db:"n"`
	Texts      int           `json:"texts" db:"texts"`
	Percent    float64       `json:"percent" db:"percent"`
	Cumulative float64       `json:"cumulative" db:"cumulative"`
}

// KindCoverage counts the messages whose rank-1 candidate has one kind.
type KindCoverage struct {
	Kind     sanitize.Kind `json:"kind" db:"kind"`
	Texts    int           `json:"texts" db:"texts"`
	Messages int           `json:"messages" db:"messages"`
	Percent  float64       `json:"percent" db:"percent"`
}

// Run describes an enrichment run.
type Run struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Texts            int       `json:"texts"`
	Candidates       int       `json:"candidates"`
	MalformedEscapes int       `json:"malformed_escapes"`
	Ambiguous        int       `json:"ambiguous"`
}

// runRow is an enrichment_runs row before its timestamps are parsed.
type runRow struct {
	ID               string `db:"id"`
	StartedAt        string `db:"started_at"`
	FinishedAt       string `db:"finished_at"`
	Texts            int    `db:"texts"`
	Candidates       int    `db:"candidates"`
	MalformedEscapes int    `db:"malformed_escapes"`
	Ambiguous        int    `db:"ambiguous"`
}

// Summary is an overview of a store.
type Summary struct {
	Messages       int            `json:"messages"`
	FirstMessages  int            `json:"first_messages"`
	Projects       int            `json:"projects"`
	DistinctTexts  int            `json:"distinct_texts"`
	Clusters       int            `json:"clusters"`
	Unenriched     int            `json:"unenriched_texts"`
	EscapeErrors   int            `json:"escape_errors"`
	Coverage       []KindCoverage `json:"coverage"`
	LastEnrichment *Run           `json:"last_enrichment,omitempty"`
}

// Unmatched is a frequent text that no javac message matched.
type Unmatched struct {
	Text      string        `json:"text" db:"text"`
	Sanitized string        `json:"sanitized" db:"sanitized"`
	Kind      sanitize.Kind `json:"kind" db:"kind"`
	Count     int           `json:"count" db:"n"`
}

// Reporter runs queries against one store.
type Reporter struct {
	db *sqlx.DB
}

// New creates a Reporter for st.
func New(st *store.Store) *Reporter {
	return &Reporter{db: sqlx.NewDb(st.DB(), store.DriverName)}
}

const topClustersQuery = `
WITH clusters AS (
	SELECT s.sanitized_text AS sanitized,
	       COUNT(*) AS n,
	       COUNT(DISTINCT m.text) AS texts,
	       MIN(s.kind) AS kind,
	       COALESCE(MAX(s.javac_name), '') AS javac_name
	FROM messages m
	JOIN sanitized_messages s ON s.text = m.text AND s.rank = 1
	WHERE (? = 0 OR m.rank = 1)
	  AND (? = '' OR m.collected_at >= ?)
	  AND (? = '' OR s.kind = ?)
	GROUP BY s.sanitized_text
)
SELECT sanitized, n, texts, kind, javac_name,
       100.0 * n / SUM(n) OVER () AS percent,
       100.0 * SUM(n) OVER (ORDER BY n DESC, sanitized ASC ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) / SUM(n) OVER () AS cumulative
FROM clusters
ORDER BY n DESC, sanitized ASC
LIMIT ?`

// TopClusters returns clusters by descending size, ties broken by sanitized
// text. Percentages are relative to all messages matched by q, so the
// cumulative percentage of the last cluster is 100 when q has no limit.
func (r *Reporter) TopClusters(ctx context.Context, q Query) ([]Cluster, error) {
	first := 0
	if q.FirstOnly {
		first = 1
	}
	since := ""
	if !q.Since.IsZero() {
		since = store.FormatTime(q.Since)
	}
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}

	var out []Cluster
	if err := r.db.SelectContext(ctx, &out, topClustersQuery, first, since, since, string(q.Kind), string(q.Kind), limit); err != nil {
		return nil, fmt.Errorf("query top clusters: %w", err)
	}
	for i := range out {
		out[i].Position = i + 1
	}
	return out, nil
}

// Summary returns counts describing the store and its last enrichment.
func (r *Reporter) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM messages`, &s.Messages},
		{`SELECT COUNT(*) FROM first_messages`, &s.FirstMessages},
		{`SELECT COUNT(DISTINCT slice || '/' || project_id) FROM sources`, &s.Projects},
		{`SELECT COUNT(DISTINCT text) FROM messages`, &s.DistinctTexts},
		{`SELECT COUNT(DISTINCT sanitized_text) FROM sanitized_messages WHERE rank = 1`, &s.Clusters},
		{`SELECT COUNT(DISTINCT m.text) FROM messages m
		  WHERE NOT EXISTS (SELECT 1 FROM sanitized_messages s WHERE s.text = m.text AND s.rank = 1)`, &s.Unenriched},
		{`SELECT COUNT(*) FROM escape_errors`, &s.EscapeErrors},
	}
	for _, c := range counts {
		if err := r.db.GetContext(ctx, c.dest, c.query); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
	}

	cov, err := r.coverage(ctx)
	if err != nil {
		return nil, err
	}
	s.Coverage = cov

	run, err := r.lastRun(ctx)
	if err != nil {
		return nil, err
	}
	s.LastEnrichment = run
	return s, nil
}

func (r *Reporter) coverage(ctx context.Context) ([]KindCoverage, error) {
	var rows []KindCoverage
	err := r.db.SelectContext(ctx, &rows, `
		SELECT s.kind AS kind,
		       COUNT(DISTINCT m.text) AS texts,
		       COUNT(*) AS messages,
		       100.0 * COUNT(*) / SUM(COUNT(*)) OVER () AS percent
		FROM messages m
		JOIN sanitized_messages s ON s.text = m.text AND s.rank = 1
		GROUP BY s.kind`)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}

	byKind := make(map[sanitize.Kind]KindCoverage, len(rows))
	for _, c := range rows {
		byKind[c.Kind] = c
	}

	out := make([]KindCoverage, 0, len(byKind))
	for _, k := range sanitize.DefaultRankOrder() {
		c, ok := byKind[k]
		if !ok {
			c = KindCoverage{Kind: k}
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Reporter) lastRun(ctx context.Context) (*Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, started_at, finished_at, texts, candidates, malformed_escapes, ambiguous
		FROM enrichment_runs ORDER BY finished_at DESC, id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last enrichment: %w", err)
	}

	run := Run{
		ID:               row.ID,
		Texts:            row.Texts,
		Candidates:       row.Candidates,
		MalformedEscapes: row.MalformedEscapes,
		Ambiguous:        row.Ambiguous,
	}
	if run.StartedAt, err = store.ParseTime(row.StartedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.FinishedAt, err = store.ParseTime(row.FinishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &run, nil
}

// Unmatched lists the most frequent texts whose best candidate is masked or
// verbatim, which is where new javac patterns are worth writing. A limit of
// zero returns all of them.
func (r *Reporter) Unmatched(ctx context.Context, limit int) ([]Unmatched, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []Unmatched
	err := r.db.SelectContext(ctx, &out, `
		SELECT m.text AS text, s.sanitized_text AS sanitized, s.kind AS kind, COUNT(*) AS n
		FROM messages m
		JOIN sanitized_messages s ON s.text = m.text AND s.rank = 1
		WHERE s.kind IN (?, ?)
		GROUP BY m.text, s.sanitized_text, s.kind
		ORDER BY n DESC, m.text ASC
		LIMIT ?`, string(sanitize.KindMasked), string(sanitize.KindVerbatim), limit)
	if err != nil {
		return nil, fmt.Errorf("query unmatched: %w", err)
	}
	return out, nil
}
