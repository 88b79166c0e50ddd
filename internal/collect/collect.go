// Package collect walks a Blackbox Mini dataset and inserts every compiler
// error it finds into a store.
//
// The dataset is laid out as slice directories (srcml-*), each holding
// project directories (project-*), each holding srcML files (src-*.xml).
// Message text is stored exactly as found; escape decoding happens during
// enrichment.
package collect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/bbmini/errdb/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSlicePattern matches slice directories under the dataset root.
const DefaultSlicePattern = "srcml-*"

// Options configures a collection run.
type Options struct {
	Root         string // Dataset root, e.g. /data/mini
	SlicePattern string // Glob for slice directories, DefaultSlicePattern when empty
	ProjectLimit int    // Stop after this many projects, zero for no limit
	SourceName   string // Recorded as source_db, the store's file name when empty
	Workers      int    // Files parsed at once per project, GOMAXPROCS when zero
	Logger       *zap.Logger
}

// Result summarises a collection run.
type Result struct {
	Slices      int `json:"slices"`
	Projects    int `json:"projects"`
	Files       int `json:"files"`
	FailedFiles int `json:"failed_files"`
	Messages    int `json:"messages"`
	Inserted    int `json:"inserted"`
}

// Collector inserts dataset errors into a store.
type Collector struct {
	st     *store.Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Collector writing into st.
func New(st *store.Store, opts Options) *Collector {
	if opts.SlicePattern == "" {
		opts.SlicePattern = DefaultSlicePattern
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.SourceName == "" {
		opts.SourceName = filepath.Base(st.Path())
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{st: st, opts: opts, logger: logger, now: time.Now}
}

// Run walks the dataset. Each project is inserted in its own transaction, so
// a cancelled run keeps the projects it finished. Running again over the same
// dataset inserts nothing new.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	info, err := os.Stat(c.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("dataset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset root %s is not a directory", c.opts.Root)
	}

	slices, err := filepath.Glob(filepath.Join(c.opts.Root, c.opts.SlicePattern))
	if err != nil {
		return nil, fmt.Errorf("invalid slice pattern %q: %w", c.opts.SlicePattern, err)
	}

	res := &Result{}
	collectedAt := c.now()

	for _, slice := range slices {
		if !isDir(slice) {
			c.logger.Warn("skipping non-directory slice", zap.String("path", slice))
			continue
		}
		res.Slices++

		projects, err := filepath.Glob(filepath.Join(slice, "project-*"))
		if err != nil {
			return res, err
		}
		for _, project := range projects {
			if c.opts.ProjectLimit > 0 && res.Projects >= c.opts.ProjectLimit {
				return res, nil
			}
			if !isDir(project) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			if err := c.collectProject(ctx, project, collectedAt, res); err != nil {
				return res, err
			}
			res.Projects++
		}
	}

	c.logger.Info("collection finished",
		zap.Int("slices", res.Slices),
		zap.Int("projects", res.Projects),
		zap.Int("files", res.Files),
		zap.Int("failed_files", res.FailedFiles),
		zap.Int("messages", res.Messages),
		zap.Int("inserted", res.Inserted))
	return res, nil
}

// parsed is the outcome of parsing one srcML file.
type parsed struct {
	errs []CompileError
	err  error
}

func (c *Collector) collectProject(ctx context.Context, project string, collectedAt time.Time, res *Result) error {
	files, err := filepath.Glob(filepath.Join(project, "src-*.xml"))
	if err != nil {
		return err
	}

	// Files are parsed concurrently; results keep glob order so batches are
	// reproducible.
	results := make([]parsed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			errs, err := ParseFile(path)
			results[i] = parsed{errs: errs, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var batch []store.RawMessage
	for i, path := range files {
		res.Files++
		if err := results[i].err; err != nil {
			res.FailedFiles++
			c.logger.Warn("could not parse srcML file", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, e := range results[i].errs {
			batch = append(batch, store.RawMessage{
				SrcMLPath:   path,
				Version:     e.Version,
				Rank:        e.Rank,
				Start:       e.Start,
				End:         e.End,
				Text:        e.Text,
				SourceDB:    c.opts.SourceName,
				CollectedAt: collectedAt,
			})
		}
	}
	if len(batch) == 0 {
		return nil
	}

	n, err := c.st.InsertBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", project, err)
	}
	res.Messages += len(batch)
	res.Inserted += n

	c.logger.Debug("collected project",
		zap.String("project", project),
		zap.Int("files", len(files)),
		zap.Int("messages", len(batch)),
		zap.Int("inserted", n))
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
