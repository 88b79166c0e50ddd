package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/bbmini/errdb/internal/config"
	"github.com/bbmini/errdb/internal/merge"
	"github.com/bbmini/errdb/internal/output"
	"github.com/bbmini/errdb/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [flags] [SOURCE...]",
	Short: "Merge other stores into the target store",
	Long: `Merge the messages of one or more source stores into the target store
(--db). A source may be an errdb store or a store written by the original
collection scripts. Messages already present are skipped, so merging the
same source twice changes nothing.

Each source is merged in its own transaction: a source that fails leaves the
target exactly as it was before that source.

With --watch, merge keeps running and merges every store that appears or
changes in the watched directory until interrupted.

Examples:
  errdb merge shard-01.sqlite3 shard-02.sqlite3
  errdb merge 'shards/*.sqlite3'
  errdb merge shards/
  errdb merge --watch incoming/`,
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().String("watch", "", "keep merging stores written to this directory")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	watchDir, _ := cmd.Flags().GetString("watch")
	if len(args) == 0 && watchDir == "" {
		return errors.New("no sources given: pass store paths or --watch DIR")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	var sources []string
	if len(args) > 0 {
		sources, err = config.ExpandStorePaths(args)
		if err != nil {
			return err
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := merge.New(st, logger)
	w := newWriter(cmd, cfg)

	if len(sources) > 0 {
		results, err := m.Merge(ctx, sources)
		if werr := w.WriteMergeResults(results); werr != nil && err == nil {
			err = werr
		}
		if err != nil {
			return err
		}
	}

	if watchDir == "" {
		return nil
	}
	return watchAndMerge(ctx, cmd, cfg, m, w, watchDir)
}

func watchAndMerge(ctx context.Context, cmd *cobra.Command, cfg *config.Config, m *merge.Merger, w *output.Writer, dir string) error {
	wt, err := watch.New(watch.Options{
		Dir:     dir,
		Pattern: cfg.Watch.Pattern,
		Settle:  cfg.Watch.Settle,
		Exclude: m.IsTarget,
		Handle: func(ctx context.Context, path string) error {
			res, err := m.MergeOne(ctx, path)
			if err != nil {
				return err
			}
			return w.WriteMergeResults([]merge.Result{res})
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if w.Format() == output.FormatText {
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for %s (Ctrl+C to stop)\n", dir, cfg.Watch.Pattern)
	}
	logger.Info("watching for stores", zap.String("dir", dir), zap.String("pattern", cfg.Watch.Pattern))
	return wt.Run(ctx)
}
