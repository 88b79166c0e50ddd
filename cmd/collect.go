package cmd

import (
	"github.com/bbmini/errdb/internal/collect"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect [flags]",
	Short: "Collect compiler errors from a Blackbox Mini dataset",
	Long: `Walk a Blackbox Mini dataset (srcml-*/project-*/src-*.xml) and insert
every compiler error of every failed compilation into the store.

Messages already in the store are skipped, so collect can be re-run over a
growing dataset.

Examples:
  errdb collect --root /data/mini
  errdb collect --root /data/mini --slices 'srcml-2016-*' --limit 100
  errdb --db shard-07.sqlite3 collect --root /data/mini --slices srcml-2016-07`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().String("root", ".", "dataset root directory")
	collectCmd.Flags().String("slices", collect.DefaultSlicePattern, "glob selecting slice directories under the root")
	collectCmd.Flags().Int("limit", 0, "stop after this many projects (0 for all)")
	collectCmd.Flags().String("source", "", "name recorded as each message's source (default is the store file name)")

	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	c := collect.New(st, collect.Options{
		Root:         stringFlag(cmd, "root", cfg.Collect.Root),
		SlicePattern: stringFlag(cmd, "slices", cfg.Collect.Slices),
		ProjectLimit: intFlag(cmd, "limit", cfg.Collect.ProjectLimit),
		SourceName:   stringFlag(cmd, "source", cfg.Collect.SourceName),
		Logger:       logger,
	})

	res, err := c.Run(ctx)
	if res != nil {
		if werr := newWriter(cmd, cfg).WriteCollectResult(res); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}
