package cmd

import (
	"github.com/bbmini/errdb/internal/enrich"
	"github.com/bbmini/errdb/internal/output"
	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [flags]",
	Short: "Sanitize every distinct message in the store",
	Long: `Regenerate the sanitized candidates of every distinct message text in
the store. Escape sequences left by the collection scripts are decoded first
and malformed ones are recorded.

The previous results are replaced in a single transaction; an interrupted
run leaves them untouched.

Examples:
  errdb enrich
  errdb enrich --no-decode
  errdb --db merged.sqlite3 enrich --progress 5000`,
	Args: cobra.NoArgs,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().Bool("no-decode", false, "sanitize texts without decoding escape sequences")
	enrichCmd.Flags().Int("progress", enrich.DefaultProgressEvery, "report progress every N texts")

	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	decode := cfg.Enrich.DecodeEscapes
	if noDecode, _ := cmd.Flags().GetBool("no-decode"); noDecode {
		decode = false
	}

	s, err := newSanitizer(cfg)
	if err != nil {
		return err
	}

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	w := newWriter(cmd, cfg)
	opts := []enrich.Option{
		enrich.WithDecodeEscapes(decode),
		enrich.WithProgressEvery(intFlag(cmd, "progress", cfg.Enrich.ProgressEvery)),
		enrich.WithLogger(logger),
	}
	if w.Format() == output.FormatText && cfg.Verbose {
		progress := output.New(cmd.ErrOrStderr(), output.FormatText)
		opts = append(opts, enrich.WithProgress(progress.WriteProgress))
	}

	summary, err := enrich.New(s, opts...).Run(ctx, st)
	if err != nil {
		return err
	}
	return w.WriteEnrichSummary(summary)
}
