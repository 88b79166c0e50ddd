package cmd

import (
	"fmt"
	"time"

	"github.com/bbmini/errdb/internal/config"
	"github.com/bbmini/errdb/internal/report"
	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Query an enriched store",
	Long: `Run read-only queries over a store that has been enriched with
errdb enrich. Messages whose text has not been enriched are left out.`,
}

var reportTopCmd = &cobra.Command{
	Use:   "top [flags]",
	Short: "Show the most frequent sanitized messages",
	Long: `Group messages by their best sanitized form and list the groups by
size, with each group's share of all matching messages and the cumulative
share up to it.

Examples:
  errdb report top
  errdb report top --top 50 --first-only
  errdb report top --since 2016-09 --kind verbatim
  errdb report top --since 30d -f json`,
	Args: cobra.NoArgs,
	RunE: runReportTop,
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show counts describing the store",
	Args:  cobra.NoArgs,
	RunE:  runReportSummary,
}

var reportUnmatchedCmd = &cobra.Command{
	Use:   "unmatched [flags]",
	Short: "Show frequent messages no javac pattern recognises",
	Long: `List the most frequent message texts whose best sanitized form is only
masked or verbatim. These are the messages worth writing new patterns for.

Examples:
  errdb report unmatched --top 30`,
	Args: cobra.NoArgs,
	RunE: runReportUnmatched,
}

func init() {
	reportTopCmd.Flags().IntP("top", "n", 20, "number of clusters to show (0 for all)")
	reportTopCmd.Flags().Bool("first-only", false, "count only the first error of each compilation")
	reportTopCmd.Flags().String("since", "", "only messages collected since this time (e.g. 2016-09, 2016-09-01, 36h, 2w)")
	reportTopCmd.Flags().String("kind", "", "only clusters of this kind (simple, pattern, masked, verbatim)")

	reportUnmatchedCmd.Flags().IntP("top", "n", 20, "number of messages to show (0 for all)")

	reportCmd.AddCommand(reportTopCmd, reportSummaryCmd, reportUnmatchedCmd)
	rootCmd.AddCommand(reportCmd)
}

// clusterQuery builds a report.Query from the top, first-only, since and kind
// flags, falling back to cfg for the ones not given.
func clusterQuery(cmd *cobra.Command, cfg *config.Config, now time.Time) (report.Query, error) {
	q := report.Query{
		Limit:     intFlag(cmd, "top", cfg.Report.Top),
		FirstOnly: boolFlag(cmd, "first-only", cfg.Report.FirstOnly),
	}
	if q.Limit < 0 {
		return q, fmt.Errorf("--top must not be negative")
	}

	if since := stringFlag(cmd, "since", ""); since != "" {
		t, err := config.ParseSince(since, now)
		if err != nil {
			return q, fmt.Errorf("invalid --since value: %w", err)
		}
		q.Since = t
	}

	if kind := stringFlag(cmd, "kind", ""); kind != "" {
		k, err := sanitize.ParseKind(kind)
		if err != nil {
			return q, fmt.Errorf("invalid --kind value: %w", err)
		}
		q.Kind = k
	}
	return q, nil
}

func runReportTop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	q, err := clusterQuery(cmd, cfg, time.Now().UTC())
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clusters, err := report.New(st).TopClusters(ctx, q)
	if err != nil {
		return err
	}
	return newWriter(cmd, cfg).WriteClusters(clusters)
}

func runReportSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := report.New(st).Summary(ctx)
	if err != nil {
		return err
	}
	return newWriter(cmd, cfg).WriteSummary(summary)
}

func runReportUnmatched(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit := intFlag(cmd, "top", cfg.Report.Top)
	if limit < 0 {
		return fmt.Errorf("--top must not be negative")
	}
	ctx := commandContext(cmd)

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	items, err := report.New(st).Unmatched(ctx, limit)
	if err != nil {
		return err
	}
	return newWriter(cmd, cfg).WriteUnmatched(items)
}
