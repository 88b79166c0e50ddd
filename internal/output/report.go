package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/bbmini/errdb/internal/report"
	"github.com/bbmini/errdb/internal/sanitize"
)

func (wr *Writer) kind(k sanitize.Kind) string {
	s := fmt.Sprintf("%-8s", k)
	if wr.color {
		return ColorizeKind(k, s)
	}
	return s
}

// WriteClusters outputs the result of a top clusters query.
func (wr *Writer) WriteClusters(clusters []report.Cluster) error {
	switch wr.format {
	case FormatJSON:
		if clusters == nil {
			clusters = []report.Cluster{}
		}
		return wr.WriteJSON(clusters)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "POS\tCOUNT\tPERCENT\tCUMULATIVE\tKIND\tJAVAC\tMESSAGE")
		fmt.Fprintln(tw, "---\t-----\t-------\t----------\t----\t-----\t-------")
		for _, c := range clusters {
			fmt.Fprintf(tw, "%d\t%d\t%.2f%%\t%.2f%%\t%s\t%s\t%s\n",
				c.Position, c.Count, c.Percent, c.Cumulative, c.Kind, c.JavacName, oneLine(c.Sanitized))
		}
		return tw.Flush()
	}

	if len(clusters) == 0 {
		wr.println("No enriched messages matched. Run `errdb enrich` first.")
		return nil
	}
	for _, c := range clusters {
		prefix := fmt.Sprintf("%4d. %7d %6.2f%% %6.2f%%  ", c.Position, c.Count, c.Percent, c.Cumulative)
		wr.printf("%s%s  %s\n", prefix, wr.kind(c.Kind), indent(c.Sanitized, strings.Repeat(" ", len(prefix)+10)))
		if c.JavacName != "" {
			javac := c.JavacName
			if wr.color {
				javac = dim(javac)
			}
			wr.printf("%s%s\n", strings.Repeat(" ", len(prefix)+10), javac)
		}
	}
	return nil
}

// WriteSummary outputs a store summary.
func (wr *Writer) WriteSummary(s *report.Summary) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(s)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "METRIC\tVALUE")
		fmt.Fprintln(tw, "------\t-----")
		fmt.Fprintf(tw, "messages\t%d\n", s.Messages)
		fmt.Fprintf(tw, "first messages\t%d\n", s.FirstMessages)
		fmt.Fprintf(tw, "projects\t%d\n", s.Projects)
		fmt.Fprintf(tw, "distinct texts\t%d\n", s.DistinctTexts)
		fmt.Fprintf(tw, "clusters\t%d\n", s.Clusters)
		fmt.Fprintf(tw, "unenriched texts\t%d\n", s.Unenriched)
		fmt.Fprintf(tw, "escape errors\t%d\n", s.EscapeErrors)
		for _, c := range s.Coverage {
			fmt.Fprintf(tw, "%s\t%d (%.2f%%)\n", c.Kind, c.Messages, c.Percent)
		}
		return tw.Flush()
	}

	wr.heading("Store")
	wr.printf("  Messages:        %d (%d first errors)\n", s.Messages, s.FirstMessages)
	wr.printf("  Projects:        %d\n", s.Projects)
	wr.printf("  Distinct texts:  %d\n", s.DistinctTexts)
	wr.printf("  Clusters:        %d\n", s.Clusters)
	if s.Unenriched > 0 {
		wr.printf("  Unenriched:      %d texts, run `errdb enrich`\n", s.Unenriched)
	}
	wr.printf("  Escape errors:   %d\n", s.EscapeErrors)

	wr.println()
	wr.heading("Coverage")
	for _, c := range s.Coverage {
		wr.printf("  %s %7d messages %6.2f%%  (%d texts)\n", wr.kind(c.Kind), c.Messages, c.Percent, c.Texts)
	}

	wr.println()
	wr.heading("Last enrichment")
	if s.LastEnrichment == nil {
		wr.println("  never")
		return nil
	}
	run := s.LastEnrichment
	wr.printf("  %s  %s (%s)\n", run.ID, run.FinishedAt.Format("2006-01-02 15:04:05"), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	wr.printf("  %d texts, %d candidates, %d ambiguous, %d malformed escapes\n",
		run.Texts, run.Candidates, run.Ambiguous, run.MalformedEscapes)
	return nil
}

// WriteUnmatched outputs frequent texts no javac message recognised.
func (wr *Writer) WriteUnmatched(items []report.Unmatched) error {
	switch wr.format {
	case FormatJSON:
		if items == nil {
			items = []report.Unmatched{}
		}
		return wr.WriteJSON(items)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "COUNT\tKIND\tSANITIZED")
		fmt.Fprintln(tw, "-----\t----\t---------")
		for _, u := range items {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", u.Count, u.Kind, oneLine(u.Sanitized))
		}
		return tw.Flush()
	}

	if len(items) == 0 {
		wr.println("Every enriched message matched a javac message.")
		return nil
	}
	for _, u := range items {
		wr.printf("%7d  %s  %s\n", u.Count, wr.kind(u.Kind), indent(u.Text, strings.Repeat(" ", 19)))
	}
	return nil
}
