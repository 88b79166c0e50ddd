package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bbmini/errdb/internal/collect"
	"github.com/bbmini/errdb/internal/enrich"
	"github.com/bbmini/errdb/internal/merge"
	"github.com/bbmini/errdb/internal/sanitize"
)

// WriteMergeResults outputs one line per merged source and a total.
func (wr *Writer) WriteMergeResults(results []merge.Result) error {
	switch wr.format {
	case FormatJSON:
		if results == nil {
			results = []merge.Result{}
		}
		return wr.WriteJSON(results)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "SOURCE\tSCHEMA\tREAD\tINSERTED\tDUPLICATES")
		fmt.Fprintln(tw, "------\t------\t----\t--------\t----------")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.Source, schemaName(r.Legacy), r.Read, r.Inserted, r.Duplicates)
		}
		return tw.Flush()
	}

	var read, inserted int
	for _, r := range results {
		read += r.Read
		inserted += r.Inserted
		wr.printf("%s: %d read, %d inserted, %d duplicates", r.Source, r.Read, r.Inserted, r.Duplicates)
		if r.Skipped > 0 {
			wr.printf(", %d skipped", r.Skipped)
		}
		wr.printf(" (%s)\n", schemaName(r.Legacy))
	}
	if len(results) > 1 {
		wr.printf("Merged %d sources: %d read, %d inserted\n", len(results), read, inserted)
	}
	return nil
}

func schemaName(legacy bool) string {
	if legacy {
		return "legacy"
	}
	return "errdb"
}

// WriteCollectResult outputs what a collection run found.
func (wr *Writer) WriteCollectResult(r *collect.Result) error {
	if wr.format == FormatJSON {
		return wr.WriteJSON(r)
	}
	wr.printf("Collected %d messages from %d files (%d projects in %d slices)\n",
		r.Messages, r.Files, r.Projects, r.Slices)
	wr.printf("Inserted %d new messages\n", r.Inserted)
	if r.FailedFiles > 0 {
		line := fmt.Sprintf("Skipped %d unreadable files", r.FailedFiles)
		if wr.color {
			line = colorYellow + line + colorReset
		}
		wr.println(line)
	}
	return nil
}

// WriteEnrichSummary outputs the result of an enrichment run.
func (wr *Writer) WriteEnrichSummary(s *enrich.Summary) error {
	if wr.format == FormatJSON {
		return wr.WriteJSON(s)
	}
	wr.printf("Enriched %d texts into %d candidates in %s (run %s)\n",
		s.Texts, s.Candidates, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond), s.RunID)

	kinds := make([]sanitize.Kind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		wr.printf("  %s %d\n", wr.kind(k), s.ByKind[k])
	}
	if s.Ambiguous > 0 {
		wr.printf("%d texts matched more than one javac pattern\n", s.Ambiguous)
	}
	if s.MalformedEscapes > 0 {
		wr.printf("%d malformed escape sequences recorded\n", s.MalformedEscapes)
	}
	return nil
}

// WriteProgress outputs an enrichment progress line.
func (wr *Writer) WriteProgress(p enrich.Progress) {
	pct := 100.0
	if p.Total > 0 {
		pct = 100 * float64(p.Done) / float64(p.Total)
	}
	wr.printf("  %d/%d texts (%.0f%%)\n", p.Done, p.Total, pct)
}

// WriteAnalyses outputs the ranked candidates of each analysed message.
func (wr *Writer) WriteAnalyses(analyses []sanitize.Analysis) error {
	switch wr.format {
	case FormatJSON:
		if analyses == nil {
			analyses = []sanitize.Analysis{}
		}
		return wr.WriteJSON(analyses)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "TEXT\tRANK\tKIND\tJAVAC\tSANITIZED")
		fmt.Fprintln(tw, "----\t----\t----\t-----\t---------")
		for _, a := range analyses {
			for _, c := range a.Candidates {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", oneLine(a.Text), c.Rank, c.Kind, c.JavacName, oneLine(c.Sanitized))
			}
		}
		return tw.Flush()
	}

	for i, a := range analyses {
		if i > 0 {
			wr.println()
		}
		wr.heading(indent(a.Text, "  "))
		if a.Ambiguous {
			wr.println("  (matches more than one javac pattern)")
		}
		for _, c := range a.Candidates {
			pad := strings.Repeat(" ", 15)
			wr.printf("  %d. %s  %s\n", c.Rank, wr.kind(c.Kind), indent(c.Sanitized, pad))
			if c.JavacName != "" {
				wr.printf("%s%s\n", pad, c.JavacName)
			}
		}
	}
	return nil
}
