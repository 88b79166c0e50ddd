package output

import (
	"fmt"

	"github.com/bbmini/errdb/internal/explain"
)

// WriteExplanations outputs the explanations of an explain run.
func (wr *Writer) WriteExplanations(res *explain.Result) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(res)
	case FormatTable:
		tw := wr.table()
		fmt.Fprintln(tw, "COUNT\tPERCENT\tMODEL\tCACHED\tMESSAGE")
		fmt.Fprintln(tw, "-----\t-------\t-----\t------\t-------")
		for _, ex := range res.Explanations {
			fmt.Fprintf(tw, "%d\t%.2f%%\t%s\t%t\t%s\n", ex.Count, ex.Percent, ex.Model, ex.Cached, oneLine(ex.Sanitized))
		}
		return tw.Flush()
	}

	for i, ex := range res.Explanations {
		if i > 0 {
			wr.println()
		}
		wr.heading(ex.Sanitized)
		meta := fmt.Sprintf("%d messages, %.2f%%", ex.Count, ex.Percent)
		if ex.JavacName != "" {
			meta = ex.JavacName + ", " + meta
		}
		if wr.color {
			meta = dim(meta)
		}
		wr.println(meta)
		wr.println(ex.Text)
	}
	if res.Failed > 0 {
		if len(res.Explanations) > 0 {
			wr.println()
		}
		wr.printf("%d of %d clusters could not be explained\n", res.Failed, res.Clusters)
	}
	return nil
}

// WriteSuggestions outputs proposed javac patterns.
func (wr *Writer) WriteSuggestions(items []explain.Suggestion) error {
	if wr.format == FormatJSON {
		if items == nil {
			items = []explain.Suggestion{}
		}
		return wr.WriteJSON(items)
	}
	for i, s := range items {
		if i > 0 {
			wr.println()
		}
		wr.printf("# %d messages: %s\n", s.Count, oneLine(s.Text))
		wr.println(s.Suggestion)
	}
	return nil
}
