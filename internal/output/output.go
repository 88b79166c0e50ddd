// Package output renders command results in text, JSON and table formats.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Format represents an output format type.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// maxCellWidth truncates long messages in table cells.
const maxCellWidth = 80

// Writer handles writing formatted output.
type Writer struct {
	w      io.Writer
	format Format
	color  bool
}

// New creates a new output Writer. Color is off until WithColor is called.
func New(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// WithColor enables ANSI colors in text output according to mode.
func (wr *Writer) WithColor(mode ColorMode) *Writer {
	wr.color = shouldColorize(mode, wr.w)
	return wr
}

// Format returns the configured format.
func (wr *Writer) Format() Format {
	return wr.format
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (wr *Writer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
}

func (wr *Writer) printf(format string, args ...interface{}) {
	fmt.Fprintf(wr.w, format, args...)
}

func (wr *Writer) println(args ...interface{}) {
	fmt.Fprintln(wr.w, args...)
}

func (wr *Writer) heading(text string) {
	if wr.color {
		text = bold(text)
	}
	wr.println(text)
}

// oneLine makes a multi-line compiler message fit a table cell.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ⏎ ")
	return truncate(s, maxCellWidth)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// indent prefixes every line after the first with pad, so continuation
// lines of a message line up under its first line.
func indent(s, pad string) string {
	return strings.ReplaceAll(s, "\n", "\n"+pad)
}
