package output

import (
	"os"
	"strings"

	"github.com/bbmini/errdb/internal/sanitize"
	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts a --color value to a ColorMode, defaulting to auto.
func ParseColorMode(s string) ColorMode {
	switch strings.ToLower(s) {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	default:
		return ColorAuto
	}
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w interface{}) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

// ColorizeKind colors text by how well its message was recognised: green
// for simple messages, cyan for javac patterns, yellow for masked text and
// red for text left verbatim.
func ColorizeKind(kind sanitize.Kind, text string) string {
	switch kind {
	case sanitize.KindSimple:
		return colorGreen + text + colorReset
	case sanitize.KindPattern:
		return colorCyan + text + colorReset
	case sanitize.KindMasked:
		return colorYellow + text + colorReset
	case sanitize.KindVerbatim:
		return colorRed + text + colorReset
	default:
		return text
	}
}

func dim(text string) string {
	return colorGray + text + colorReset
}

func bold(text string) string {
	return colorBold + text + colorReset
}
