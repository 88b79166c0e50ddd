package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bbmini/errdb/internal/escape"
	"github.com/bbmini/errdb/internal/output"
	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [flags] [TEXT...]",
	Short: "Show the sanitized candidates of compiler messages",
	Long: `Sanitize compiler messages without touching a store. Each argument is
one message; with no arguments the whole of standard input is read as one
message, or as one message per line with --lines.

Useful for checking custom patterns and masking rules before running
enrich.

Examples:
  errdb sanitize "cannot find symbol -   class Dcuk"
  errdb sanitize --best "/home/duck/Duck.java:12: error: ';' expected"
  errdb report unmatched -f json | jq -r '.[].text' | errdb sanitize --lines`,
	RunE: runSanitize,
}

func init() {
	sanitizeCmd.Flags().Bool("decode", false, "decode backslash escape sequences first")
	sanitizeCmd.Flags().Bool("lines", false, "treat each line of standard input as a message")
	sanitizeCmd.Flags().Bool("best", false, "print only the best sanitized form of each message")

	rootCmd.AddCommand(sanitizeCmd)
}

func runSanitize(cmd *cobra.Command, args []string) error {
	decode, _ := cmd.Flags().GetBool("decode")
	lines, _ := cmd.Flags().GetBool("lines")
	best, _ := cmd.Flags().GetBool("best")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	texts := args
	if len(texts) == 0 {
		texts, err = readMessages(cmd.InOrStdin(), lines)
		if err != nil {
			return err
		}
	}
	if len(texts) == 0 {
		return fmt.Errorf("no messages to sanitize")
	}

	s, err := newSanitizer(cfg)
	if err != nil {
		return err
	}

	analyses := make([]sanitize.Analysis, 0, len(texts))
	for _, text := range texts {
		if decode {
			decoded, bad := escape.Decode(text)
			for _, b := range bad {
				logger.Warn("malformed escape sequence",
					zap.Int("offset", b.Offset),
					zap.String("sequence", b.Sequence),
					zap.String("reason", b.Reason))
			}
			text = decoded
		}
		analyses = append(analyses, s.Analyze(text))
	}

	w := newWriter(cmd, cfg)
	if best && w.Format() != output.FormatJSON {
		for _, a := range analyses {
			fmt.Fprintln(cmd.OutOrStdout(), a.Best().Sanitized)
		}
		return nil
	}
	return w.WriteAnalyses(analyses)
}

func readMessages(r io.Reader, perLine bool) ([]string, error) {
	if !perLine {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read standard input: %w", err)
		}
		text := strings.TrimRight(string(data), "\r\n")
		if text == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read standard input: %w", err)
	}
	return out, nil
}
