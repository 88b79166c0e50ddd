package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bbmini/errdb/internal/sanitize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSanitizeTestCmd(out *bytes.Buffer, in string) *cobra.Command {
	cmd := &cobra.Command{Use: "sanitize"}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(in))
	cmd.Flags().Bool("decode", false, "decode backslash escape sequences first")
	cmd.Flags().Bool("lines", false, "treat each line of standard input as a message")
	cmd.Flags().Bool("best", false, "print only the best sanitized form of each message")
	return cmd
}

func TestSanitizeArgs(t *testing.T) {
	viper.Reset()
	viper.Set("color", "never")

	var out bytes.Buffer
	cmd := newSanitizeTestCmd(&out, "")
	if err := runSanitize(cmd, []string{"/home/duck/Duck.java:12: error: not a statement"}); err != nil {
		t.Fatalf("runSanitize() error = %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"1. masked    <PATH>:<LINE>: error: not a statement",
		"2. verbatim  /home/duck/Duck.java:12: error: not a statement",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestSanitizeBest(t *testing.T) {
	viper.Reset()

	var out bytes.Buffer
	cmd := newSanitizeTestCmd(&out, "")
	_ = cmd.Flags().Set("best", "true")

	args := []string{"cannot find symbol -   class Strng", "not a statement"}
	if err := runSanitize(cmd, args); err != nil {
		t.Fatalf("runSanitize() error = %v", err)
	}
	want := "cannot find symbol -   class Dcuk\nnot a statement\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestSanitizeStdin(t *testing.T) {
	tests := []struct {
		name  string
		input string
		lines bool
		want  int
	}{
		{"whole input is one message", "unexpected type\n  required: variable\n  found:    value\n", false, 1},
		{"one message per line", "not a statement\n\n';' expected\r\n", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			viper.Set("format", "json")

			var out bytes.Buffer
			cmd := newSanitizeTestCmd(&out, tt.input)
			if tt.lines {
				_ = cmd.Flags().Set("lines", "true")
			}
			if err := runSanitize(cmd, nil); err != nil {
				t.Fatalf("runSanitize() error = %v", err)
			}

			var got []sanitize.Analysis
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatalf("invalid JSON: %v\n%s", err, out.String())
			}
			if len(got) != tt.want {
				t.Errorf("got %d analyses, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSanitizeDecode(t *testing.T) {
	viper.Reset()

	var out bytes.Buffer
	cmd := newSanitizeTestCmd(&out, "")
	_ = cmd.Flags().Set("decode", "true")
	_ = cmd.Flags().Set("best", "true")

	if err := runSanitize(cmd, []string{`unexpected type\n  required: variable`}); err != nil {
		t.Fatalf("runSanitize() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "unexpected type\n  required: variable\n  found:    value") {
		t.Errorf("expected the decoded message to match its pattern, got %q", out.String())
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	viper.Reset()

	var out bytes.Buffer
	if err := runSanitize(newSanitizeTestCmd(&out, "\n"), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
