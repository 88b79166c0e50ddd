package prompt

import (
	"fmt"
	"strings"

	"github.com/bbmini/errdb/internal/llm"
)

// Build constructs the messages for pt: one system message followed by one
// user message. It returns ErrMissingField when opts.Message is empty and
// ErrUnknownType for an unsupported type.
func Build(pt PromptType, opts BuildOptions) ([]llm.Message, error) {
	if opts.Message == "" {
		return nil, missingField("Message")
	}

	var user string
	switch pt {
	case TypeExplain:
		user = buildExplainUserMessage(opts)
	case TypeSuggestPattern:
		user = buildSuggestUserMessage(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, pt)
	}

	return []llm.Message{
		{Role: "system", Content: systemPrompt(pt)},
		{Role: "user", Content: user},
	}, nil
}

func buildExplainUserMessage(opts BuildOptions) string {
	var sb strings.Builder
	sb.WriteString("Explain this javac error message:\n\n")
	sb.WriteString(opts.Message)
	sb.WriteString("\n\n")

	if opts.JavacName != "" {
		sb.WriteString(fmt.Sprintf("Compiler key: %s\n", opts.JavacName))
	}
	appendFrequency(&sb, opts)
	appendExamples(&sb, "Examples as students saw it", opts.Examples)
	return sb.String()
}

func buildSuggestUserMessage(opts BuildOptions) string {
	var sb strings.Builder
	sb.WriteString("No existing pattern matches this javac message:\n\n")
	sb.WriteString(opts.Message)
	sb.WriteString("\n\n")

	appendFrequency(&sb, opts)
	appendExamples(&sb, "Similar messages", opts.Examples)
	return sb.String()
}

func appendFrequency(sb *strings.Builder, opts BuildOptions) {
	switch {
	case opts.Count > 0 && opts.Percent > 0:
		sb.WriteString(fmt.Sprintf("Seen %d times (%.2f%% of all collected errors).\n", opts.Count, opts.Percent))
	case opts.Count > 0:
		sb.WriteString(fmt.Sprintf("Seen %d times.\n", opts.Count))
	}
}

func appendExamples(sb *strings.Builder, heading string, examples []string) {
	if len(examples) == 0 {
		return
	}
	if len(examples) > MaxExamples {
		examples = examples[:MaxExamples]
	}
	sb.WriteString("\n")
	sb.WriteString(heading)
	sb.WriteString(":\n")
	for _, ex := range examples {
		sb.WriteString("  - ")
		sb.WriteString(indentExample(ex))
		sb.WriteString("\n")
	}
}

// indentExample aligns the continuation lines of a multi-line compiler
// message under the list bullet, discarding javac's own indentation.
func indentExample(ex string) string {
	lines := strings.Split(ex, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimLeft(lines[i], " \t")
	}
	return strings.Join(lines, "\n    ")
}
