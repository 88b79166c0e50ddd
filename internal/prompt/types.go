package prompt

import (
	"errors"
	"fmt"
)

// PromptType identifies the task a prompt is designed to perform.
type PromptType string

const (
	// TypeExplain explains one sanitized compiler message. Used by
	// `errdb explain`.
	TypeExplain PromptType = "explain"

	// TypeSuggestPattern proposes a javac pattern for an unmatched message.
	// Used by `errdb explain --unmatched`.
	TypeSuggestPattern PromptType = "suggest_pattern"
)

// BuildOptions holds the context for a prompt. Message is required for every
// type; the rest is optional context.
type BuildOptions struct {
	// Message is the sanitized message (TypeExplain) or the raw unmatched
	// text (TypeSuggestPattern).
	Message string

	// JavacName is the compiler.err key when the message matched a pattern.
	JavacName string

	// Count is how many collected messages share this form.
	Count int

	// Percent is Count as a share of all messages.
	Percent float64

	// Examples are raw texts that sanitized to Message. At most
	// MaxExamples are included.
	Examples []string
}

// MaxExamples caps the raw examples placed in a prompt.
const MaxExamples = 5

// ErrMissingField is returned by [Build] when a required field is absent.
var ErrMissingField = errors.New("prompt: missing required field")

// ErrUnknownType is returned by [Build] for an unsupported [PromptType].
var ErrUnknownType = errors.New("prompt: unknown prompt type")

func missingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
