// Package prompt builds the messages errdb sends to a language model.
//
// Two tasks are supported:
//
//   - [TypeExplain] asks for a short explanation of a sanitized compiler
//     message aimed at a novice programmer.
//   - [TypeSuggestPattern] asks for a regular expression and signature that
//     would let the sanitizer recognise a message it currently leaves
//     unmatched.
//
// Usage:
//
//	msgs, err := prompt.Build(prompt.TypeExplain, prompt.BuildOptions{
//	    Message:   cluster.Sanitized,
//	    JavacName: cluster.JavacName,
//	})
//	if err != nil {
//	    return err
//	}
//	resp, err := provider.Chat(ctx, msgs, chatOpts)
package prompt
