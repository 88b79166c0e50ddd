// Package sanitize reduces javac error messages to canonical forms so that
// messages differing only in file names, line numbers or identifiers can be
// counted together.
//
// A message is turned into a ranked list of candidates. Candidates come from
// four sources, each recorded as a Kind:
//
//   - simple: the message is a known argument-free javac message
//   - pattern: a javac MessagePattern matches and yields its signature
//   - masked: placeholder rules rewrote variable parts of the message
//   - verbatim: the message itself
//
// The rank-1 candidate is the sanitized form.
package sanitize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Kind records how a candidate was produced.
type Kind string

const (
	KindSimple   Kind = "simple"
	KindPattern  Kind = "pattern"
	KindMasked   Kind = "masked"
	KindVerbatim Kind = "verbatim"
)

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSimple, KindPattern, KindMasked, KindVerbatim:
		return k, nil
	default:
		return "", fmt.Errorf("unknown candidate kind %q", s)
	}
}

// DefaultRankOrder is the kind priority used when none is configured. Under
// this order Sanitize is idempotent.
func DefaultRankOrder() []Kind {
	return []Kind{KindSimple, KindPattern, KindMasked, KindVerbatim}
}

// Candidate is one possible sanitized form of a message.
type Candidate struct {
	Rank      int    `json:"rank"`
	Kind      Kind   `json:"kind"`
	Sanitized string `json:"sanitized"`
	JavacName string `json:"javac_name,omitempty"`
	PatternID string `json:"pattern_id,omitempty"`
}

// Analysis is the full result of sanitizing one message.
type Analysis struct {
	Text       string      `json:"text"`
	Candidates []Candidate `json:"candidates"`

	// Ambiguous is set when more than one javac pattern produced a distinct
	// candidate. The first by pattern priority is ranked highest.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Best returns the rank-1 candidate.
func (a Analysis) Best() Candidate {
	return a.Candidates[0]
}

// ErrInvalidRankOrder is returned for a rank order that does not list every
// kind exactly once.
var ErrInvalidRankOrder = errors.New("sanitize: rank order must list simple, pattern, masked and verbatim once each")

// Sanitizer computes candidates for messages. It is safe for concurrent use.
type Sanitizer struct {
	masker   *Masker
	patterns []MessagePattern
	order    map[Kind]int
	logger   *zap.Logger
}

// Option configures a Sanitizer.
type Option func(*Sanitizer) error

// WithRules selects placeholder rules by name.
func WithRules(names []string) Option {
	return func(s *Sanitizer) error {
		s.masker = NewMasker(names)
		return nil
	}
}

// WithMasker replaces the placeholder rule engine.
func WithMasker(m *Masker) Option {
	return func(s *Sanitizer) error {
		s.masker = m
		return nil
	}
}

// WithExtraPatterns appends message patterns after the built-in ones.
func WithExtraPatterns(patterns []MessagePattern) Option {
	return func(s *Sanitizer) error {
		s.patterns = append(s.patterns, patterns...)
		return nil
	}
}

// WithRankOrder sets the kind priority used to rank candidates.
func WithRankOrder(order []Kind) Option {
	return func(s *Sanitizer) error {
		if len(order) != 4 {
			return ErrInvalidRankOrder
		}
		m := make(map[Kind]int, len(order))
		for i, k := range order {
			if _, err := ParseKind(string(k)); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidRankOrder, err)
			}
			if _, dup := m[k]; dup {
				return ErrInvalidRankOrder
			}
			m[k] = i
		}
		s.order = m
		return nil
	}
}

// WithLogger sets the logger used for ambiguity diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sanitizer) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New creates a Sanitizer with the default rules, the built-in patterns and
// the default rank order, adjusted by opts.
func New(opts ...Option) (*Sanitizer, error) {
	s := &Sanitizer{
		masker:   NewMasker(nil),
		patterns: BuiltInPatterns(),
		logger:   zap.NewNop(),
	}
	if err := WithRankOrder(DefaultRankOrder())(s); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := ValidatePatterns(s.patterns); err != nil {
		return nil, err
	}
	return s, nil
}

// Patterns returns the active message patterns in priority order.
func (s *Sanitizer) Patterns() []MessagePattern {
	out := make([]MessagePattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Mask applies only the placeholder rules.
func (s *Sanitizer) Mask(text string) string {
	return s.masker.Mask(text)
}

// Sanitize returns the rank-1 sanitized form of text.
func (s *Sanitizer) Sanitize(text string) string {
	return s.Analyze(text).Best().Sanitized
}

// Analyze computes the ranked candidate list for text. The list is never
// empty: the verbatim text is always a candidate unless an identical
// candidate of a preferred kind already covers it.
func (s *Sanitizer) Analyze(text string) Analysis {
	masked := s.masker.Mask(text)

	var found []Candidate
	if name, ok := lookupSimple(text); ok {
		found = append(found, Candidate{Kind: KindSimple, Sanitized: text, JavacName: name})
	}
	if masked != text {
		if name, ok := lookupSimple(masked); ok {
			found = append(found, Candidate{Kind: KindSimple, Sanitized: masked, JavacName: name})
		}
	}
	found = append(found, s.patternCandidates(text)...)
	if masked != text {
		found = append(found, s.patternCandidates(masked)...)
		found = append(found, Candidate{Kind: KindMasked, Sanitized: masked})
	}
	found = append(found, Candidate{Kind: KindVerbatim, Sanitized: text})

	sort.SliceStable(found, func(i, j int) bool {
		return s.order[found[i].Kind] < s.order[found[j].Kind]
	})

	seen := make(map[string]struct{}, len(found))
	cands := found[:0]
	patterns := 0
	for _, c := range found {
		if _, dup := seen[c.Sanitized]; dup {
			continue
		}
		seen[c.Sanitized] = struct{}{}
		if c.Kind == KindPattern {
			patterns++
		}
		c.Rank = len(cands) + 1
		cands = append(cands, c)
	}

	a := Analysis{Text: text, Candidates: cands, Ambiguous: patterns > 1}
	if a.Ambiguous {
		ids := make([]string, 0, patterns)
		for _, c := range cands {
			if c.Kind == KindPattern {
				ids = append(ids, c.PatternID)
			}
		}
		s.logger.Debug("message matches several javac patterns",
			zap.String("text", text),
			zap.Strings("patterns", ids))
	}
	return a
}

func (s *Sanitizer) patternCandidates(text string) []Candidate {
	var out []Candidate
	for _, p := range s.patterns {
		if p.Match(text) {
			out = append(out, Candidate{
				Kind:      KindPattern,
				Sanitized: p.Signature,
				JavacName: p.JavacName(),
				PatternID: p.ID,
			})
		}
	}
	return out
}
