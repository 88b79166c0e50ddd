// Package escape decodes backslash escape sequences found in collected
// compiler messages.
//
// The Blackbox Mini exports store message text with Java and C style escapes
// still encoded (e.g. "Rat\u00f3n"). Decode turns them
// back into the characters they stand for. Sequences that cannot be decoded
// are copied through unchanged and reported as MalformedEscape values so that
// a single bad byte never discards a message.
package escape

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// MalformedEscape describes an escape sequence that could not be decoded.
type MalformedEscape struct {
	// Offset is the byte offset of the backslash in the input.
	Offset int `json:"offset"`

	// Sequence is the raw text that was left in place.
	Sequence string `json:"sequence"`

	// Reason is a short human readable explanation.
	Reason string `json:"reason"`
}

// Reasons reported in MalformedEscape.Reason.
const (
	ReasonTrailingBackslash = "trailing backslash"
	ReasonShortUnicode      = "\\u needs 4 hex digits"
	ReasonShortHex          = "\\x needs 2 hex digits"
	ReasonLoneSurrogate     = "unpaired utf-16 surrogate"
	ReasonUnknown           = "unknown escape"
)

var simple = map[byte]byte{
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'v':  '\v',
}

// Decode replaces every recognised escape sequence in s with the character it
// denotes and returns the decoded string together with the sequences it had
// to leave alone. Decoding never fails as a whole.
//
// Recognised forms are \uXXXX (with surrogate pairs), \xHH, octal \0 to \377,
// and the single character escapes \\ \' \" \a \b \f \n \r \t \v.
func Decode(s string) (string, []MalformedEscape) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}

	var (
		b   strings.Builder
		bad []MalformedEscape
	)
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}

		if i+1 >= len(s) {
			bad = append(bad, MalformedEscape{Offset: i, Sequence: `\`, Reason: ReasonTrailingBackslash})
			b.WriteByte(c)
			i++
			continue
		}

		next := s[i+1]
		switch {
		case next == 'u':
			r, n, reason := decodeUnicode(s, i)
			if reason != "" {
				bad = append(bad, MalformedEscape{Offset: i, Sequence: s[i : i+n], Reason: reason})
				b.WriteString(s[i : i+n])
			} else {
				b.WriteRune(r)
			}
			i += n

		case next == 'x':
			v, ok := hexValue(s, i+2, 2)
			if !ok {
				bad = append(bad, MalformedEscape{Offset: i, Sequence: s[i : i+2], Reason: ReasonShortHex})
				b.WriteString(s[i : i+2])
				i += 2
				continue
			}
			b.WriteRune(rune(v))
			i += 4

		case isOctal(next):
			v, n := octalValue(s, i+1)
			b.WriteRune(rune(v))
			i += 1 + n

		default:
			if d, ok := simple[next]; ok {
				b.WriteByte(d)
				i += 2
				continue
			}
			_, size := utf8.DecodeRuneInString(s[i+1:])
			bad = append(bad, MalformedEscape{Offset: i, Sequence: s[i : i+1+size], Reason: ReasonUnknown})
			b.WriteString(s[i : i+1+size])
			i += 1 + size
		}
	}

	return b.String(), bad
}

// decodeUnicode decodes the \u sequence starting at s[i]. It returns the
// rune, the number of input bytes consumed and a non-empty reason when the
// sequence is left undecoded.
func decodeUnicode(s string, i int) (rune, int, string) {
	v, ok := hexValue(s, i+2, 4)
	if !ok {
		return 0, 2, ReasonShortUnicode
	}
	r := rune(v)

	if !utf16.IsSurrogate(r) {
		return r, 6, ""
	}

	// A high surrogate must be followed by an escaped low surrogate.
	if r < 0xdc00 && i+12 <= len(s) && s[i+6] == '\\' && s[i+7] == 'u' {
		if lo, ok := hexValue(s, i+8, 4); ok {
			if pair := utf16.DecodeRune(r, rune(lo)); pair != utf8.RuneError {
				return pair, 12, ""
			}
		}
	}
	return 0, 6, ReasonLoneSurrogate
}

func hexValue(s string, start, digits int) (int, bool) {
	if start+digits > len(s) {
		return 0, false
	}
	v := 0
	for _, c := range []byte(s[start : start+digits]) {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// octalValue reads up to three octal digits starting at s[start], stopping
// early if another digit would push the value past \377.
func octalValue(s string, start int) (int, int) {
	v, n := 0, 0
	for n < 3 && start+n < len(s) && isOctal(s[start+n]) {
		nv := v*8 + int(s[start+n]-'0')
		if nv > 0o377 {
			break
		}
		v = nv
		n++
	}
	return v, n
}
