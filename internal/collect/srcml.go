package collect

import (
	"database/sql"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CompileError is one compiler message found in a srcML file.
type CompileError struct {
	Version sql.NullInt64
	Rank    int
	Start   sql.NullString
	End     sql.NullString
	Text    string
}

type compileErrorElement struct {
	Start *string `xml:"start,attr"`
	End   *string `xml:"end,attr"`
	Text  string  `xml:",chardata"`
}

// frame tracks one open element while streaming a file.
type frame struct {
	failed  bool
	version sql.NullInt64
	rank    int
}

// ParseFile opens a srcML file and returns the compile errors in it.
func ParseFile(path string) ([]CompileError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse streams a srcML document and returns, in document order, the
// compile-error children of every nested unit whose compilation failed. Each
// unit numbers its errors from 1. The document root is never treated as a
// compilation.
func Parse(r io.Reader) ([]CompileError, error) {
	d := xml.NewDecoder(r)

	var (
		out   []CompileError
		stack []*frame
	)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "unit":
				fr := &frame{}
				if len(stack) > 0 && attr(t, "compile-success") == "false" {
					fr.failed = true
					if v := attr(t, "version"); v != "" {
						n, err := strconv.ParseInt(v, 10, 64)
						if err != nil {
							return nil, fmt.Errorf("unit version %q: %w", v, err)
						}
						fr.version = sql.NullInt64{Int64: n, Valid: true}
					}
				}
				stack = append(stack, fr)

			case "compile-error":
				parent := top(stack)
				if parent == nil || !parent.failed {
					if err := d.Skip(); err != nil {
						return nil, err
					}
					continue
				}
				var el compileErrorElement
				if err := d.DecodeElement(&el, &t); err != nil {
					return nil, err
				}
				parent.rank++
				out = append(out, CompileError{
					Version: parent.version,
					Rank:    parent.rank,
					Start:   optional(el.Start),
					End:     optional(el.End),
					Text:    el.Text,
				})

			default:
				stack = append(stack, &frame{})
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("unexpected end of document")
	}
	return out, nil
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func top(stack []*frame) *frame {
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

func optional(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
