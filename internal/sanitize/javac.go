package sanitize

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// javacPrefix is the resource bundle prefix of javac error keys.
const javacPrefix = "compiler.err."

// MessagePattern maps every javac message matching Regex to one fixed
// Signature. IDs are javac resource keys without the "compiler.err." prefix,
// optionally followed by a bracketed variety, e.g. "cant.resolve[class]".
type MessagePattern struct {
	ID        string
	Regex     *regexp.Regexp
	Signature string
}

// JavacName returns the full javac resource key, without any variety.
func (p MessagePattern) JavacName() string {
	id := p.ID
	if i := strings.IndexByte(id, '['); i >= 0 {
		id = id[:i]
	}
	return javacPrefix + id
}

// Match reports whether the pattern matches text starting at its first byte.
func (p MessagePattern) Match(text string) bool {
	return p.Regex.MatchString(text)
}

// ErrInvalidPattern is returned when a message pattern is malformed or does
// not map its own signature to itself.
var ErrInvalidPattern = errors.New("sanitize: invalid message pattern")

// compilePattern anchors expr at the start of the message.
func compilePattern(id, expr, signature string) (MessagePattern, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)`)
	if err != nil {
		return MessagePattern{}, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, id, err)
	}
	return MessagePattern{ID: id, Regex: re, Signature: signature}, nil
}

func mustPattern(id, expr, signature string) MessagePattern {
	p, err := compilePattern(id, expr, signature)
	if err != nil {
		panic(err)
	}
	return p
}

// builtInPatterns are tried in order; the first match is the preferred one.
// Signatures are the messages javac produces for a small duck-themed program.
var builtInPatterns = []MessagePattern{
	mustPattern("does.not.override.abstract",
		`(\S+) is not abstract and does not override abstract method (\S+) in (\S+)$`,
		"Mallard is not abstract and does not override abstract method quack() in Duck"),
	mustPattern("array.req.but.found",
		`array required, but (\S+) found$`,
		"array required, but java.lang.String found"),
	mustPattern("operator.cant.be.applied.1",
		`bad operand types for binary operator '[^']+'`,
		"bad operand types for binary operator '+'\n  first type:  int\n  second type: boolean"),
	mustPattern("cant.access",
		`cannot access (\S+)`,
		"cannot access ducks.Mallard\nbad class file: ducks/Mallard.class(ducks:Mallard.class)\n"+
			"class file has wrong version 52.0, should be 50.0\n"+
			"Please remove or make sure it appears in the correct subdirectory of the classpath."),
	mustPattern("cant.assign.val.to.final.var",
		`cannot assign a value to final variable (\S+)$`,
		"cannot assign a value to final variable NUMBER_OF_QUACKS"),
	mustPattern("cant.resolve[class]",
		`cannot find symbol -\s+class (\S+)`,
		"cannot find symbol -   class Dcuk"),
	mustPattern("cant.resolve[method]",
		`cannot find symbol -\s+method (\S+)`,
		"cannot find symbol -   method quackk()"),
	mustPattern("cant.resolve[variable]",
		`cannot find symbol -\s+variable (\S+)`,
		"cannot find symbol -   variable scroogeMcduck"),
	mustPattern("class.public.should.be.in.file",
		`(\S+) (\S+) is public, should be declared in a file named (\S+).java$`,
		"class Mallard is public, should be declared in a file named Mallard.java"),
	mustPattern("cant.apply.symbol",
		`(\S+) (\S+) in (\S+) (\S+) cannot be applied to given types;\n`,
		"constructor Mallard in class Mallard cannot be applied to given types;\n"+
			"  required: no arguments\n  found: int\n  reason: actual and formal argument lists differ in length"),
	mustPattern("duplicate.class",
		`duplicate class: (\S+)$`,
		"duplicate class: Duck"),
	mustPattern("class.cant.write",
		`error while writing (\S+:)`,
		`error while writing Duck: C:\Program Files (x86)\BlueJ\examples\duck\Duck.class (Access is denied)`),
	mustPattern("illegal.char",
		`illegal character: `,
		"illegal character: '#'"),
	mustPattern("prob.found.req",
		`incompatible types\b`,
		"incompatible types: double cannot be converted to java.lang.Integer"),
	mustPattern("incomparable.types",
		`incomparable types: (\S+) and (\S+)`,
		"incomparable types: char and java.lang.String"),
	mustPattern("cant.deref",
		`(\S+) cannot be dereferenced`,
		"int cannot be dereferenced"),
	mustPattern("already.defined[method]",
		`method (\S+) is already defined in (\S+) (\S+)`,
		"method quack() is already defined in class Mallard"),
	mustPattern("already.defined[variable]",
		`variable (\S+) is already defined in (\S+) (\S+)`,
		"variable i is already defined in method quack()"),
	mustPattern("anonymous.diamond.method.does.not.override.superclass",
		`method does not override or implement a method from a supertype`,
		"method does not override or implement a method from a supertype"),
	mustPattern("modifier.not.allowed.here",
		`modifier (\S+) not allowed here`,
		"modifier abstract not allowed here"),
	mustPattern("cant.apply.symbols",
		`no suitable (\S+) found for (\S+)`,
		"no suitable constructor found for Duck()"),
	mustPattern("non-static.cant.be.ref",
		`non-static (\S+) (\S+) cannot be referenced from a static context`,
		"non-static method quack() cannot be referenced from a static context"),
	mustPattern("doesnt.exist",
		`package (\S+) does not exist`,
		"package DUck does not exist"),
	mustPattern("unreported.exception.need.to.catch.or.throw",
		`unreported exception (\S+); must be caught or declared to be thrown`,
		"unreported exception java.io.FileNotFoundException; must be caught or declared to be thrown"),
	mustPattern("var.might.not.have.been.initialized",
		`variable (\S+) might not have been initialized$`,
		"variable NUMBER_OF_QUACKS might not have been initialized"),
	mustPattern("var.might.already.be.assigned",
		`variable (\S+) might already have been assigned$`,
		"variable NUMBER_OF_QUACKS might already have been assigned"),
	mustPattern("type.found.req",
		`unexpected type\b`,
		"unexpected type\n  required: variable\n  found:    value"),
}

// BuiltInPatterns returns a copy of the built-in javac message patterns in
// priority order.
func BuiltInPatterns() []MessagePattern {
	out := make([]MessagePattern, len(builtInPatterns))
	copy(out, builtInPatterns)
	return out
}

// simpleMessages are javac messages without arguments, keyed by their exact
// text. Messages such as "';' expected" are deliberately absent: they carry
// an argument and only look constant.
var simpleMessages = map[string]string{
	"not a statement":                                  "not.stmt",
	"missing return statement":                         "missing.ret.stmt",
	"unreachable statement":                            "unreachable.stmt",
	"'else' without 'if'":                              "else.without.if",
	"'catch' without 'try'":                            "catch.without.try",
	"illegal start of expression":                      "illegal.start.of.expr",
	"illegal start of type":                            "illegal.start.of.type",
	"reached end of file while parsing":                "premature.eof",
	"class, interface, or enum expected":               "expected3",
	"unclosed string literal":                          "unclosed.str.lit",
	"unclosed comment":                                 "unclosed.comment",
	"unclosed character literal":                       "unclosed.char.lit",
	"empty character literal":                          "empty.char.lit",
	"invalid method declaration; return type required": "invalid.meth.decl.ret.type.req",
	"missing method body, or declare abstract":         "missing.meth.body.or.decl.abstract",
	"break outside switch or loop":                     "break.outside.switch.loop",
	"continue outside of loop":                         "cont.outside.loop",
	"'void' type not allowed here":                     "void.not.allowed.here",
	"malformed floating point literal":                 "malformed.fp.lit",
	"variable declaration not allowed here":            "variable.not.allowed",
	"array dimension missing":                          "array.dimension.missing",
	"repeated modifier":                                "repeated.modifier",
}

// lookupSimple returns the javac key for an argument-free message.
func lookupSimple(text string) (string, bool) {
	id, ok := simpleMessages[text]
	if !ok {
		return "", false
	}
	return javacPrefix + id, true
}

// ValidatePatterns checks that every pattern matches its own signature and
// that no earlier pattern claims that signature first. Both are needed for
// sanitizing a signature to give back the same signature.
func ValidatePatterns(patterns []MessagePattern) error {
	for i, p := range patterns {
		if !p.Match(p.Signature) {
			return fmt.Errorf("%w: %s does not match its signature %q", ErrInvalidPattern, p.ID, p.Signature)
		}
		for _, earlier := range patterns[:i] {
			if earlier.Match(p.Signature) {
				return fmt.Errorf("%w: signature of %s is shadowed by %s", ErrInvalidPattern, p.ID, earlier.ID)
			}
		}
	}
	return nil
}

// patternFile is the on-disk layout of a custom pattern file.
type patternFile struct {
	Patterns []struct {
		ID        string `yaml:"id"`
		Regex     string `yaml:"regex"`
		Signature string `yaml:"signature"`
	} `yaml:"patterns"`
}

// LoadPatterns reads additional message patterns from a YAML file:
//
//	patterns:
//	  - id: cant.resolve.location[class]
//	    regex: 'cannot find symbol\n  symbol:\s+class (\S+)'
//	    signature: "cannot find symbol\n  symbol:   class Dcuk"
func LoadPatterns(path string) ([]MessagePattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var pf patternFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse pattern file %s: %w", path, err)
	}

	patterns := make([]MessagePattern, 0, len(pf.Patterns))
	for i, raw := range pf.Patterns {
		if raw.ID == "" || raw.Regex == "" || raw.Signature == "" {
			return nil, fmt.Errorf("%w: entry %d needs id, regex and signature", ErrInvalidPattern, i+1)
		}
		p, err := compilePattern(raw.ID, raw.Regex, raw.Signature)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}
