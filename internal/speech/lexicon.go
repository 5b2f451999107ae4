// Package speech rewrites text before it is synthesized so the speech service
// pronounces abbreviations and symbols the way a listener expects.
package speech

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 30

// Lexicon is an ordered list of pronunciation rewrites loaded from a file.
//
// Each non-empty, non-comment line is either a literal rewrite
//
//	RGB => R G B
//
// matched case-insensitively, or a sed-style expression
//
//	s/(\d+)%/$1 percent/g
//
// Rewrites run in passes until the text stops changing or the pass limit is hit.
type Lexicon struct {
	entries   []rewrite
	passLimit int
}

type rewrite interface {
	rewrite(text string) (string, bool)
}

// Load reads path. A blank path or a missing file yields an empty lexicon.
func Load(path string, passLimit int) (*Lexicon, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	lex := &Lexicon{passLimit: passLimit}
	if strings.TrimSpace(path) == "" {
		return lex, nil
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return lex, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lexicon %q: %w", path, err)
	}

	entries, err := parse(string(contents))
	if err != nil {
		return nil, fmt.Errorf("parse lexicon %q: %w", path, err)
	}
	lex.entries = entries
	return lex, nil
}

// parse compiles lexicon source text.
func parse(source string) ([]rewrite, error) {
	var entries []rewrite
	for n, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			entry rewrite
			err   error
		)
		switch {
		case isSedExpr(line):
			entry, err = compileSed(line)
		case strings.Contains(line, "=>"):
			entry, err = compileLiteral(line)
		default:
			err = errors.New("unsupported rewrite format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Len reports how many rewrites are loaded.
func (l *Lexicon) Len() int {
	return len(l.entries)
}

// Apply rewrites text. It satisfies ports.TextRewriter.
func (l *Lexicon) Apply(text string) (string, error) {
	out := text
	for pass := 0; pass < l.passLimit && len(l.entries) > 0; pass++ {
		changed := false
		for _, e := range l.entries {
			if next, ok := e.rewrite(out); ok {
				out = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out, nil
}

type literal struct {
	match *regexp.Regexp
	with  string
}

func compileLiteral(line string) (rewrite, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rewrite has an empty source")
	}
	return literal{
		match: regexp.MustCompile("(?i)" + regexp.QuoteMeta(from)),
		with:  strings.TrimSpace(to),
	}, nil
}

func (r literal) rewrite(text string) (string, bool) {
	out := r.match.ReplaceAllLiteralString(text, r.with)
	return out, out != text
}

type sedExpr struct {
	match  *regexp.Regexp
	with   string
	global bool
}

func isSedExpr(line string) bool {
	return len(line) > 2 && line[0] == 's' && isDelimiter(line[1])
}

func isDelimiter(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == ' ', c == '\t', c == '\\':
		return false
	}
	return true
}

func compileSed(line string) (rewrite, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	with, flags, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, f := range strings.TrimSpace(flags) {
		switch f {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			inline += string(f)
		default:
			return nil, fmt.Errorf("unsupported flag %q", f)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return sedExpr{match: re, with: with, global: global}, nil
}

// splitDelimited returns the text up to the first unescaped delim and the remainder after it.
// Escapes other than the delimiter itself are kept for the regexp engine.
func splitDelimited(s string, delim byte) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			if s[i+1] != delim {
				b.WriteByte(c)
			}
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if c == delim {
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(c)
	}
	return "", "", errors.New("unterminated expression")
}

func (r sedExpr) rewrite(text string) (string, bool) {
	if r.global {
		out := r.match.ReplaceAllString(text, r.with)
		return out, out != text
	}
	loc := r.match.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	expanded := r.match.ExpandString(nil, r.with, text, loc)
	out := text[:loc[0]] + string(expanded) + text[loc[1]:]
	return out, out != text
}
