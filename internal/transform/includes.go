package transform

import (
	"fmt"
	"path"
	"sort"

	"github.com/specialistvlad/variantforge/internal/stage"
)

// Directive is a quoted #include found in a file. Start and End delimit the
// header name inside the content, without the quotes.
type Directive struct {
	Line  int
	Start int
	End   int
	Name  string
}

type scanState int

const (
	scanCode scanState = iota
	scanBlockComment
	scanLineComment
	scanString
	scanChar
)

// ParseIncludes returns the quoted include directives of a C source, in
// order. Text inside comments, string literals and character literals is
// never treated as a directive.
func ParseIncludes(content []byte) []Directive {
	var out []Directive
	state := scanCode
	atLineStart := true
	line := 1

	for i := 0; i < len(content); i++ {
		c := content[i]
		if c == '\n' {
			line++
			// Only block comments span lines.
			if state != scanBlockComment {
				state = scanCode
			}
			atLineStart = true
			continue
		}

		switch state {
		case scanBlockComment:
			if c == '*' && i+1 < len(content) && content[i+1] == '/' {
				state = scanCode
				i++
			}
		case scanLineComment:
		case scanString, scanChar:
			quote := byte('"')
			if state == scanChar {
				quote = '\''
			}
			if c == '\\' {
				i++
			} else if c == quote {
				state = scanCode
			}
		case scanCode:
			switch {
			case c == ' ' || c == '\t' || c == '\r':
			case c == '/' && i+1 < len(content) && content[i+1] == '*':
				state = scanBlockComment
				i++
			case c == '/' && i+1 < len(content) && content[i+1] == '/':
				state = scanLineComment
				i++
			case c == '#' && atLineStart:
				atLineStart = false
				if d, end, ok := parseIncludeAt(content, i+1); ok {
					d.Line = line
					out = append(out, d)
					i = end
				}
			case c == '"':
				atLineStart = false
				state = scanString
			case c == '\'':
				atLineStart = false
				state = scanChar
			default:
				atLineStart = false
			}
		}
	}
	return out
}

// parseIncludeAt parses `include "name"` starting right after a '#'. It
// returns the directive and the offset of the closing quote.
func parseIncludeAt(content []byte, i int) (Directive, int, bool) {
	skipBlanks := func(i int) int {
		for i < len(content) && (content[i] == ' ' || content[i] == '\t') {
			i++
		}
		return i
	}
	i = skipBlanks(i)
	const keyword = "include"
	if len(content)-i < len(keyword) || string(content[i:i+len(keyword)]) != keyword {
		return Directive{}, 0, false
	}
	i = skipBlanks(i + len(keyword))
	if i >= len(content) || content[i] != '"' {
		return Directive{}, 0, false
	}
	start := i + 1
	for j := start; j < len(content) && content[j] != '\n'; j++ {
		if content[j] == '"' {
			return Directive{Start: start, End: j, Name: string(content[start:j])}, j, true
		}
	}
	return Directive{}, 0, false
}

// Rewriter rewrites quoted include directives of one variant.
type Rewriter struct {
	table     *stage.RenameTable
	overrides map[string]string
	targets   map[string]struct{}
}

// NewRewriter builds a rewriter from the variant's header rename table and
// the include overrides that apply to the variant. Overrides take
// precedence over the table. The combined mapping must be idempotent.
func NewRewriter(table *stage.RenameTable, overrides map[string]string) (*Rewriter, error) {
	if table == nil {
		table = stage.NewRenameTable()
	}
	rw := &Rewriter{
		table:     table,
		overrides: make(map[string]string, len(overrides)),
		targets:   make(map[string]struct{}, len(overrides)),
	}
	for from, to := range overrides {
		rw.overrides[from] = to
		rw.targets[to] = struct{}{}
	}
	for from, to := range rw.overrides {
		if from == to {
			continue
		}
		if next, ok := rw.resolve(to); ok && next != to {
			return nil, fmt.Errorf("include override '%s' -> '%s' is not idempotent: '%s' is itself rewritten to '%s'", from, to, to, next)
		}
	}
	for _, e := range table.Entries() {
		from, to := e[0], e[1]
		if _, overridden := rw.overrides[from]; overridden || from == to {
			continue
		}
		if next, ok := rw.overrides[to]; ok && next != to {
			return nil, fmt.Errorf("header rename '%s' -> '%s' is not idempotent: '%s' is overridden to '%s'", from, to, to, next)
		}
	}
	return rw, nil
}

func (rw *Rewriter) resolve(name string) (string, bool) {
	if to, ok := rw.overrides[name]; ok {
		return to, true
	}
	return rw.table.Lookup(name)
}

func (rw *Rewriter) isTarget(name string) bool {
	if _, ok := rw.targets[name]; ok {
		return true
	}
	return rw.table.IsTarget(name)
}

// Rewrite returns the content with every known include replaced, plus the
// sorted, de-duplicated include names it could not resolve. Includes may
// carry a directory ("../Include/amd_internal.h"); only the base name is
// looked up and replaced.
func (rw *Rewriter) Rewrite(content []byte) ([]byte, []string) {
	directives := ParseIncludes(content)
	if len(directives) == 0 {
		return content, nil
	}

	out := make([]byte, 0, len(content)+16*len(directives))
	unresolved := make(map[string]struct{})
	last := 0
	for _, d := range directives {
		dir, base := path.Split(d.Name)
		to, ok := rw.resolve(d.Name)
		if !ok {
			if to, ok = rw.resolve(base); ok {
				to = dir + to
			}
		}
		if !ok {
			if !rw.isTarget(d.Name) && !rw.isTarget(base) {
				unresolved[d.Name] = struct{}{}
			}
			continue
		}
		out = append(out, content[last:d.Start]...)
		out = append(out, to...)
		last = d.End
	}
	out = append(out, content[last:]...)

	names := make([]string, 0, len(unresolved))
	for n := range unresolved {
		names = append(names, n)
	}
	sort.Strings(names)
	return out, names
}

// RewriteIncludes applies the rewriter to a MacroInjected file and advances
// it to IncludesRewritten. Unresolved include names are returned so the
// caller can surface them as warnings.
func RewriteIncludes(f *stage.File, rw *Rewriter) ([]string, error) {
	if err := f.Require(stage.MacroInjected); err != nil {
		return nil, err
	}
	content, unresolved := rw.Rewrite(f.Content)
	f.Content = content
	if err := f.Advance(stage.IncludesRewritten); err != nil {
		return nil, err
	}
	return unresolved, nil
}
