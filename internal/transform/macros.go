package transform

import (
	"strings"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/stage"
)

// DefineLine renders a macro in NAME or NAME=VALUE form as a #define line.
func DefineLine(macro string) string {
	if name, value, ok := strings.Cut(macro, "="); ok {
		return "#define " + name + " " + value
	}
	return "#define " + macro
}

// DefineBlock renders the macros as #define lines joined by newlines, with
// no trailing newline.
func DefineBlock(macros []string) string {
	lines := make([]string, len(macros))
	for i, m := range macros {
		lines[i] = DefineLine(m)
	}
	return strings.Join(lines, "\n")
}

// InjectMacros prepends the define block and a newline to the unmodified
// content. An empty macro list still prepends the newline. It is only legal
// on a Renamed file, which is what keeps a file from ever being injected
// twice.
func InjectMacros(f *stage.File, macros []string) error {
	if err := f.Require(stage.Renamed); err != nil {
		return err
	}
	block := DefineBlock(macros) + "\n"
	content := make([]byte, 0, len(block)+len(f.Content))
	content = append(content, block...)
	f.Content = append(content, f.Content...)
	return f.Advance(stage.MacroInjected)
}

// SpecialMacrosFor returns the extra macros for a renamed file name and the
// index of the entry that supplied them, or -1. The first matching pattern
// wins and scanning stops there.
func SpecialMacrosFor(name string, specials []config.SpecialMacros) ([]string, int) {
	for i, s := range specials {
		if s.Pattern != nil && s.Pattern.MatchString(name) {
			return s.Macros, i
		}
	}
	return nil, -1
}
