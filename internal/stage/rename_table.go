package stage

import (
	"fmt"
	"sort"
)

// RenameTable maps original header base names to the names a variant
// uses for them. It is filled by the Renamer and read by the Include
// Rewriter.
type RenameTable struct {
	entries map[string]string
	targets map[string]struct{}
}

// NewRenameTable returns an empty table.
func NewRenameTable() *RenameTable {
	return &RenameTable{
		entries: make(map[string]string),
		targets: make(map[string]struct{}),
	}
}

// Add records a mapping. Re-adding the same mapping is a no-op; mapping a
// name to two different targets is an error.
func (t *RenameTable) Add(from, to string) error {
	if existing, ok := t.entries[from]; ok {
		if existing != to {
			return fmt.Errorf("header '%s' is mapped to both '%s' and '%s'", from, existing, to)
		}
		return nil
	}
	t.entries[from] = to
	t.targets[to] = struct{}{}
	return nil
}

// Lookup returns the variant name of an original header name.
func (t *RenameTable) Lookup(name string) (string, bool) {
	to, ok := t.entries[name]
	return to, ok
}

// IsTarget reports whether name is the result of some mapping.
func (t *RenameTable) IsTarget(name string) bool {
	_, ok := t.targets[name]
	return ok
}

// Len returns the number of mappings.
func (t *RenameTable) Len() int {
	return len(t.entries)
}

// Entries returns the mappings sorted by original name.
func (t *RenameTable) Entries() [][2]string {
	out := make([][2]string, 0, len(t.entries))
	for from, to := range t.entries {
		out = append(out, [2]string{from, to})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Validate checks that rewriting with the table is idempotent: no rename
// target may itself be an original name that maps somewhere else.
func (t *RenameTable) Validate() error {
	for _, e := range t.Entries() {
		from, to := e[0], e[1]
		if from == to {
			continue
		}
		if next, ok := t.entries[to]; ok && next != to {
			return fmt.Errorf("rename of '%s' to '%s' is not idempotent: '%s' is itself renamed to '%s'", from, to, to, next)
		}
	}
	return nil
}
