// Package stage holds the in-memory records that flow through the
// transform pipeline: staged files with their forward-only transform state,
// and the per-variant header rename table.
package stage

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrStateOrder is returned when a transform is applied out of order.
var ErrStateOrder = errors.New("invalid transform state transition")

// State is the position of a staged file in the transform pipeline.
type State int

const (
	Copied State = iota + 1
	Renamed
	MacroInjected
	IncludesRewritten
	Finalized
)

var stateNames = map[State]string{
	Copied:            "copied",
	Renamed:           "renamed",
	MacroInjected:     "macro_injected",
	IncludesRewritten: "includes_rewritten",
	Finalized:         "finalized",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Kind tells compiled sources from headers.
type Kind int

const (
	Source Kind = iota
	Header
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == Header {
		return "header"
	}
	return "source"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "source":
		*k = Source
	case "header":
		*k = Header
	default:
		return fmt.Errorf("unknown file kind %q", text)
	}
	return nil
}

// File is one materialized file of a variant.
type File struct {
	// TemplatePath is the absolute path of the template it was copied from.
	TemplatePath string
	// Root is the staging subtree the file belongs to.
	Root string
	// RelPath mirrors the template layout below Root. The Renamer changes
	// its base name.
	RelPath string
	Kind    Kind
	Content []byte
	State   State
}

// DestPath is the file's final location on disk.
func (f *File) DestPath() string {
	return filepath.Join(f.Root, filepath.FromSlash(f.RelPath))
}

// Name is the file's current base name.
func (f *File) Name() string {
	return filepath.Base(filepath.FromSlash(f.RelPath))
}

// Require fails unless the file is exactly in the given state.
func (f *File) Require(s State) error {
	if f.State != s {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStateOrder, f.RelPath, f.State, s)
	}
	return nil
}

// Advance moves the file exactly one step forward to the given state.
func (f *File) Advance(to State) error {
	if to != f.State+1 {
		return fmt.Errorf("%w: %s cannot move from %s to %s", ErrStateOrder, f.RelPath, f.State, to)
	}
	f.State = to
	return nil
}
