// Package transform implements the pure per-variant transforms applied to
// staged files: renaming, macro injection and include rewriting. Nothing in
// this package touches the filesystem.
package transform

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/specialistvlad/variantforge/internal/stage"
)

// ErrDestinationCollision is returned when two staged files of one variant
// would land on the same destination.
var ErrDestinationCollision = errors.New("destination collision")

// RenameName inserts "_<suffix>" right after the longest prefix token the
// name starts with, provided the token is followed by '_' or '.'.
//
//	amd_order.c + l  -> amd_l_order.c
//	cholmod.h   + l  -> cholmod_l.h
//	colamd.c    + l  -> colamd_l.c
//
// Names without a matching token, and any name when suffix is empty, are
// returned unchanged.
func RenameName(name string, prefixes []string, suffix string) string {
	if suffix == "" {
		return name
	}
	best := ""
	for _, p := range prefixes {
		if p == "" || len(p) >= len(name) || !strings.HasPrefix(name, p) {
			continue
		}
		if next := name[len(p)]; next != '_' && next != '.' {
			continue
		}
		if len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return name
	}
	return best + "_" + suffix + name[len(best):]
}

// Rename renames every file of one variant and builds the variant's header
// rename table. All files must be in the Copied state. Nothing is modified
// if any rename would collide.
func Rename(files []*stage.File, prefixes []string, suffix string) (*stage.RenameTable, error) {
	newPaths := make([]string, len(files))
	taken := make(map[string]string, len(files))

	for i, f := range files {
		if err := f.Require(stage.Copied); err != nil {
			return nil, err
		}
		dir, name := path.Split(f.RelPath)
		newPaths[i] = dir + RenameName(name, prefixes, suffix)

		if other, dup := taken[newPaths[i]]; dup {
			return nil, fmt.Errorf("%w: '%s' and '%s' both become '%s'", ErrDestinationCollision, other, f.RelPath, newPaths[i])
		}
		taken[newPaths[i]] = f.RelPath
	}

	table := stage.NewRenameTable()
	for i, f := range files {
		if f.Kind != stage.Header {
			continue
		}
		if err := table.Add(f.Name(), path.Base(newPaths[i])); err != nil {
			return nil, err
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	for i, f := range files {
		f.RelPath = newPaths[i]
		if err := f.Advance(stage.Renamed); err != nil {
			return nil, err
		}
	}
	return table, nil
}
