// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsLiteral reports whether a pattern has no glob metacharacters and
// therefore names exactly one file.
func IsLiteral(pattern string) bool {
	return !strings.ContainsAny(pattern, "*?[{")
}

// Expand resolves glob patterns (with ** support) against root and returns
// the matching regular files as sorted, de-duplicated slash paths relative
// to root. Literal patterns must exist; a missing one fails with an error
// wrapping fs.ErrNotExist. Glob patterns that match nothing are returned
// in empty.
func Expand(root string, patterns []string) (matches []string, empty []string, err error) {
	fsys := os.DirFS(root)
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)

		if IsLiteral(pattern) {
			info, err := fs.Stat(fsys, pattern)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", filepath.Join(root, pattern), err)
			}
			if !info.Mode().IsRegular() {
				return nil, nil, fmt.Errorf("%s: not a regular file", filepath.Join(root, pattern))
			}
			if _, ok := seen[pattern]; !ok {
				seen[pattern] = struct{}{}
				matches = append(matches, pattern)
			}
			continue
		}

		if !doublestar.ValidatePattern(pattern) {
			return nil, nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, nil, fmt.Errorf("expanding %q under %s: %w", pattern, root, err)
		}
		if len(found) == 0 {
			empty = append(empty, pattern)
		}
		for _, f := range found {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				matches = append(matches, f)
			}
		}
	}

	sort.Strings(matches)
	return matches, empty, nil
}

// FindFiles recursively lists every regular file below rootPath as slash
// paths relative to rootPath, sorted.
func FindFiles(rootPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(rootPath, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
