package fsutil

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"Source/amd_order.c",
		"Source/amd_1.c",
		"Source/amd_1.o",
		"Include/amd.h",
		"Include/amd_internal.h",
		"Include/sub/deep.h",
	)

	t.Run("globs and literals are merged sorted and de-duplicated", func(t *testing.T) {
		matches, empty, err := Expand(root, []string{"Source/*.c", "Source/amd_1.c", "Include/**/*.h"})
		require.NoError(t, err)
		assert.Empty(t, empty)
		assert.Equal(t, []string{
			"Include/amd.h",
			"Include/amd_internal.h",
			"Include/sub/deep.h",
			"Source/amd_1.c",
			"Source/amd_order.c",
		}, matches)
	})

	t.Run("glob matching nothing is reported", func(t *testing.T) {
		matches, empty, err := Expand(root, []string{"Source/*.cpp", "Include/amd.h"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Source/*.cpp"}, empty)
		assert.Equal(t, []string{"Include/amd.h"}, matches)
	})

	t.Run("missing literal fails", func(t *testing.T) {
		_, _, err := Expand(root, []string{"Source/amd_missing.c"})
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("directory literal fails", func(t *testing.T) {
		_, _, err := Expand(root, []string{"Include"})
		assert.ErrorContains(t, err, "not a regular file")
	})

	t.Run("invalid pattern fails", func(t *testing.T) {
		_, _, err := Expand(root, []string{"Source/[*.c"})
		assert.ErrorContains(t, err, "invalid glob pattern")
	})
}

func TestFindFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "b.c", "a/x.h", "a/b/y.h")

	files, err := FindFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/y.h", "a/x.h", "b.c"}, files)

	_, err = FindFiles(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "targets.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Exists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContentCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amd.h")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	cache, err := NewContentCache(2)
	require.NoError(t, err)

	first, err := cache.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(first))

	// Mutating a returned slice must not leak into later reads.
	first[0] = 'X'

	// A cached entry is served even after the file changes on disk.
	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))
	second, err := cache.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(second))
	assert.Equal(t, 1, cache.Len())

	_, err = cache.ReadFile(filepath.Join(dir, "missing.h"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, 1, cache.Len())
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	first, err := AcquireLock(context.Background(), path)
	require.NoError(t, err)

	t.Run("contended lock honors context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := AcquireLock(ctx, path)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	require.NoError(t, first.Release())
	require.NoError(t, first.Release(), "second release is a no-op")

	second, err := AcquireLock(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}
