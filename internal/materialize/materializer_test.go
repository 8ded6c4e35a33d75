package materialize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/fsutil"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/testutil"
	"github.com/specialistvlad/variantforge/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var amdLong = variant.Spec{
	Module:     "amd",
	AxisValues: []variant.AxisValue{{Axis: "index", Value: "64"}},
	Suffix:     "l",
	Macros:     []string{"DLONG"},
	Key:        "index-64",
}

const amdLongFingerprint = "fingerprint-amd-index-64"

func amdModule(t *testing.T) *config.Module {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"Source/amd_order.c":     "#include \"amd_internal.h\"\nint amd_order(void);\n",
		"Source/amd_1.c":         "#include \"amd_internal.h\"\n",
		"Source/umf_ltsolve.c":   "/* solve */\n",
		"Include/amd.h":          "/* public */\n",
		"Include/amd_internal.h": "#include \"amd.h\"\n",
		"Doc/ignored.txt":        "not a template\n",
	})
	return &config.Module{
		Name:        "amd",
		RootDir:     root,
		SourceGlobs: []string{"Source/amd_*.c"},
		HeaderGlobs: []string{"Include/*.h"},
		Derived:     []config.Derived{{Path: "Source/umf_lhsolve.c", From: "Source/umf_ltsolve.c"}},
	}
}

func newMaterializer(t *testing.T) *Materializer {
	t.Helper()
	cache, err := fsutil.NewContentCache(16)
	require.NoError(t, err)
	return New(t.TempDir(), cache, "run-1")
}

func finalize(t *testing.T, files []*stage.File) {
	t.Helper()
	for _, f := range files {
		for f.State < stage.Finalized {
			require.NoError(t, f.Advance(f.State+1))
		}
	}
}

func TestEnumerate(t *testing.T) {
	mod := amdModule(t)
	ctx, logs := testutil.LoggerContext(t)

	t.Run("sources headers and derived entries", func(t *testing.T) {
		templates, err := Enumerate(ctx, mod)
		require.NoError(t, err)

		got := make(map[string]stage.Kind)
		for _, tpl := range templates {
			got[tpl.RelPath] = tpl.Kind
		}
		assert.Equal(t, map[string]stage.Kind{
			"Source/amd_1.c":         stage.Source,
			"Source/amd_order.c":     stage.Source,
			"Include/amd.h":          stage.Header,
			"Include/amd_internal.h": stage.Header,
			"Source/umf_lhsolve.c":   stage.Source,
		}, got)

		derived := templates[len(templates)-1]
		assert.Equal(t, filepath.Join(mod.RootDir, "Source", "umf_ltsolve.c"), derived.Path)
	})

	t.Run("empty glob is a warning", func(t *testing.T) {
		m := *mod
		m.SourceGlobs = []string{"Source/*.cpp"}
		m.Derived = nil
		_, err := Enumerate(ctx, &m)
		require.NoError(t, err)
		assert.Contains(t, logs.String(), "Glob matched no files.")
	})

	t.Run("missing root", func(t *testing.T) {
		m := *mod
		m.RootDir = filepath.Join(mod.RootDir, "nope")
		_, err := Enumerate(ctx, &m)
		assert.ErrorIs(t, err, ErrMissingTemplate)
	})

	t.Run("missing explicit entry", func(t *testing.T) {
		m := *mod
		m.SourceGlobs = []string{"Source/amd_gone.c"}
		_, err := Enumerate(ctx, &m)
		assert.ErrorIs(t, err, ErrMissingTemplate)
	})

	t.Run("missing derived template", func(t *testing.T) {
		m := *mod
		m.Derived = []config.Derived{{Path: "Source/umf_x.c", From: "Source/umf_gone.c"}}
		_, err := Enumerate(ctx, &m)
		assert.ErrorIs(t, err, ErrMissingTemplate)
	})

	t.Run("derived entry shadowing a template", func(t *testing.T) {
		m := *mod
		m.Derived = []config.Derived{{Path: "Source/amd_1.c", From: "Source/umf_ltsolve.c"}}
		_, err := Enumerate(ctx, &m)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("file listed as source and header", func(t *testing.T) {
		m := *mod
		m.HeaderGlobs = []string{"Source/amd_1.c"}
		_, err := Enumerate(ctx, &m)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestCommitAndLoad(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	mod := amdModule(t)
	mat := newMaterializer(t)

	templates, err := Enumerate(ctx, mod)
	require.NoError(t, err)

	_, hit, err := mat.Load(ctx, amdLong, amdLongFingerprint)
	require.NoError(t, err)
	require.False(t, hit)

	files, err := mat.Copy(ctx, amdLong, templates)
	require.NoError(t, err)
	for _, f := range files {
		assert.Equal(t, stage.Copied, f.State)
		assert.Equal(t, mat.SubtreeDir(amdLong), f.Root)
	}

	t.Run("commit requires finalized records", func(t *testing.T) {
		err := mat.Commit(ctx, amdLong, amdLongFingerprint, files)
		assert.ErrorIs(t, err, stage.ErrStateOrder)
		exists, _ := fsutil.Exists(mat.SubtreeDir(amdLong))
		assert.False(t, exists)
	})

	finalize(t, files)
	require.NoError(t, mat.Commit(ctx, amdLong, amdLongFingerprint, files))

	tree := testutil.ReadTree(t, mat.SubtreeDir(amdLong))
	assert.Contains(t, tree, ManifestName)
	assert.Equal(t, "/* solve */\n", tree["Source/umf_lhsolve.c"])
	assert.Len(t, tree, len(files)+1)

	loaded, hit, err := mat.Load(ctx, amdLong, amdLongFingerprint)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, loaded, len(files))
	for i, f := range loaded {
		assert.Equal(t, files[i].RelPath, f.RelPath)
		assert.Equal(t, files[i].Kind, f.Kind)
		assert.Equal(t, files[i].TemplatePath, f.TemplatePath)
		assert.Equal(t, string(files[i].Content), string(f.Content))
		assert.Equal(t, stage.Finalized, f.State)
	}

	manifest, err := ReadManifest(mat.SubtreeDir(amdLong))
	require.NoError(t, err)
	assert.Equal(t, "run-1", manifest.RunID)
	assert.Equal(t, amdLongFingerprint, manifest.Fingerprint)
}

func TestLoad_Corruption(t *testing.T) {
	setup := func(t *testing.T) (context.Context, *Materializer, string) {
		ctx, _ := testutil.LoggerContext(t)
		mod := amdModule(t)
		mat := newMaterializer(t)
		templates, err := Enumerate(ctx, mod)
		require.NoError(t, err)
		files, err := mat.Copy(ctx, amdLong, templates)
		require.NoError(t, err)
		finalize(t, files)
		require.NoError(t, mat.Commit(ctx, amdLong, amdLongFingerprint, files))
		return ctx, mat, mat.SubtreeDir(amdLong)
	}

	testCases := []struct {
		name   string
		tamper      func(t *testing.T, dir string)
		fingerprint string
	}{
		{
			name: "content changed",
			tamper: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "Include", "amd.h"), []byte("edited"), 0o644))
			},
		},
		{
			name: "file missing",
			tamper: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, "Source", "amd_1.c")))
			},
		},
		{
			name: "unexpected file",
			tamper: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "Source", "stray.c"), nil, 0o644))
			},
		},
		{
			name: "manifest missing",
			tamper: func(t *testing.T, dir string) {
				require.NoError(t, os.Remove(filepath.Join(dir, ManifestName)))
			},
		},
		{
			name: "manifest unparsable",
			tamper: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("files: [unclosed"), 0o644))
			},
		},
		{
			name:        "variant fingerprint changed",
			tamper:      func(t *testing.T, dir string) {},
			fingerprint: "fingerprint-amd-index-64-edited",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, mat, dir := setup(t)
			tc.tamper(t, dir)
			fingerprint := amdLongFingerprint
			if tc.fingerprint != "" {
				fingerprint = tc.fingerprint
			}
			_, hit, err := mat.Load(ctx, amdLong, fingerprint)
			assert.True(t, hit)
			assert.ErrorIs(t, err, ErrCorruptStaging)
			assert.ErrorContains(t, err, dir)
		})
	}
}

func TestSweepAndReset(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	mod := amdModule(t)
	mat := newMaterializer(t)

	templates, err := Enumerate(ctx, mod)
	require.NoError(t, err)
	files, err := mat.Copy(ctx, amdLong, templates)
	require.NoError(t, err)
	finalize(t, files)
	require.NoError(t, mat.Commit(ctx, amdLong, amdLongFingerprint, files))

	stale := mat.SubtreeDir(amdLong) + tmpMarker + "dead"
	require.NoError(t, os.MkdirAll(filepath.Join(stale, "Source"), 0o755))

	lock, err := mat.Acquire(ctx, amdLong)
	require.NoError(t, err)
	require.NoError(t, mat.Sweep(ctx, amdLong))
	require.NoError(t, lock.Release())

	exists, err := fsutil.Exists(stale)
	require.NoError(t, err)
	assert.False(t, exists, "interrupted commit must be swept")

	t.Run("names outside the module directory are rejected", func(t *testing.T) {
		for _, args := range [][2]string{{"", "index-64"}, {"", ""}, {"..", ""}, {"amd/..", ""}, {"amd", "../umf"}} {
			_, err := mat.Reset(ctx, args[0], args[1])
			assert.Error(t, err, args)
		}
		exists, err := fsutil.Exists(mat.SubtreeDir(amdLong))
		require.NoError(t, err)
		assert.True(t, exists)
	})

	removed, err := mat.Reset(ctx, "amd", "")
	require.NoError(t, err)
	assert.Equal(t, []string{mat.SubtreeDir(amdLong)}, removed)

	_, hit, err := mat.Load(ctx, amdLong, amdLongFingerprint)
	require.NoError(t, err)
	assert.False(t, hit)

	removed, err = mat.Reset(ctx, "amd", "")
	require.NoError(t, err)
	assert.Empty(t, removed)
}
