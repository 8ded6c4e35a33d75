package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/fsutil"
	"github.com/specialistvlad/variantforge/internal/materialize"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/testutil"
	"github.com/specialistvlad/variantforge/internal/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newPipeline(t *testing.T, p *config.Project, workers int) (*Pipeline, *materialize.Materializer) {
	t.Helper()
	cache, err := fsutil.NewContentCache(0)
	require.NoError(t, err)
	mat := materialize.New(p.StagingRoot, cache, "test-run")
	return New(mat, workers), mat
}

func stagedTree(t *testing.T, p *config.Project) map[string]string {
	t.Helper()
	tree := testutil.ReadTree(t, p.StagingRoot)
	for name := range tree {
		if strings.HasSuffix(name, ".lock") {
			delete(tree, name)
		}
	}
	return tree
}

func TestBuildPlan(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, logs := testutil.LoggerContext(t)
	_, mat := newPipeline(t, p, 1)

	plan, err := BuildPlan(ctx, p, mat)
	require.NoError(t, err)
	require.Len(t, plan.Modules, 4)

	cfg, ok := plan.Module("suitesparseconfig")
	require.True(t, ok)
	assert.Empty(t, cfg.Variants, "a module without axes has no variants")

	amd, ok := plan.Module("amd")
	require.True(t, ok)
	require.Len(t, amd.Variants, 2)
	long := amd.Variants[1]
	assert.Equal(t, "index-64", long.Spec.Key)
	var dests []string
	for _, f := range long.Files {
		dests = append(dests, f.Dest)
	}
	assert.ElementsMatch(t, []string{"Source/amd_l_order.c", "Source/amd_l_1.c", "Include/amd_l_internal.h"}, dests)

	chol, _ := plan.Module("cholmod_check")
	assert.Empty(t, chol.Variants[0].Overrides, "override is restricted to suffix l")
	assert.Equal(t, map[string]string{"cholmod_internal.h": "cholmod_l_internal.h"}, chol.Variants[1].Overrides)

	assert.Contains(t, logs.String(), "Special macro pattern applies to no files.")
	assert.Contains(t, logs.String(), "umf_never_matches")

	exists, err := fsutil.Exists(p.StagingRoot)
	require.NoError(t, err)
	assert.False(t, exists, "planning must not touch the staging area")
}

func TestBuildPlan_CollisionsBeforeFilesystemWork(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	amd, _ := p.Module("amd")
	amd.Naming = config.NamingFunc(func(map[string]string) (string, []string, error) {
		return "l", []string{"DLONG"}, nil
	})
	ctx, _ := testutil.LoggerContext(t)
	pl, _ := newPipeline(t, p, 2)

	_, err := pl.Run(ctx, p)
	require.ErrorIs(t, err, variant.ErrNamingCollision)

	exists, err := fsutil.Exists(p.StagingRoot)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_ScenarioB_SecondRunIsNoop(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, logs := testutil.LoggerContext(t)
	pl, _ := newPipeline(t, p, 4)

	first, err := pl.Run(ctx, p)
	require.NoError(t, err)
	for _, variants := range first.Variants {
		for _, v := range variants {
			assert.False(t, v.Cached)
		}
	}
	before := stagedTree(t, p)

	order := before["amd/index-64/Source/amd_l_order.c"]
	assert.Equal(t, "#define DLONG\n/* AMD ordering */\n#include \"amd_l_internal.h\"\nint amd_order(void) { return 0; }\n", order)
	assert.Equal(t, "#define DLONG\n#include \"amd.h\"\n#include \"SuiteSparse_config.h\"\n", before["amd/index-64/Include/amd_l_internal.h"])
	assert.Contains(t, logs.String(), "Include is not in the rename table, left unchanged.")

	second, err := pl.Run(ctx, p)
	require.NoError(t, err)
	for _, variants := range second.Variants {
		for _, v := range variants {
			assert.True(t, v.Cached, v.Planned.Spec.String())
			for _, f := range v.Files {
				assert.Equal(t, stage.Finalized, f.State)
			}
		}
	}

	after := stagedTree(t, p)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, strings.Count(after["amd/index-64/Source/amd_l_order.c"], "#define DLONG"))
}

func TestRun_ScenarioC_RestrictedOverride(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, _ := testutil.LoggerContext(t)
	pl, _ := newPipeline(t, p, 2)

	_, err := pl.Run(ctx, p)
	require.NoError(t, err)
	tree := stagedTree(t, p)

	assert.Equal(t,
		"#define DLONG\n#include \"cholmod_l_internal.h\"\nint cholmod_check(void);\n",
		tree["cholmod_check/index-64/Check/cholmod_l_check.c"])
	assert.Equal(t,
		"\n"+testutil.SuiteSparseTree["CHOLMOD/Check/cholmod_check.c"],
		tree["cholmod_check/index-32/Check/cholmod_check.c"],
		"an empty define block still prepends its newline")
}

func TestRun_DerivedFilesAndSpecialMacros(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, _ := testutil.LoggerContext(t)
	pl, _ := newPipeline(t, p, 2)

	res, err := pl.Run(ctx, p)
	require.NoError(t, err)
	tree := stagedTree(t, p)

	assert.Equal(t, "#define ZLONG\n/* solve */\n", tree["umf/type-zl/Source/umf_zl_ltsolve.c"])
	assert.Equal(t, "#define ZLONG\n#define CONJUGATE_SOLVE\n/* solve */\n", tree["umf/type-zl/Source/umf_zl_lhsolve.c"])
	assert.Equal(t, "#define DINT\n#define CONJUGATE_SOLVE\n/* solve */\n", tree["umf/type-di/Source/umf_di_lhsolve.c"])

	umf := res.Variants["umf"]
	require.Len(t, umf, 2)
	for _, v := range umf {
		assert.Len(t, v.Planned.Spec.Macros, 1, "special macros never leak into the variant")
		assert.Equal(t, filepath.Join(p.StagingRoot, "umf", v.Planned.Spec.Key), v.Planned.Dir)
	}
}

func TestRun_CorruptionIsFatal(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, _ := testutil.LoggerContext(t)
	pl, mat := newPipeline(t, p, 2)

	_, err := pl.Run(ctx, p)
	require.NoError(t, err)

	testutil.WriteTree(t, p.StagingRoot, map[string]string{
		"amd/index-32/Source/amd_i_1.c": "tampered\n",
	})

	_, err = pl.Run(ctx, p)
	require.ErrorIs(t, err, materialize.ErrCorruptStaging)
	assert.ErrorContains(t, err, filepath.Join(p.StagingRoot, "amd", "index-32"))

	amd, _ := p.Module("amd")
	specs, err := variant.Plan(amd)
	require.NoError(t, err)
	removed, err := mat.Reset(ctx, "amd", specs[0].Key)
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	res, err := pl.Run(ctx, p)
	require.NoError(t, err)
	assert.False(t, res.Variants["amd"][0].Cached)
	assert.True(t, res.Variants["amd"][1].Cached)
}

func TestRun_ChangedModuleSettingsInvalidateSubtrees(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	ctx, _ := testutil.LoggerContext(t)
	pl, _ := newPipeline(t, p, 2)

	_, err := pl.Run(ctx, p)
	require.NoError(t, err)

	umf, _ := p.Module("umf")
	require.NotEmpty(t, umf.SpecialMacros)
	umf.SpecialMacros[0].Macros = []string{"CONJUGATE_SOLVE", "NRECIPROCAL"}

	_, err = pl.Run(ctx, p)
	require.ErrorIs(t, err, materialize.ErrCorruptStaging)
	assert.ErrorContains(t, err, "fingerprint changed")
}

func TestRun_Cancelled(t *testing.T) {
	p := testutil.SuiteSparseProject(t)
	logCtx, _ := testutil.LoggerContext(t)
	ctx, cancel := context.WithCancel(logCtx)
	cancel()

	pl, mat := newPipeline(t, p, 2)
	_, err := pl.Run(ctx, p)
	require.ErrorIs(t, err, context.Canceled)

	amd, _ := p.Module("amd")
	specs, err := variant.Plan(amd)
	require.NoError(t, err)
	for _, spec := range specs {
		exists, err := fsutil.Exists(mat.SubtreeDir(spec))
		require.NoError(t, err)
		assert.False(t, exists, "no subtree may be committed after cancellation")
	}
}
