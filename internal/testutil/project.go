package testutil

import (
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/stretchr/testify/require"
)

// SuiteSparseTree is a miniature template tree with the shapes the
// generator has to handle: prefixed sources and headers, an include that
// resolves outside the module, a cross-module include override and
// single-instance files.
var SuiteSparseTree = map[string]string{
	"SuiteSparse_config/SuiteSparse_config.h": "/* config */\n",
	"SuiteSparse_config/SuiteSparse_config.c": "#include \"SuiteSparse_config.h\"\n",

	"AMD/Include/amd.h":          "/* amd public */\n",
	"AMD/Include/amd_internal.h": "#include \"amd.h\"\n#include \"SuiteSparse_config.h\"\n",
	"AMD/Source/amd_order.c":     "/* AMD ordering */\n#include \"amd_internal.h\"\nint amd_order(void) { return 0; }\n",
	"AMD/Source/amd_1.c":         "#include \"amd_internal.h\"\n",
	"AMD/Source/amd_global.c":    "/* shared */\n",

	"CHOLMOD/Include/cholmod_internal.h": "/* cholmod internal */\n",
	"CHOLMOD/Check/cholmod_check.c":      "#include \"cholmod_internal.h\"\nint cholmod_check(void);\n",

	"UMFPACK/Source/umf_ltsolve.c": "/* solve */\n",
}

// SuiteSparseHCL describes the same project as SuiteSparseProject in the
// HCL project format.
const SuiteSparseHCL = `
staging_root = ".sstmp"
source_root  = "SuiteSparse"
output       = ".sstmp/targets.yaml"

module "suitesparseconfig" {
  root            = "SuiteSparse_config"
  include_dirs    = ["."]
  single_instance = ["SuiteSparse_config.c"]
}

module "amd" {
  root         = "AMD"
  sources      = ["Source/amd_order.c", "Source/amd_1.c"]
  headers      = ["Include/amd_internal.h"]
  include_dirs = ["Include"]
  prefixes     = ["amd"]

  axis "index" {
    values = ["32", "64"]
  }

  naming {
    suffix = { "32" = "i", "64" = "l" }[axis.index]
    macros = { "32" = ["DINT"], "64" = ["DLONG"] }[axis.index]
  }

  single_instance = ["Source/amd_global.c"]
}

module "cholmod_check" {
  root         = "CHOLMOD"
  sources      = ["Check/*.c"]
  include_dirs = ["Include"]
  prefixes     = ["cholmod"]

  axis "index" {
    values = ["32", "64"]
  }

  naming {
    suffix = axis.index == "64" ? "l" : ""
    macros = axis.index == "64" ? ["DLONG"] : []
  }

  include_override "cholmod_internal.h" {
    to       = "cholmod_${variant.suffix}_internal.h"
    variants = ["l"]
  }
}

module "umf" {
  root     = "UMFPACK"
  sources  = ["Source/umf_ltsolve.c"]
  prefixes = ["umf"]

  axis "type" {
    values = ["di", "zl"]
  }

  naming {
    suffix = axis.type
    macros = { "di" = ["DINT"], "zl" = ["ZLONG"] }[axis.type]
  }

  derive "Source/umf_lhsolve.c" {
    from = "Source/umf_ltsolve.c"
  }

  special_macros {
    pattern = "umf_[dz][il]_\\whsolve"
    macros  = ["CONJUGATE_SOLVE"]
  }

  special_macros {
    pattern = "umf_never_matches"
    macros  = ["UNUSED"]
  }
}

library "suitesparseconfig" {
  modules = ["suitesparseconfig"]
}

library "amd" {
  modules      = ["amd"]
  depends_on   = ["suitesparseconfig"]
  include_dirs = ["SuiteSparse_config"]
  defines      = ["NTIMER", "NPRINT=1"]
}

library "cholmod" {
  modules            = ["cholmod_check"]
  depends_on         = ["amd", "suitesparseconfig"]
  external_libraries = ["lapack", "blas"]
  include_dirs       = ["SuiteSparse_config"]
  kind               = "shared"
}

library "umfpack" {
  modules    = ["umf"]
  depends_on = ["amd"]
}
`

// WriteSuiteSparse writes SuiteSparseTree below root/SuiteSparse.
func WriteSuiteSparse(t *testing.T, root string) {
	t.Helper()
	files := make(map[string]string, len(SuiteSparseTree))
	for name, content := range SuiteSparseTree {
		files["SuiteSparse/"+name] = content
	}
	WriteTree(t, root, files)
}

// lookupNaming builds a naming rule from a fixed table keyed by one axis.
func lookupNaming(axis string, suffixes map[string]string, macros map[string][]string) config.NamingRule {
	return config.NamingFunc(func(values map[string]string) (string, []string, error) {
		v, ok := values[axis]
		if !ok {
			return "", nil, fmt.Errorf("axis %q not set", axis)
		}
		return suffixes[v], macros[v], nil
	})
}

// SuiteSparseProject writes the fixture tree into a fresh temporary
// directory and returns the validated project describing it.
func SuiteSparseProject(t *testing.T) *config.Project {
	t.Helper()
	base := t.TempDir()
	WriteSuiteSparse(t, base)
	src := filepath.Join(base, "SuiteSparse")
	index := []config.Axis{{Name: "index", Values: []string{"32", "64"}}}

	p := &config.Project{
		BaseDir:     base,
		StagingRoot: filepath.Join(base, ".sstmp"),
		SourceRoot:  src,
		Output:      filepath.Join(base, ".sstmp", "targets.yaml"),
		Modules: []*config.Module{
			{
				Name:           "suitesparseconfig",
				RootDir:        filepath.Join(src, "SuiteSparse_config"),
				IncludeDirs:    []string{"."},
				SingleInstance: []string{"SuiteSparse_config.c"},
			},
			{
				Name:           "amd",
				RootDir:        filepath.Join(src, "AMD"),
				SourceGlobs:    []string{"Source/amd_order.c", "Source/amd_1.c"},
				HeaderGlobs:    []string{"Include/amd_internal.h"},
				IncludeDirs:    []string{"Include"},
				Prefixes:       []string{"amd"},
				Axes:           index,
				Naming:         lookupNaming("index", map[string]string{"32": "i", "64": "l"}, map[string][]string{"32": {"DINT"}, "64": {"DLONG"}}),
				SingleInstance: []string{"Source/amd_global.c"},
			},
			{
				Name:        "cholmod_check",
				RootDir:     filepath.Join(src, "CHOLMOD"),
				SourceGlobs: []string{"Check/*.c"},
				IncludeDirs: []string{"Include"},
				Prefixes:    []string{"cholmod"},
				Axes:        index,
				Naming:      lookupNaming("index", map[string]string{"32": "", "64": "l"}, map[string][]string{"64": {"DLONG"}}),
				IncludeOverrides: []config.IncludeOverride{{
					From:     "cholmod_internal.h",
					Variants: []string{"l"},
					Rule: config.OverrideFunc(func(v config.VariantInfo) (string, bool, error) {
						return "cholmod_" + v.Suffix + "_internal.h", true, nil
					}),
				}},
			},
			{
				Name:        "umf",
				RootDir:     filepath.Join(src, "UMFPACK"),
				SourceGlobs: []string{"Source/umf_ltsolve.c"},
				Prefixes:    []string{"umf"},
				Axes:        []config.Axis{{Name: "type", Values: []string{"di", "zl"}}},
				Naming:      lookupNaming("type", map[string]string{"di": "di", "zl": "zl"}, map[string][]string{"di": {"DINT"}, "zl": {"ZLONG"}}),
				Derived:     []config.Derived{{Path: "Source/umf_lhsolve.c", From: "Source/umf_ltsolve.c"}},
				SpecialMacros: []config.SpecialMacros{
					{Pattern: regexp.MustCompile(`umf_[dz][il]_\whsolve`), Macros: []string{"CONJUGATE_SOLVE"}},
					{Pattern: regexp.MustCompile(`umf_never_matches`), Macros: []string{"UNUSED"}},
				},
			},
		},
		Libraries: []*config.Library{
			{Name: "suitesparseconfig", Modules: []string{"suitesparseconfig"}, Kind: config.ArtifactStatic},
			{
				Name:        "amd",
				Modules:     []string{"amd"},
				DependsOn:   []string{"suitesparseconfig"},
				IncludeDirs: []string{filepath.Join(src, "SuiteSparse_config")},
				Defines:     []string{"NTIMER", "NPRINT=1"},
				Kind:        config.ArtifactStatic,
			},
			{
				Name:              "cholmod",
				Modules:           []string{"cholmod_check"},
				DependsOn:         []string{"amd", "suitesparseconfig"},
				ExternalLibraries: []string{"lapack", "blas"},
				IncludeDirs:       []string{filepath.Join(src, "SuiteSparse_config")},
				Kind:              config.ArtifactShared,
			},
			{Name: "umfpack", Modules: []string{"umf"}, DependsOn: []string{"amd"}, Kind: config.ArtifactStatic},
		},
	}
	require.NoError(t, p.Validate())
	return p
}
