package config

import (
	"regexp"
	"slices"
)

// ArtifactKind is the kind of library an external executor should produce.
type ArtifactKind string

const (
	ArtifactStatic ArtifactKind = "static"
	ArtifactShared ArtifactKind = "shared"
)

// DefaultOutput is the file name of the build-target description written
// below the staging root when the project does not name one.
const DefaultOutput = "targets.yaml"

// Project is the unified, format-agnostic representation of a whole
// generation run: every template module and every library built from them.
type Project struct {
	// BaseDir is the directory relative paths in the project file resolve against.
	BaseDir string
	// StagingRoot is the absolute scratch directory holding all staging subtrees.
	StagingRoot string
	// SourceRoot is the absolute directory template module roots resolve against.
	SourceRoot string
	// Output is the absolute path of the build-target description.
	Output string

	Modules   []*Module
	Libraries []*Library
}

// Module returns the module with the given name.
func (p *Project) Module(name string) (*Module, bool) {
	for _, m := range p.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Library returns the library with the given name.
func (p *Project) Library(name string) (*Library, bool) {
	for _, l := range p.Libraries {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// Axis is one independent dimension of type specialization.
type Axis struct {
	Name   string
	Values []string
}

// Module is a template module: one generic source tree plus everything
// needed to specialize it.
type Module struct {
	Name string
	// RootDir is the absolute root of the template tree.
	RootDir string

	// SourceGlobs and HeaderGlobs are matched against paths relative to
	// RootDir. Entries without glob metacharacters must exist on disk.
	SourceGlobs []string
	HeaderGlobs []string
	// IncludeDirs are template-tree include directories, relative to RootDir.
	IncludeDirs []string
	// Prefixes are the routine-family tokens a file name must start with to
	// be renamed, e.g. "amd" or "umfpack".
	Prefixes []string

	Axes   []Axis
	Naming NamingRule

	Derived          []Derived
	SpecialMacros    []SpecialMacros
	IncludeOverrides []IncludeOverride
	// SingleInstance lists canonical, variant-independent sources relative
	// to RootDir. They are compiled straight from the template tree.
	SingleInstance []string
}

// Derived declares an extra per-variant output produced from a different
// template file, e.g. umf_lhsolve.c generated from umf_ltsolve.c.
type Derived struct {
	// Path is the output path relative to RootDir, before renaming.
	Path string
	// From is the template path relative to RootDir.
	From string
}

// SpecialMacros adds macros to files whose renamed base name matches Pattern.
type SpecialMacros struct {
	Pattern *regexp.Regexp
	Macros  []string
}

// IncludeOverride is an explicit include rename that does not follow the
// prefix convention, such as a helper translation unit pulled in by #include.
type IncludeOverride struct {
	From string
	// Variants restricts the override to variants with these suffixes.
	// Empty means every variant.
	Variants []string
	Rule     OverrideRule
}

// AppliesTo reports whether the override is declared for the given suffix.
func (o IncludeOverride) AppliesTo(suffix string) bool {
	return len(o.Variants) == 0 || slices.Contains(o.Variants, suffix)
}

// Library is one logical build target assembled from module variants.
type Library struct {
	Name    string
	Modules []string
	// DependsOn lists other libraries of the project, in link order.
	DependsOn []string
	// ExternalLibraries are link dependencies provided outside the project
	// (lapack, blas). They take no part in cycle detection.
	ExternalLibraries []string
	// IncludeDirs are absolute extra include directories.
	IncludeDirs []string
	// Defines are target-wide macros in NAME or NAME=VALUE form.
	Defines []string
	Kind    ArtifactKind
}
