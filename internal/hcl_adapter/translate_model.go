// This file contains the logic for translating HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
)

// resolvePath makes p absolute against base. Empty stays empty.
func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// translateProject converts the decoded file root into the agnostic model.
// staging_root and output resolve against baseDir; module roots and library
// include directories resolve against the source root.
func (l *Loader) translateProject(ctx context.Context, root *fileRoot, baseDir string) (*config.Project, error) {
	sourceRoot := baseDir
	if root.SourceRoot != "" {
		sourceRoot = resolvePath(baseDir, root.SourceRoot)
	}

	p := &config.Project{
		BaseDir:     baseDir,
		StagingRoot: resolvePath(baseDir, root.StagingRoot),
		SourceRoot:  sourceRoot,
		Output:      resolvePath(baseDir, root.Output),
	}
	if p.Output == "" && p.StagingRoot != "" {
		p.Output = filepath.Join(p.StagingRoot, config.DefaultOutput)
	}

	for _, m := range root.Modules {
		mod, err := l.translateModule(ctx, m, sourceRoot)
		if err != nil {
			return nil, err
		}
		p.Modules = append(p.Modules, mod)
	}
	for _, lib := range root.Libraries {
		p.Libraries = append(p.Libraries, l.translateLibrary(lib, sourceRoot))
	}
	return p, nil
}

// translateModule converts one module block.
func (l *Loader) translateModule(ctx context.Context, m *ModuleBlock, sourceRoot string) (*config.Module, error) {
	logger := ctxlog.FromContext(ctx).With("module", m.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Translating HCL module to internal config model.")

	mod := &config.Module{
		Name:           m.Name,
		RootDir:        resolvePath(sourceRoot, m.Root),
		SourceGlobs:    m.Sources,
		HeaderGlobs:    m.Headers,
		IncludeDirs:    m.IncludeDirs,
		Prefixes:       m.Prefixes,
		SingleInstance: m.SingleInstance,
	}

	for _, a := range m.Axes {
		mod.Axes = append(mod.Axes, config.Axis{Name: a.Name, Values: a.Values})
	}

	if m.Naming != nil {
		rule := &namingRule{module: m.Name, suffix: m.Naming.Suffix}
		if isExprDefined(ctx, m.Naming.Macros, "macros") {
			rule.macros = m.Naming.Macros
		}
		mod.Naming = rule
	}

	for _, d := range m.Derived {
		mod.Derived = append(mod.Derived, config.Derived{Path: d.Path, From: d.From})
	}

	for _, s := range m.SpecialMacros {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: module '%s': special macros pattern %q: %w", config.ErrInvalidConfig, m.Name, s.Pattern, err)
		}
		mod.SpecialMacros = append(mod.SpecialMacros, config.SpecialMacros{Pattern: re, Macros: s.Macros})
	}

	for _, o := range m.IncludeOverrides {
		mod.IncludeOverrides = append(mod.IncludeOverrides, config.IncludeOverride{
			From:     o.From,
			Variants: o.Variants,
			Rule:     &overrideRule{module: m.Name, from: o.From, to: o.To},
		})
	}
	return mod, nil
}

// translateLibrary converts one library block. kind defaults to static.
func (l *Loader) translateLibrary(b *LibraryBlock, sourceRoot string) *config.Library {
	kind := config.ArtifactKind(b.Kind)
	if kind == "" {
		kind = config.ArtifactStatic
	}
	lib := &config.Library{
		Name:              b.Name,
		Modules:           b.Modules,
		DependsOn:         b.DependsOn,
		ExternalLibraries: b.ExternalLibraries,
		Defines:           b.Defines,
		Kind:              kind,
	}
	for _, dir := range b.IncludeDirs {
		lib.IncludeDirs = append(lib.IncludeDirs, resolvePath(sourceRoot, dir))
	}
	return lib
}
