// Package target composes finalized variants into build targets for an
// external compiler/linker and writes the build-target description.
package target

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/dag"
	"github.com/specialistvlad/variantforge/internal/materialize"
	"github.com/specialistvlad/variantforge/internal/pipeline"
	"github.com/specialistvlad/variantforge/internal/stage"
)

var (
	// ErrUnknownDependency is returned when a library links against a
	// target the project does not define.
	ErrUnknownDependency = errors.New("unknown link dependency")
	// ErrDependencyCycle is returned when libraries depend on each other
	// in a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")
)

// Macro is a target-wide preprocessor definition. Value is nil for a bare
// NAME definition.
type Macro struct {
	Name  string  `yaml:"name"`
	Value *string `yaml:"value,omitempty"`
}

// ParseMacro splits NAME or NAME=VALUE.
func ParseMacro(s string) Macro {
	if name, value, ok := strings.Cut(s, "="); ok {
		return Macro{Name: name, Value: &value}
	}
	return Macro{Name: s}
}

// BuildTarget is one logical library for the external executor.
type BuildTarget struct {
	Name              string              `yaml:"name"`
	Kind              config.ArtifactKind `yaml:"kind"`
	Sources           []string            `yaml:"sources"`
	IncludeDirs       []string            `yaml:"include_dirs"`
	Macros            []Macro             `yaml:"macros,omitempty"`
	LinkDependencies  []string            `yaml:"link_dependencies,omitempty"`
	ExternalLibraries []string            `yaml:"external_libraries,omitempty"`
}

// orderedSet keeps the first occurrence of every value.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

// Compose builds one target per library from the generated variants and
// returns them in dependency order: every target comes after the targets
// it links against.
func Compose(ctx context.Context, project *config.Project, result *pipeline.Result) ([]*BuildTarget, error) {
	logger := ctxlog.FromContext(ctx)

	graph := dag.New()
	for _, lib := range project.Libraries {
		graph.AddNode(lib.Name)
	}
	for _, lib := range project.Libraries {
		for _, dep := range lib.DependsOn {
			if !graph.HasNode(dep) {
				return nil, fmt.Errorf("%w: library '%s' depends on '%s'", ErrUnknownDependency, lib.Name, dep)
			}
			if err := graph.AddEdge(dep, lib.Name); err != nil {
				if errors.Is(err, dag.ErrCycle) {
					return nil, fmt.Errorf("%w: %w", ErrDependencyCycle, err)
				}
				return nil, err
			}
		}
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDependencyCycle, err)
	}

	targets := make([]*BuildTarget, 0, len(order))
	for _, name := range order {
		lib, _ := project.Library(name)
		t, err := composeLibrary(project, lib, result)
		if err != nil {
			return nil, err
		}
		if len(t.Sources) == 0 {
			logger.Warn("Target has no sources.", "target", t.Name)
		}
		logger.Debug("Target composed.", "target", t.Name, "sources", len(t.Sources), "include_dirs", len(t.IncludeDirs))
		targets = append(targets, t)
	}
	return targets, nil
}

func composeLibrary(project *config.Project, lib *config.Library, result *pipeline.Result) (*BuildTarget, error) {
	var sources, includeDirs, macroNames orderedSet

	for _, modName := range lib.Modules {
		mod, ok := project.Module(modName)
		if !ok {
			return nil, fmt.Errorf("%w: library '%s' uses unknown module '%s'", config.ErrInvalidConfig, lib.Name, modName)
		}
		variants, ok := result.Variants[modName]
		if !ok {
			return nil, fmt.Errorf("library '%s': module '%s' was not generated", lib.Name, modName)
		}

		for _, v := range variants {
			if v == nil {
				return nil, fmt.Errorf("library '%s': module '%s' has an unfinished variant", lib.Name, modName)
			}
			for _, f := range v.Files {
				if err := f.Require(stage.Finalized); err != nil {
					return nil, err
				}
				if f.Kind == stage.Header {
					includeDirs.add(filepath.Dir(f.DestPath()))
					continue
				}
				sources.add(f.DestPath())
			}
		}

		for _, rel := range mod.SingleInstance {
			path := filepath.Join(mod.RootDir, filepath.FromSlash(rel))
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("%w: module '%s' single-instance file: %v", materialize.ErrMissingTemplate, mod.Name, err)
			}
			sources.add(path)
		}
		for _, rel := range mod.IncludeDirs {
			includeDirs.add(filepath.Join(mod.RootDir, filepath.FromSlash(rel)))
		}
	}
	for _, dir := range lib.IncludeDirs {
		includeDirs.add(dir)
	}

	var macros []Macro
	for _, d := range lib.Defines {
		m := ParseMacro(d)
		if _, dup := macroNames.seen[m.Name]; dup {
			continue
		}
		macroNames.add(m.Name)
		macros = append(macros, m)
	}

	kind := lib.Kind
	if kind == "" {
		kind = config.ArtifactStatic
	}

	return &BuildTarget{
		Name:              lib.Name,
		Kind:              kind,
		Sources:           sources.items,
		IncludeDirs:       includeDirs.items,
		Macros:            macros,
		LinkDependencies:  append([]string(nil), lib.DependsOn...),
		ExternalLibraries: append([]string(nil), lib.ExternalLibraries...),
	}, nil
}
