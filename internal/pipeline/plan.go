// Package pipeline drives every (module, variant) pair through
// materialize, rename, macro injection, include rewriting and commit.
package pipeline

import (
	"context"
	"fmt"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/materialize"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/transform"
	"github.com/specialistvlad/variantforge/internal/variant"
)

// PlannedFile maps one template to its destination in a variant subtree.
type PlannedFile struct {
	Template string
	Dest     string
	Kind     stage.Kind
}

// PlannedVariant is one pair as it would be generated.
type PlannedVariant struct {
	Spec      variant.Spec
	Dir       string
	Files     []PlannedFile
	Overrides map[string]string
}

// ModulePlan groups the variants of one module.
type ModulePlan struct {
	Module    *config.Module
	Templates []materialize.Template
	Variants  []PlannedVariant
}

// Plan is the full, validated generation plan of a project in module
// declaration order.
type Plan struct {
	Modules []*ModulePlan
}

// Module returns the plan of the named module.
func (p *Plan) Module(name string) (*ModulePlan, bool) {
	for _, mp := range p.Modules {
		if mp.Module.Name == name {
			return mp, true
		}
	}
	return nil, false
}

// BuildPlan expands every module's variants, enumerates its templates and
// resolves every destination name and include override. All naming and
// destination collisions are reported here, before anything is written.
func BuildPlan(ctx context.Context, project *config.Project, mat *materialize.Materializer) (*Plan, error) {
	specs, err := variant.PlanProject(project)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, mod := range project.Modules {
		mctx, logger := ctxlog.With(ctx, "module", mod.Name)

		mp := &ModulePlan{Module: mod}
		plan.Modules = append(plan.Modules, mp)
		if len(specs[mod.Name]) == 0 {
			logger.Debug("Module has no variants.")
			continue
		}

		if mp.Templates, err = materialize.Enumerate(mctx, mod); err != nil {
			return nil, err
		}

		specialHits := make([]int, len(mod.SpecialMacros))
		for _, spec := range specs[mod.Name] {
			files := mat.Records(spec, mp.Templates)
			table, err := transform.Rename(files, mod.Prefixes, spec.Suffix)
			if err != nil {
				return nil, fmt.Errorf("module '%s', variant %s: %w", mod.Name, spec.Key, err)
			}
			overrides, err := resolveOverrides(mod, spec)
			if err != nil {
				return nil, err
			}
			if _, err := transform.NewRewriter(table, overrides); err != nil {
				return nil, fmt.Errorf("module '%s', variant %s: %w", mod.Name, spec.Key, err)
			}

			pv := PlannedVariant{Spec: spec, Dir: mat.SubtreeDir(spec), Overrides: overrides}
			for _, f := range files {
				pv.Files = append(pv.Files, PlannedFile{Template: f.TemplatePath, Dest: f.RelPath, Kind: f.Kind})
				if _, idx := transform.SpecialMacrosFor(f.Name(), mod.SpecialMacros); idx >= 0 {
					specialHits[idx]++
				}
			}
			mp.Variants = append(mp.Variants, pv)
		}

		for i, hits := range specialHits {
			if hits == 0 {
				logger.Warn("Special macro pattern applies to no files.", "pattern", mod.SpecialMacros[i].Pattern.String())
			}
		}
		logger.Debug("Module planned.", "variants", len(mp.Variants), "templates", len(mp.Templates))
	}
	return plan, nil
}

// resolveOverrides evaluates the module's include overrides for one
// variant. Overrides restricted to other suffixes, or whose rule opts out,
// are left out.
func resolveOverrides(mod *config.Module, spec variant.Spec) (map[string]string, error) {
	out := make(map[string]string)
	for _, o := range mod.IncludeOverrides {
		if !o.AppliesTo(spec.Suffix) {
			continue
		}
		to, ok, err := o.Rule.Resolve(spec.Info())
		if err != nil {
			return nil, fmt.Errorf("module '%s', variant %s: include override '%s': %w", mod.Name, spec.Key, o.From, err)
		}
		if ok {
			out[o.From] = to
		}
	}
	return out, nil
}
