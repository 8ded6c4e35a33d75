package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/materialize"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/transform"
	"golang.org/x/sync/errgroup"
)

// Variant is a generated (module, variant) pair whose files are all
// Finalized and committed.
type Variant struct {
	Planned PlannedVariant
	Files   []*stage.File
	// Cached is true when the subtree already existed and no transform ran.
	Cached bool
}

// Result holds every generated variant, grouped by module in plan order.
type Result struct {
	Plan     *Plan
	Variants map[string][]*Variant
}

// Pipeline runs the per-variant transforms on a bounded worker pool.
type Pipeline struct {
	mat     *materialize.Materializer
	workers int
}

// New creates a Pipeline processing at most workers pairs at once.
func New(mat *materialize.Materializer, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{mat: mat, workers: workers}
}

// Run plans the project and generates every pair. Pairs are independent
// and run concurrently; the first failure cancels the rest. Pairs whose
// subtree already exists are loaded instead of regenerated.
func (p *Pipeline) Run(ctx context.Context, project *config.Project) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	plan, err := BuildPlan(ctx, project, p.mat)
	if err != nil {
		return nil, err
	}

	result := &Result{Plan: plan, Variants: make(map[string][]*Variant, len(plan.Modules))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	logger.Debug("Starting variant workers.", "workers", p.workers)
schedule:
	for _, mp := range plan.Modules {
		slots := make([]*Variant, len(mp.Variants))
		result.Variants[mp.Module.Name] = slots
		for i := range mp.Variants {
			if gctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				v, err := p.process(gctx, mp, mp.Variants[i])
				if err != nil {
					return err
				}
				slots[i] = v
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// process handles one pair sequentially while holding its subtree lock.
func (p *Pipeline) process(ctx context.Context, mp *ModulePlan, pv PlannedVariant) (*Variant, error) {
	mod := mp.Module
	spec := pv.Spec
	ctx, logger := ctxlog.With(ctx, "module", spec.Module, "variant", spec.Key)

	lock, err := p.mat.Acquire(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", spec, err)
	}
	defer lock.Release()

	fingerprint := materialize.Fingerprint(spec, materialize.Inputs{
		Templates: mp.Templates,
		Overrides: pv.Overrides,
		Specials:  mod.SpecialMacros,
	})
	files, hit, err := p.mat.Load(ctx, spec, fingerprint)
	if err != nil {
		return nil, err
	}
	if hit {
		logger.Info("Variant up to date, skipping.", "files", len(files))
		return &Variant{Planned: pv, Files: files, Cached: true}, nil
	}

	if err := p.mat.Sweep(ctx, spec); err != nil {
		return nil, err
	}
	if files, err = p.mat.Copy(ctx, spec, mp.Templates); err != nil {
		return nil, err
	}

	table, err := transform.Rename(files, mod.Prefixes, spec.Suffix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec, err)
	}
	logger.Debug("Files renamed.", "headers", table.Len())

	rw, err := transform.NewRewriter(table, pv.Overrides)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec, err)
	}

	for _, f := range files {
		macros := spec.Macros
		if extra, _ := transform.SpecialMacrosFor(f.Name(), mod.SpecialMacros); len(extra) > 0 {
			macros = append(slices.Clip(spec.Macros), extra...)
		}
		if err := transform.InjectMacros(f, macros); err != nil {
			return nil, err
		}
	}

	for _, f := range files {
		unresolved, err := transform.RewriteIncludes(f, rw)
		if err != nil {
			return nil, err
		}
		for _, name := range unresolved {
			logger.Warn("Include is not in the rename table, left unchanged.", "file", f.RelPath, "include", name)
		}
		if err := f.Advance(stage.Finalized); err != nil {
			return nil, err
		}
	}

	if err := p.mat.Commit(ctx, spec, fingerprint, files); err != nil {
		return nil, err
	}
	logger.Info("Variant generated.", "files", len(files), "dir", pv.Dir)
	return &Variant{Planned: pv, Files: files}, nil
}
