package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/pipeline"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/target"
	"gopkg.in/yaml.v3"
)

// Generate materializes every variant of the project and writes the
// build-target description. Nothing is written to the output when any
// stage fails.
func (a *App) Generate(ctx context.Context) ([]*target.BuildTarget, error) {
	runID := newRunID()
	ctx = a.withLogger(ctx, runID)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Generate method started.")

	project, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	mat, err := a.newMaterializer(project, runID)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting variant generation.", "workers", a.config.Workers)
	res, err := pipeline.New(mat, a.config.Workers).Run(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	var generated, cached int
	for _, variants := range res.Variants {
		for _, v := range variants {
			if v.Cached {
				cached++
			} else {
				generated++
			}
		}
	}

	targets, err := target.Compose(ctx, project, res)
	if err != nil {
		return nil, fmt.Errorf("composing build targets failed: %w", err)
	}
	if err := target.Write(project.Output, runID, targets); err != nil {
		return nil, fmt.Errorf("writing build targets failed: %w", err)
	}

	logger.Info("Generation finished.",
		"generated", generated,
		"cached", cached,
		"targets", len(targets),
		"output", project.Output,
	)
	return targets, nil
}

type filePlanView struct {
	Template string     `yaml:"template"`
	Dest     string     `yaml:"dest"`
	Kind     stage.Kind `yaml:"kind"`
}

type variantPlanView struct {
	Key       string            `yaml:"key"`
	Suffix    string            `yaml:"suffix"`
	Macros    []string          `yaml:"macros,omitempty"`
	Dir       string            `yaml:"dir"`
	Files     []filePlanView    `yaml:"files"`
	Overrides map[string]string `yaml:"include_overrides,omitempty"`
}

type modulePlanView struct {
	Name           string            `yaml:"name"`
	SingleInstance []string          `yaml:"single_instance,omitempty"`
	Variants       []variantPlanView `yaml:"variants,omitempty"`
}

type planView struct {
	StagingRoot string           `yaml:"staging_root"`
	Output      string           `yaml:"output"`
	Modules     []modulePlanView `yaml:"modules"`
}

// Plan resolves every variant and destination of the project, including all
// collision checks, and prints the result as YAML without touching the
// staging area.
func (a *App) Plan(ctx context.Context) (*pipeline.Plan, error) {
	ctx = a.withLogger(ctx, "")
	ctxlog.FromContext(ctx).Debug("App.Plan method started.")

	project, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	mat, err := a.newMaterializer(project, "")
	if err != nil {
		return nil, err
	}
	plan, err := pipeline.BuildPlan(ctx, project, mat)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	view := planView{StagingRoot: project.StagingRoot, Output: project.Output}
	for _, mp := range plan.Modules {
		mv := modulePlanView{Name: mp.Module.Name, SingleInstance: mp.Module.SingleInstance}
		for _, pv := range mp.Variants {
			vv := variantPlanView{
				Key:       pv.Spec.Key,
				Suffix:    pv.Spec.Suffix,
				Macros:    pv.Spec.Macros,
				Dir:       pv.Dir,
				Overrides: pv.Overrides,
			}
			for _, f := range pv.Files {
				vv.Files = append(vv.Files, filePlanView(f))
			}
			mv.Variants = append(mv.Variants, vv)
		}
		view.Modules = append(view.Modules, mv)
	}

	enc := yaml.NewEncoder(a.outW)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return plan, nil
}

// Reset removes staged subtrees so they are regenerated on the next run.
// An empty key removes every variant of module; an empty module removes the
// subtrees of every declared module. Other directories below the staging
// root are left alone.
func (a *App) Reset(ctx context.Context, module, key string) ([]string, error) {
	ctx = a.withLogger(ctx, "")
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Reset method started.", "module", module, "key", key)

	project, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	modules := []string{module}
	if module == "" {
		if key != "" {
			return nil, errors.New("a variant can only be reset together with its module")
		}
		modules = modules[:0]
		for _, m := range project.Modules {
			modules = append(modules, m.Name)
		}
	} else if _, ok := project.Module(module); !ok {
		return nil, fmt.Errorf("%w: unknown module '%s'", config.ErrInvalidConfig, module)
	}
	mat, err := a.newMaterializer(project, "")
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range modules {
		dirs, err := mat.Reset(ctx, name, key)
		removed = append(removed, dirs...)
		if err != nil {
			return removed, fmt.Errorf("reset failed: %w", err)
		}
	}
	for _, dir := range removed {
		fmt.Fprintln(a.outW, dir)
	}
	logger.Info("Staging reset finished.", "removed", len(removed))
	return removed, nil
}
