// Package hcl_adapter loads HCL project files into the format-agnostic
// config model.
package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses the project at path, which is either a single .hcl file or a
// directory whose .hcl files together form the project. Relative paths
// resolve against the file's directory.
func (l *Loader) Load(ctx context.Context, path string) (*config.Project, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	hclFiles, baseDir, err := l.findAllHCLFiles(abs)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("%w: no .hcl files found at %s", config.ErrInvalidConfig, path)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	parsed := make([]*hcl.File, 0, len(hclFiles))
	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		parsed = append(parsed, hclFile)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hcl.MergeFiles(parsed), nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL project %s: %w", path, diags)
	}

	project, err := l.translateProject(ctx, &root, baseDir)
	if err != nil {
		return nil, err
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "modules", len(project.Modules), "libraries", len(project.Libraries))
	return project, nil
}

// findAllHCLFiles returns the .hcl files making up the project, sorted, and
// the directory relative paths resolve against.
func (l *Loader) findAllHCLFiles(path string) ([]string, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("error accessing path %s: %w", path, err)
	}

	if !info.IsDir() {
		return []string{path}, filepath.Dir(path), nil
	}

	var allFiles []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(p) == ".hcl" {
			allFiles = append(allFiles, p)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	sort.Strings(allFiles)
	return allFiles, path, nil
}
