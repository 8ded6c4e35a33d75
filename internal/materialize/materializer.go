// Package materialize moves template files in and out of the staging area.
//
// Every (module, variant) pair owns one subtree below the staging root,
// <staging_root>/<module>/<variant key>/, mirroring the template layout.
// A subtree is either absent or complete: it is written under a temporary
// name and renamed into place once its manifest is on disk. An existing
// subtree is a cache hit and is never transformed again.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/fsutil"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/variant"
)

var (
	// ErrMissingTemplate is returned when a module root or an explicitly
	// named template file does not exist.
	ErrMissingTemplate = errors.New("missing template")
	// ErrCorruptStaging is returned when an existing subtree does not match
	// its manifest or the current variant. Use Reset to remove it.
	ErrCorruptStaging = errors.New("corrupt staging subtree")
)

const tmpMarker = ".tmp-"

// Template is one file of a module's template tree that every variant
// receives a copy of.
type Template struct {
	// RelPath is the destination below the subtree, before renaming.
	RelPath string
	// Path is the absolute template file the content is read from.
	Path string
	Kind stage.Kind
}

// Materializer loads and commits staging subtrees.
type Materializer struct {
	stagingRoot string
	cache       *fsutil.ContentCache
	runID       string
}

// New creates a Materializer rooted at stagingRoot. Template reads go
// through cache.
func New(stagingRoot string, cache *fsutil.ContentCache, runID string) *Materializer {
	return &Materializer{stagingRoot: stagingRoot, cache: cache, runID: runID}
}

// SubtreeDir is the directory holding the variant's staged files.
func (m *Materializer) SubtreeDir(spec variant.Spec) string {
	return filepath.Join(m.stagingRoot, spec.Module, spec.Key)
}

func (m *Materializer) lockPath(module, key string) string {
	return filepath.Join(m.stagingRoot, module, "."+key+".lock")
}

// Acquire takes the single-writer lock of the variant's subtree.
func (m *Materializer) Acquire(ctx context.Context, spec variant.Spec) (*fsutil.Lock, error) {
	return fsutil.AcquireLock(ctx, m.lockPath(spec.Module, spec.Key))
}

// Enumerate lists the module's templates: matched sources and headers plus
// derived entries. The result is shared by every variant of the module.
func Enumerate(ctx context.Context, mod *config.Module) ([]Template, error) {
	logger := ctxlog.FromContext(ctx).With("module", mod.Name)

	info, err := os.Stat(mod.RootDir)
	if err != nil {
		return nil, fmt.Errorf("%w: module %q root %s: %v", ErrMissingTemplate, mod.Name, mod.RootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: module %q root %s is not a directory", ErrMissingTemplate, mod.Name, mod.RootDir)
	}

	var templates []Template
	seen := make(map[string]stage.Kind)

	add := func(patterns []string, kind stage.Kind) error {
		matches, empty, err := fsutil.Expand(mod.RootDir, patterns)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: module %q: %v", ErrMissingTemplate, mod.Name, err)
			}
			return fmt.Errorf("module %q: %w", mod.Name, err)
		}
		for _, pattern := range empty {
			logger.Warn("Glob matched no files.", "pattern", pattern, "kind", kind)
		}
		for _, rel := range matches {
			if prev, ok := seen[rel]; ok {
				if prev != kind {
					return fmt.Errorf("%w: module %q lists %s as both source and header", config.ErrInvalidConfig, mod.Name, rel)
				}
				continue
			}
			seen[rel] = kind
			templates = append(templates, Template{
				RelPath: rel,
				Path:    filepath.Join(mod.RootDir, filepath.FromSlash(rel)),
				Kind:    kind,
			})
		}
		return nil
	}

	if err := add(mod.SourceGlobs, stage.Source); err != nil {
		return nil, err
	}
	if err := add(mod.HeaderGlobs, stage.Header); err != nil {
		return nil, err
	}

	for _, d := range mod.Derived {
		rel := filepath.ToSlash(d.Path)
		if _, ok := seen[rel]; ok {
			return nil, fmt.Errorf("%w: module %q: derived file %s duplicates an enumerated template", config.ErrInvalidConfig, mod.Name, rel)
		}
		from := filepath.Join(mod.RootDir, filepath.FromSlash(d.From))
		if _, err := os.Stat(from); err != nil {
			return nil, fmt.Errorf("%w: module %q: derived file %s: %v", ErrMissingTemplate, mod.Name, rel, err)
		}
		kind := stage.Source
		if strings.HasSuffix(rel, ".h") {
			kind = stage.Header
		}
		seen[rel] = kind
		templates = append(templates, Template{RelPath: rel, Path: from, Kind: kind})
	}

	logger.Debug("Templates enumerated.", "count", len(templates))
	return templates, nil
}

// Records creates Copied records for the variant without reading any
// content. Plan uses them to check naming without touching the disk.
func (m *Materializer) Records(spec variant.Spec, templates []Template) []*stage.File {
	root := m.SubtreeDir(spec)
	files := make([]*stage.File, 0, len(templates))
	for _, t := range templates {
		files = append(files, &stage.File{
			TemplatePath: t.Path,
			Root:         root,
			RelPath:      t.RelPath,
			Kind:         t.Kind,
			State:        stage.Copied,
		})
	}
	return files
}

// Copy creates Copied records for the variant and reads their template
// content.
func (m *Materializer) Copy(ctx context.Context, spec variant.Spec, templates []Template) ([]*stage.File, error) {
	files := m.Records(spec, templates)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := m.cache.ReadFile(f.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrMissingTemplate, f.TemplatePath, err)
		}
		f.Content = data
	}
	ctxlog.FromContext(ctx).Debug("Templates copied.", "variant", spec.String(), "files", len(files))
	return files, nil
}

// Load returns the finalized records of an already committed subtree. The
// second result is false when the subtree does not exist yet. Any mismatch
// between the subtree, its manifest and the variant's fingerprint is
// ErrCorruptStaging.
func (m *Materializer) Load(ctx context.Context, spec variant.Spec, fingerprint string) ([]*stage.File, bool, error) {
	dir := m.SubtreeDir(spec)
	exists, err := fsutil.Exists(dir)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}

	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s (run reset to remove it)", ErrCorruptStaging, dir, fmt.Sprintf(format, args...))
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, true, corrupt("manifest: %v", err)
	}
	if manifest.Version != manifestVersion {
		return nil, true, corrupt("manifest version %d, expected %d", manifest.Version, manifestVersion)
	}
	if manifest.Module != spec.Module || manifest.Variant != spec.Key {
		return nil, true, corrupt("manifest belongs to %s/%s", manifest.Module, manifest.Variant)
	}
	if manifest.Fingerprint != fingerprint {
		return nil, true, corrupt("variant fingerprint changed")
	}

	onDisk, err := fsutil.FindFiles(dir)
	if err != nil {
		return nil, true, corrupt("listing files: %v", err)
	}
	recorded := make(map[string]struct{}, len(manifest.Files))

	files := make([]*stage.File, 0, len(manifest.Files))
	for _, e := range manifest.Files {
		if e.State != stage.Finalized {
			return nil, true, corrupt("%s is %s", e.Path, e.State)
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(e.Path)))
		if err != nil {
			return nil, true, corrupt("%s: %v", e.Path, err)
		}
		if contentHash(data) != e.SHA256 {
			return nil, true, corrupt("%s content does not match its manifest hash", e.Path)
		}
		recorded[e.Path] = struct{}{}
		files = append(files, &stage.File{
			TemplatePath: e.Template,
			Root:         dir,
			RelPath:      e.Path,
			Kind:         e.Kind,
			Content:      data,
			State:        e.State,
		})
	}
	for _, name := range onDisk {
		if name == ManifestName {
			continue
		}
		if _, ok := recorded[name]; !ok {
			return nil, true, corrupt("unexpected file %s", name)
		}
	}

	ctxlog.FromContext(ctx).Debug("Staging cache hit.", "variant", spec.String(), "files", len(files))
	return files, true, nil
}

// Commit writes the finalized records into the variant's subtree. The
// subtree must not exist yet. The manifest records fingerprint.
func (m *Materializer) Commit(ctx context.Context, spec variant.Spec, fingerprint string, files []*stage.File) error {
	dir := m.SubtreeDir(spec)
	for _, f := range files {
		if err := f.Require(stage.Finalized); err != nil {
			return err
		}
		if f.Root != dir {
			return fmt.Errorf("%s belongs to %s, not %s", f.RelPath, f.Root, dir)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	tmp := dir + tmpMarker + uuid.NewString()
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(tmp, filepath.FromSlash(f.RelPath))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.RelPath, err)
		}
	}
	if err := writeManifest(tmp, newManifest(spec, fingerprint, m.runID, files)); err != nil {
		return err
	}

	if err := os.Rename(tmp, dir); err != nil {
		return fmt.Errorf("committing %s: %w", dir, err)
	}
	committed = true

	ctxlog.FromContext(ctx).Debug("Subtree committed.", "variant", spec.String(), "dir", dir, "files", len(files))
	return nil
}

// Sweep removes temporary directories left behind by interrupted commits of
// the variant. The caller must hold the variant's lock.
func (m *Materializer) Sweep(ctx context.Context, spec variant.Spec) error {
	moduleDir := filepath.Join(m.stagingRoot, spec.Module)
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	prefix := spec.Key + tmpMarker
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			path := filepath.Join(moduleDir, e.Name())
			ctxlog.FromContext(ctx).Info("Removing interrupted commit.", "dir", path)
			if err := os.RemoveAll(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset removes committed subtrees of module so the next run regenerates
// them. An empty key removes every variant of the module. It returns the
// removed directories. Nothing outside <staging_root>/<module> is touched.
func (m *Materializer) Reset(ctx context.Context, module, key string) ([]string, error) {
	if !isSegment(module) {
		return nil, fmt.Errorf("reset needs a module name, got '%s'", module)
	}
	if key != "" && !isSegment(key) {
		return nil, fmt.Errorf("invalid variant key '%s'", key)
	}

	keys := []string{key}
	if key == "" {
		var err error
		if keys, err = listDirs(filepath.Join(m.stagingRoot, module)); err != nil {
			return nil, err
		}
	}

	var removed []string
	for _, k := range keys {
		dirs, err := m.resetOne(ctx, module, k)
		removed = append(removed, dirs...)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// isSegment reports whether name is exactly one path element.
func isSegment(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (m *Materializer) resetOne(ctx context.Context, module, key string) ([]string, error) {
	lock, err := fsutil.AcquireLock(ctx, m.lockPath(module, key))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	moduleDir := filepath.Join(m.stagingRoot, module)
	entries, err := os.ReadDir(moduleDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || (name != key && !strings.HasPrefix(name, key+tmpMarker)) {
			continue
		}
		path := filepath.Join(moduleDir, name)
		if err := os.RemoveAll(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
		ctxlog.FromContext(ctx).Info("Staging subtree removed.", "dir", path)
	}
	return removed, nil
}

// listDirs returns the names of the directories below dir. Temporary
// commit directories are reported under the subtree name they belong to.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, _, _ := strings.Cut(e.Name(), tmpMarker)
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
