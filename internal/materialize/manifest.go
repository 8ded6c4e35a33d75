package materialize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/stage"
	"github.com/specialistvlad/variantforge/internal/variant"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file at the root of every committed subtree.
const ManifestName = ".variantforge.yaml"

// manifestVersion is bumped whenever the manifest layout changes. Older
// subtrees are then reported as corrupt and must be reset.
const manifestVersion = 1

// Manifest records what a committed subtree holds and which variant
// produced it.
type Manifest struct {
	Version     int             `yaml:"version"`
	Module      string          `yaml:"module"`
	Variant     string          `yaml:"variant"`
	Suffix      string          `yaml:"suffix"`
	Macros      []string        `yaml:"macros,omitempty"`
	Fingerprint string          `yaml:"fingerprint"`
	RunID       string          `yaml:"run_id,omitempty"`
	Files       []ManifestEntry `yaml:"files"`
}

// ManifestEntry describes one staged file.
type ManifestEntry struct {
	Path     string      `yaml:"path"`
	Template string      `yaml:"template"`
	Kind     stage.Kind  `yaml:"kind"`
	State    stage.State `yaml:"state"`
	SHA256   string      `yaml:"sha256"`
}

// Inputs are the module settings besides the variant itself that shape its
// staged output.
type Inputs struct {
	Templates []Template
	// Overrides are the include overrides resolved for the variant.
	Overrides map[string]string
	Specials  []config.SpecialMacros
}

// Fingerprint identifies everything that shapes a variant's staged output:
// the variant, its template list, its include overrides and the module's
// special macros.
func Fingerprint(spec variant.Spec, in Inputs) string {
	h := sha256.New()
	fmt.Fprintf(h, "module=%s\n", spec.Module)
	for _, av := range spec.AxisValues {
		fmt.Fprintf(h, "axis=%s=%s\n", av.Axis, av.Value)
	}
	fmt.Fprintf(h, "suffix=%s\n", spec.Suffix)
	fmt.Fprintf(h, "macros=%s\n", strings.Join(spec.Macros, "\x00"))

	templates := slices.Clone(in.Templates)
	slices.SortFunc(templates, func(a, b Template) int { return strings.Compare(a.RelPath, b.RelPath) })
	for _, t := range templates {
		fmt.Fprintf(h, "template=%s=%s=%s\n", t.RelPath, t.Kind, t.Path)
	}
	for _, from := range slices.Sorted(maps.Keys(in.Overrides)) {
		fmt.Fprintf(h, "override=%s=%s\n", from, in.Overrides[from])
	}
	for _, s := range in.Specials {
		pattern := ""
		if s.Pattern != nil {
			pattern = s.Pattern.String()
		}
		fmt.Fprintf(h, "special=%s=%s\n", pattern, strings.Join(s.Macros, "\x00"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newManifest(spec variant.Spec, fingerprint, runID string, files []*stage.File) *Manifest {
	m := &Manifest{
		Version:     manifestVersion,
		Module:      spec.Module,
		Variant:     spec.Key,
		Suffix:      spec.Suffix,
		Macros:      spec.Macros,
		Fingerprint: fingerprint,
		RunID:       runID,
		Files:       make([]ManifestEntry, 0, len(files)),
	}
	for _, f := range files {
		m.Files = append(m.Files, ManifestEntry{
			Path:     f.RelPath,
			Template: f.TemplatePath,
			Kind:     f.Kind,
			State:    f.State,
			SHA256:   contentHash(f.Content),
		})
	}
	return m
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644)
}

// ReadManifest parses the manifest at the root of a committed subtree.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestName, err)
	}
	return &m, nil
}
