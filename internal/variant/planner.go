// Package variant expands a template module's declared axes into the
// concrete set of variants to generate.
package variant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/specialistvlad/variantforge/internal/config"
)

// ErrNamingCollision is returned when two axis combinations of one module
// resolve to the same suffix or staging key.
var ErrNamingCollision = errors.New("naming collision")

// AxisValue is one coordinate of a variant.
type AxisValue struct {
	Axis  string
	Value string
}

// Spec is one concrete specialization of a template module.
type Spec struct {
	Module string
	// AxisValues follows the module's axis declaration order.
	AxisValues []AxisValue
	Suffix     string
	Macros     []string
	// Key names the variant's staging subtree. It is derived from the axis
	// values alone, so it stays distinct even when the suffix is empty.
	Key string
}

// Values returns the axis values keyed by axis name.
func (s Spec) Values() map[string]string {
	out := make(map[string]string, len(s.AxisValues))
	for _, av := range s.AxisValues {
		out[av.Axis] = av.Value
	}
	return out
}

// Info returns the view of the variant exposed to configuration rules.
func (s Spec) Info() config.VariantInfo {
	return config.VariantInfo{Suffix: s.Suffix, Key: s.Key, AxisValues: s.Values()}
}

// String implements fmt.Stringer.
func (s Spec) String() string {
	return s.Module + "/" + s.Key
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// keyFor builds the staging key, e.g. "index-64.domain-complex".
func keyFor(values []AxisValue) string {
	parts := make([]string, len(values))
	for i, av := range values {
		parts[i] = unsafeKeyChars.ReplaceAllString(av.Axis, "_") + "-" + unsafeKeyChars.ReplaceAllString(av.Value, "_")
	}
	return strings.Join(parts, ".")
}

// combinations returns the cross-product of the axes. The first declared
// axis varies slowest.
func combinations(axes []config.Axis) [][]AxisValue {
	if len(axes) == 0 {
		return nil
	}
	combos := [][]AxisValue{{}}
	for _, axis := range axes {
		next := make([][]AxisValue, 0, len(combos)*len(axis.Values))
		for _, prefix := range combos {
			for _, v := range axis.Values {
				combo := make([]AxisValue, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, AxisValue{Axis: axis.Name, Value: v}))
			}
		}
		combos = next
	}
	return combos
}

// Plan expands a module's axes into one Spec per axis-value combination.
// A module without axes has nothing to specialize and yields no variants.
func Plan(m *config.Module) ([]Spec, error) {
	combos := combinations(m.Axes)
	if len(combos) == 0 {
		return nil, nil
	}
	if m.Naming == nil {
		return nil, fmt.Errorf("module '%s': no naming rule", m.Name)
	}

	specs := make([]Spec, 0, len(combos))
	bySuffix := make(map[string]string, len(combos))
	byKey := make(map[string]struct{}, len(combos))

	for _, combo := range combos {
		spec := Spec{Module: m.Name, AxisValues: combo, Key: keyFor(combo)}

		suffix, macros, err := m.Naming.Evaluate(spec.Values())
		if err != nil {
			return nil, fmt.Errorf("module '%s', variant %s: naming rule: %w", m.Name, spec.Key, err)
		}
		if strings.ContainsAny(suffix, `/\.`) {
			return nil, fmt.Errorf("module '%s', variant %s: suffix %q must not contain path separators or dots", m.Name, spec.Key, suffix)
		}
		spec.Suffix = suffix
		for _, macro := range macros {
			if macro = strings.TrimSpace(macro); macro != "" {
				spec.Macros = append(spec.Macros, macro)
			}
		}

		if other, dup := bySuffix[suffix]; dup {
			return nil, fmt.Errorf("%w: module '%s': variants %s and %s both use suffix %q", ErrNamingCollision, m.Name, other, spec.Key, suffix)
		}
		bySuffix[suffix] = spec.Key
		if _, dup := byKey[spec.Key]; dup {
			return nil, fmt.Errorf("%w: module '%s': staging key %q is not unique", ErrNamingCollision, m.Name, spec.Key)
		}
		byKey[spec.Key] = struct{}{}

		specs = append(specs, spec)
	}
	return specs, nil
}

// PlanProject plans every module of the project, keyed by module name.
// It fails on the first module whose plan is invalid, before any
// filesystem work is attempted.
func PlanProject(p *config.Project) (map[string][]Spec, error) {
	plans := make(map[string][]Spec, len(p.Modules))
	for _, m := range p.Modules {
		specs, err := Plan(m)
		if err != nil {
			return nil, err
		}
		plans[m.Name] = specs
	}
	return plans, nil
}
