package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the project file at path, translates it into the
	// format-agnostic model and validates it.
	Load(ctx context.Context, path string) (*Project, error)
}

// NamingRule maps one combination of axis values to a variant suffix and
// its ordered macro list.
type NamingRule interface {
	Evaluate(axisValues map[string]string) (suffix string, macros []string, err error)
}

// NamingFunc adapts a plain function to the NamingRule interface.
type NamingFunc func(axisValues map[string]string) (string, []string, error)

// Evaluate implements NamingRule.
func (f NamingFunc) Evaluate(axisValues map[string]string) (string, []string, error) {
	return f(axisValues)
}

// VariantInfo is the view of a planned variant that override rules see.
type VariantInfo struct {
	Suffix     string
	Key        string
	AxisValues map[string]string
}

// OverrideRule resolves the per-variant replacement name of an include
// override. ok is false when the override does not apply to the variant.
type OverrideRule interface {
	Resolve(v VariantInfo) (to string, ok bool, err error)
}

// OverrideFunc adapts a plain function to the OverrideRule interface.
type OverrideFunc func(v VariantInfo) (string, bool, error)

// Resolve implements OverrideRule.
func (f OverrideFunc) Resolve(v VariantInfo) (string, bool, error) {
	return f(v)
}

// StaticOverride returns a rule that always resolves to the same name.
func StaticOverride(to string) OverrideRule {
	return OverrideFunc(func(VariantInfo) (string, bool, error) {
		return to, true, nil
	})
}
