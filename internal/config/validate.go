package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidConfig marks a structurally invalid project configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// moduleName keeps a module name usable as one directory below the staging
// root.
var moduleName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate performs the structural checks that need no filesystem access.
// Every problem found is reported, not just the first one.
func (p *Project) Validate() error {
	var errs []string

	if p.StagingRoot == "" {
		errs = append(errs, "staging_root must be set")
	}

	modules := make(map[string]struct{}, len(p.Modules))
	for _, m := range p.Modules {
		if _, dup := modules[m.Name]; dup {
			errs = append(errs, fmt.Sprintf("module '%s' is declared more than once", m.Name))
		}
		modules[m.Name] = struct{}{}
		errs = append(errs, m.validate()...)
	}

	libraries := make(map[string]struct{}, len(p.Libraries))
	for _, l := range p.Libraries {
		if _, dup := libraries[l.Name]; dup {
			errs = append(errs, fmt.Sprintf("library '%s' is declared more than once", l.Name))
		}
		libraries[l.Name] = struct{}{}

		for _, name := range l.Modules {
			if _, ok := modules[name]; !ok {
				errs = append(errs, fmt.Sprintf("library '%s': unknown module '%s'", l.Name, name))
			}
		}
		switch l.Kind {
		case ArtifactStatic, ArtifactShared:
		default:
			errs = append(errs, fmt.Sprintf("library '%s': kind must be 'static' or 'shared', got '%s'", l.Name, l.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

func (m *Module) validate() []string {
	var errs []string
	if !moduleName.MatchString(m.Name) {
		errs = append(errs, fmt.Sprintf("module '%s': name must be a single path segment of letters, digits, '_' or '-'", m.Name))
	}
	if m.RootDir == "" {
		errs = append(errs, fmt.Sprintf("module '%s': root must be set", m.Name))
	}

	axes := make(map[string]struct{}, len(m.Axes))
	for _, a := range m.Axes {
		if _, dup := axes[a.Name]; dup {
			errs = append(errs, fmt.Sprintf("module '%s': axis '%s' is declared more than once", m.Name, a.Name))
		}
		axes[a.Name] = struct{}{}

		if len(a.Values) == 0 {
			errs = append(errs, fmt.Sprintf("module '%s': axis '%s' has no values", m.Name, a.Name))
		}
		seen := make(map[string]struct{}, len(a.Values))
		for _, v := range a.Values {
			if _, dup := seen[v]; dup {
				errs = append(errs, fmt.Sprintf("module '%s': axis '%s' repeats value '%s'", m.Name, a.Name, v))
			}
			seen[v] = struct{}{}
		}
	}
	if len(m.Axes) > 0 && m.Naming == nil {
		errs = append(errs, fmt.Sprintf("module '%s': axes declared without a naming rule", m.Name))
	}

	for _, d := range m.Derived {
		if d.From == "" {
			errs = append(errs, fmt.Sprintf("module '%s': derived file '%s' names no template", m.Name, d.Path))
		}
	}
	for _, o := range m.IncludeOverrides {
		if o.Rule == nil {
			errs = append(errs, fmt.Sprintf("module '%s': include override '%s' has no rule", m.Name, o.From))
		}
	}
	for _, s := range m.SpecialMacros {
		if s.Pattern == nil {
			errs = append(errs, fmt.Sprintf("module '%s': special macros entry without a pattern", m.Name))
		}
	}
	return errs
}
