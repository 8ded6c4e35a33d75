package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is the top-level structure of a project file. When a project is
// split across several files their bodies are merged before decoding.
type fileRoot struct {
	StagingRoot string          `hcl:"staging_root,optional"`
	SourceRoot  string          `hcl:"source_root,optional"`
	Output      string          `hcl:"output,optional"`
	Modules     []*ModuleBlock  `hcl:"module,block"`
	Libraries   []*LibraryBlock `hcl:"library,block"`
}

// ModuleBlock represents a `module` block: one template tree and the rules
// for specializing it.
type ModuleBlock struct {
	Name             string                  `hcl:"name,label"`
	Root             string                  `hcl:"root"`
	Sources          []string                `hcl:"sources,optional"`
	Headers          []string                `hcl:"headers,optional"`
	IncludeDirs      []string                `hcl:"include_dirs,optional"`
	Prefixes         []string                `hcl:"prefixes,optional"`
	SingleInstance   []string                `hcl:"single_instance,optional"`
	Axes             []*AxisBlock            `hcl:"axis,block"`
	Naming           *NamingBlock            `hcl:"naming,block"`
	Derived          []*DeriveBlock          `hcl:"derive,block"`
	SpecialMacros    []*SpecialMacrosBlock   `hcl:"special_macros,block"`
	IncludeOverrides []*IncludeOverrideBlock `hcl:"include_override,block"`
}

// AxisBlock represents an `axis` block.
type AxisBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// NamingBlock holds the expressions evaluated once per axis combination,
// with `axis.<name>` bound to the combination's values.
type NamingBlock struct {
	Suffix hcl.Expression `hcl:"suffix"`
	Macros hcl.Expression `hcl:"macros,optional"`
}

// DeriveBlock represents a `derive` block producing an extra output file
// from a different template.
type DeriveBlock struct {
	Path string `hcl:"path,label"`
	From string `hcl:"from"`
}

// SpecialMacrosBlock represents a `special_macros` block.
type SpecialMacrosBlock struct {
	Pattern string   `hcl:"pattern"`
	Macros  []string `hcl:"macros"`
}

// IncludeOverrideBlock represents an `include_override` block. `to` is
// evaluated per variant with `variant.suffix`, `variant.key` and
// `variant.axis.<name>` bound; null opts the variant out.
type IncludeOverrideBlock struct {
	From     string         `hcl:"from,label"`
	To       hcl.Expression `hcl:"to"`
	Variants []string       `hcl:"variants,optional"`
}

// LibraryBlock represents a `library` block.
type LibraryBlock struct {
	Name              string   `hcl:"name,label"`
	Modules           []string `hcl:"modules"`
	DependsOn         []string `hcl:"depends_on,optional"`
	ExternalLibraries []string `hcl:"external_libraries,optional"`
	IncludeDirs       []string `hcl:"include_dirs,optional"`
	Defines           []string `hcl:"defines,optional"`
	Kind              string   `hcl:"kind,optional"`
}
