// Package config defines the format-agnostic project model: template
// modules, their specialization axes and rules, and the logical libraries
// composed from them. It also declares the Loader interface implemented by
// concrete configuration formats.
//
// The `config.Project` is the single source of truth for the `variant`,
// `materialize`, `pipeline` and `target` packages. Concrete loaders, such as
// the HCL one, live in separate packages.
package config
