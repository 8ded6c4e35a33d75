// Package dag holds the dependency graph of build targets. It detects
// cycles and yields a deterministic topological order in which every
// target comes after the targets it links against.
package dag
