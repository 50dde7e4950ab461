// Package types defines the shared kernel of the helmsman orchestration
// core: the kind-tagged trace entry union, the structured error model, and
// the contracts that agents, capabilities, and the session context satisfy.
//
// Nothing in this package performs I/O. Higher-level packages (trace, tool,
// session) depend on it; it depends on nothing but the standard library and
// github.com/google/uuid.
package types
