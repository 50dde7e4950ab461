// Package tool implements the capability registry: the process-wide mapping
// from stable tool identifiers to factories that, given a session context,
// produce ready-to-call capabilities bound to that session.
//
// Registration happens once at process start. Resolving an identifier that
// was never registered is a fatal configuration error that aborts session
// construction: an agent template referencing a missing tool indicates a
// deployment defect, not a runtime condition to recover from.
//
// Tracing is a composable wrapper, not implicit magic: WrapWithTracing
// decorates a capability so that every call appends a tool trace entry
// attributed to the agent in control at call time.
package tool
