// Package session implements the per-conversation orchestrator: the agent
// pool, the deferred hand-off coordinator, turn serialization, and the
// manager that maps session ids to live orchestrators.
package session
