// Package sandbox manages the isolated execution environment backing the
// code-running capabilities: one sandbox per conversation, created lazily on
// first use, restarted when found stopped, and torn down when the coding
// agent's session ends or hands off away.
//
// The manager performs no internal queuing: a sandbox is a single-writer
// resource and the orchestrator's per-session serialization is what prevents
// concurrent commands. A transiently unavailable provider surfaces as a
// recoverable "unavailable, retry later" error rather than a crash, so the
// calling tool can narrate the failure to the user.
package sandbox
