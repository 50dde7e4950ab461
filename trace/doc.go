// Package trace implements the append-only, timestamp-ordered trace log that
// records everything that happens in one conversation: user messages, agent
// responses, tool calls, and generated artifacts.
//
// The log is the sole mechanism for conversation continuity after a process
// restart, so writes fail loudly: a failed append fails the enclosing turn
// rather than proceeding with an incomplete audit trail.
//
// Ordering guarantee: for two entries produced by the same session, if entry
// X was appended strictly before entry Y began, X's timestamp is strictly
// less than Y's, even under clock-resolution limits. Ties are broken by a
// monotonic nudge at stamping time and by insertion sequence in storage.
package trace
