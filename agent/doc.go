// Package agent provides the runtime agent built from persisted templates,
// per-agent rolling chat summaries, and the template/tool tables with their
// seed data.
package agent
