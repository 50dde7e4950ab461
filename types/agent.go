package types

import (
	"context"

	"github.com/google/uuid"
)

// Agent is what the hand-off coordinator requires of every pool member.
// Respond may internally call capabilities, which may call back into the
// session context (nested agent invocations, hand-off requests, artifacts).
type Agent interface {
	Name() string
	Respond(ctx context.Context, text string) (string, error)
}

// Identity describes the user that owns a session, as embedded into agent
// prompts and human_message attribution.
type Identity struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	FullName string    `json:"full_name,omitempty"`
	Language string    `json:"language,omitempty"`
	City     string    `json:"city,omitempty"`
	Country  string    `json:"country,omitempty"`
	Timezone string    `json:"timezone,omitempty"`
}

// TraceSink is the write surface of the trace log exposed to capabilities.
// Append persists immediately and fails loudly; AppendPending stages an entry
// in memory for callers that run without store access, to be flushed by the
// orchestrator under its own call.
type TraceSink interface {
	Append(ctx context.Context, t Trace) error
	AppendPending(t Trace)
}

// SessionContext is the contract consumed by capabilities. A capability
// closure produced by a tool factory captures exactly one of these, binding
// it to one session.
type SessionContext interface {
	// SessionID identifies the owning conversation.
	SessionID() uuid.UUID

	// OwnerIdentity returns the user the session belongs to.
	OwnerIdentity() Identity

	// Agent resolves a pool member by name.
	Agent(name string) (Agent, bool)

	// AgentNames lists the pool members.
	AgentNames() []string

	// CurrentAgentName is the agent in control right now, used for tool
	// call attribution during nested invocations.
	CurrentAgentName() string

	// MainAgentName is the agent currently receiving user-authored turns.
	MainAgentName() string

	// Summaries returns the per-agent rolling summaries for this session.
	Summaries(ctx context.Context) (map[string]string, error)

	// RecordSummary stores the rolling summary for the named agent.
	RecordSummary(ctx context.Context, agentName, text string) error

	// Tracer returns the session's trace sink.
	Tracer() TraceSink

	// InvokeAgent runs one turn of the named agent as a sub-routine of the
	// caller. It never disturbs main-agent status.
	InvokeAgent(ctx context.Context, agentName, text string) (string, error)

	// QueueHandoff requests a deferred transfer of main-agent status. At
	// most one hand-off is outstanding per turn; the last request wins. An
	// unknown target is rejected and leaves state unchanged.
	QueueHandoff(prevName, targetName, reason string) error
}
