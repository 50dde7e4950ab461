package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/types"
)

// FakeAgent implements types.Agent with a callback.
type FakeAgent struct {
	AgentName string
	RespondFn func(ctx context.Context, text string) (string, error)
}

func (a *FakeAgent) Name() string { return a.AgentName }

func (a *FakeAgent) Respond(ctx context.Context, text string) (string, error) {
	if a.RespondFn != nil {
		return a.RespondFn(ctx, text)
	}
	return "ok", nil
}

// HandoffRequest records one QueueHandoff call observed by a FakeSession.
type HandoffRequest struct {
	Prev, Target, Reason string
}

// FakeSession is a configurable in-memory types.SessionContext.
type FakeSession struct {
	ID       uuid.UUID
	Owner    types.Identity
	Agents   map[string]types.Agent
	Current  string
	Main     string
	Summary  map[string]string
	Sink     types.TraceSink
	Handoffs []HandoffRequest

	// InvokeFn overrides InvokeAgent; the default calls the pool member.
	InvokeFn func(ctx context.Context, agentName, text string) (string, error)
	// QueueErr, when set, is returned by QueueHandoff.
	QueueErr error

	mu sync.Mutex
}

// NewFakeSession builds a FakeSession with sensible defaults and the given
// trace sink.
func NewFakeSession(sink types.TraceSink) *FakeSession {
	return &FakeSession{
		ID:      uuid.New(),
		Owner:   types.Identity{UserID: uuid.New(), Username: "ada", FullName: "Ada Lovelace", Language: "English", Timezone: "UTC"},
		Agents:  make(map[string]types.Agent),
		Current: "supervisor_agent",
		Main:    "supervisor_agent",
		Summary: make(map[string]string),
		Sink:    sink,
	}
}

func (s *FakeSession) SessionID() uuid.UUID          { return s.ID }
func (s *FakeSession) OwnerIdentity() types.Identity { return s.Owner }
func (s *FakeSession) CurrentAgentName() string      { return s.Current }
func (s *FakeSession) MainAgentName() string         { return s.Main }
func (s *FakeSession) Tracer() types.TraceSink       { return s.Sink }

func (s *FakeSession) Agent(name string) (types.Agent, bool) {
	a, ok := s.Agents[name]
	return a, ok
}

func (s *FakeSession) AgentNames() []string {
	names := make([]string, 0, len(s.Agents))
	for name := range s.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *FakeSession) Summaries(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.Summary))
	for k, v := range s.Summary {
		out[k] = v
	}
	return out, nil
}

func (s *FakeSession) RecordSummary(_ context.Context, agentName, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Summary[agentName] = text
	return nil
}

func (s *FakeSession) InvokeAgent(ctx context.Context, agentName, text string) (string, error) {
	if s.InvokeFn != nil {
		return s.InvokeFn(ctx, agentName, text)
	}
	agent, ok := s.Agents[agentName]
	if !ok {
		return "", types.NewError(types.ErrAgentNotFound, fmt.Sprintf("no agent named %q", agentName))
	}
	return agent.Respond(ctx, text)
}

func (s *FakeSession) QueueHandoff(prevName, targetName, reason string) error {
	if s.QueueErr != nil {
		return s.QueueErr
	}
	if _, ok := s.Agents[targetName]; !ok {
		return types.NewError(types.ErrAgentNotFound, fmt.Sprintf("no agent named %q", targetName))
	}
	s.mu.Lock()
	s.Handoffs = append(s.Handoffs, HandoffRequest{Prev: prevName, Target: targetName, Reason: reason})
	s.mu.Unlock()
	return nil
}

// CollectingSink is a types.TraceSink that records entries in memory.
type CollectingSink struct {
	mu      sync.Mutex
	Direct  []types.Trace
	Pending []types.Trace
	// AppendErr, when set, is returned by Append.
	AppendErr error
}

func (c *CollectingSink) Append(_ context.Context, t types.Trace) error {
	if c.AppendErr != nil {
		return c.AppendErr
	}
	c.mu.Lock()
	c.Direct = append(c.Direct, t)
	c.mu.Unlock()
	return nil
}

func (c *CollectingSink) AppendPending(t types.Trace) {
	c.mu.Lock()
	c.Pending = append(c.Pending, t)
	c.mu.Unlock()
}
