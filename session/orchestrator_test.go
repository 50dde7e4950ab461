package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/tool/builtin"
	"github.com/helmsman-ai/helmsman/trace"
	"github.com/helmsman-ai/helmsman/types"
)

// scriptedResponder pops one step per agent turn, in call order. Steps get
// the resolved capabilities so they can drive the hand-off tools the way a
// model would.
type scriptedResponder struct {
	mu    sync.Mutex
	steps []func(ctx context.Context, capabilities []*tool.Capability) (string, error)
}

func (s *scriptedResponder) push(step func(ctx context.Context, capabilities []*tool.Capability) (string, error)) {
	s.mu.Lock()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
}

func (s *scriptedResponder) Respond(ctx context.Context, _, _ string, capabilities []*tool.Capability) (string, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return "nothing scripted", nil
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()
	return step(ctx, capabilities)
}

func callCapability(ctx context.Context, capabilities []*tool.Capability, name string, args map[string]any) (string, error) {
	for _, c := range capabilities {
		if c.Name == name {
			return c.Call(ctx, args)
		}
	}
	return "", fmt.Errorf("capability %q not resolved", name)
}

func reply(text string) func(context.Context, []*tool.Capability) (string, error) {
	return func(context.Context, []*tool.Capability) (string, error) {
		return text, nil
	}
}

func testTemplates() []agent.Template {
	return []agent.Template{
		{
			Name:    "supervisor_agent",
			Persona: "supervisor persona",
			Purpose: "coordinate",
			Tools: []agent.Tool{
				{ID: "switch_to_more_qualified_agent"},
				{ID: "check_helper_agent_chat_summaries"},
				{ID: "summarize_chat"},
			},
		},
		{
			Name:           "math_agent",
			Persona:        "math persona",
			Purpose:        "solve math",
			SwitchableInto: true,
			Tools:          []agent.Tool{{ID: "switch_back_to_supervisor"}},
		},
		{
			Name:    "research_agent",
			Persona: "research persona",
			Purpose: "look things up",
		},
	}
}

func newTestOrchestrator(t *testing.T, responder agent.Responder, store trace.Store) *Orchestrator {
	t.Helper()
	return newTestOrchestratorWithID(t, responder, store, uuid.New())
}

func newTestOrchestratorWithID(t *testing.T, responder agent.Responder, store trace.Store, sessionID uuid.UUID) *Orchestrator {
	t.Helper()

	registry := tool.NewRegistry(nil)
	builtin.RegisterControl(registry, nil)

	o, err := New(context.Background(), Options{
		SessionID:  sessionID,
		Owner:      types.Identity{UserID: uuid.New(), Username: "ada", FullName: "Ada Lovelace", Timezone: "UTC"},
		Templates:  testTemplates(),
		Registry:   registry,
		Responder:  responder,
		TraceStore: store,
		Summaries:  agent.NewMemorySummaryStore(),
	})
	require.NoError(t, err)
	return o
}

func TestHandoffScenarioTranscript(t *testing.T) {
	responder := &scriptedResponder{}
	// Supervisor turn: switch to the math agent, then answer.
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		out, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "math_agent",
			"reason":     "the user asked a math question",
		})
		if err != nil {
			return "", err
		}
		if out != "switched to math_agent!" {
			return "", fmt.Errorf("unexpected switch result %q", out)
		}
		return "Let me hand you to the math expert.", nil
	})
	// Math agent turn, triggered by the synthesized notice.
	responder.push(reply("Hello! I'm ready for your math question."))

	store := trace.NewMemoryStore()
	o := newTestOrchestrator(t, responder, store)

	_, err := o.InvokeMainWithText(context.Background(), "ada", "What is the integral of x^2?")
	require.NoError(t, err)

	assert.Equal(t, "math_agent", o.MainAgentName())

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 4)

	human, ok := history[0].(*types.HumanMessage)
	require.True(t, ok)
	assert.Equal(t, "ada", human.Username)

	toolCall, ok := history[1].(*types.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "switch_to_more_qualified_agent", toolCall.Name)
	assert.Equal(t, "supervisor_agent", toolCall.CalledBy)

	supMsg, ok := history[2].(*types.AIMessage)
	require.True(t, ok)
	assert.Equal(t, "supervisor_agent", supMsg.AgentName)
	assert.True(t, supMsg.IsMainAgent)

	mathMsg, ok := history[3].(*types.AIMessage)
	require.True(t, ok)
	assert.Equal(t, "math_agent", mathMsg.AgentName)
	assert.True(t, mathMsg.IsMainAgent)
	assert.LessOrEqual(t, supMsg.Timestamp, mathMsg.Timestamp)
}

func TestHandoffLeavesControlWithNewMain(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		if _, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "math_agent",
			"reason":     "math question",
		}); err != nil {
			return "", err
		}
		return "Handing over.", nil
	})
	responder.push(reply("Ready."))

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	_, err := o.InvokeMainWithText(context.Background(), "ada", "solve this")
	require.NoError(t, err)

	// Between turns the session idles on the agent now holding it.
	assert.Equal(t, "math_agent", o.MainAgentName())
	assert.Equal(t, "math_agent", o.CurrentAgentName())
}

func TestHandoffToIneligibleAgentLeavesStateUnchanged(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		out, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "research_agent",
		})
		if err != nil {
			return "", err
		}
		return out, nil
	})

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	out, err := o.InvokeMainWithText(context.Background(), "ada", "look this up")
	require.NoError(t, err)
	assert.Equal(t, "agent 'research_agent' cannot be switched into", out)
	assert.Equal(t, "supervisor_agent", o.MainAgentName())
}

func TestHandoffToUnknownAgentLeavesStateUnchanged(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		return callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "bogus_agent",
		})
	})

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	out, err := o.InvokeMainWithText(context.Background(), "ada", "hello")
	require.NoError(t, err)
	assert.Equal(t, "unknown agent name 'bogus_agent'", out)
	assert.Equal(t, "supervisor_agent", o.MainAgentName())

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 3) // human, tool, ai
}

func TestPendingHandoffLastWriteWins(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		if _, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "math_agent", "reason": "first thought",
		}); err != nil {
			return "", err
		}
		if _, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "math_agent", "reason": "second thought",
		}); err != nil {
			return "", err
		}
		return "handing off", nil
	})
	responder.push(reply("math agent here"))

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	_, err := o.InvokeMainWithText(context.Background(), "ada", "math please")
	require.NoError(t, err)
	assert.Equal(t, "math_agent", o.MainAgentName())

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)

	var mathTurns int
	for _, entry := range history {
		if msg, ok := entry.(*types.AIMessage); ok && msg.AgentName == "math_agent" {
			mathTurns++
		}
	}
	assert.Equal(t, 1, mathTurns)
}

func TestChainedSwitchBack(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		_, err := callCapability(ctx, capabilities, "switch_to_more_qualified_agent", map[string]any{
			"agent_name": "math_agent",
		})
		return "off you go", err
	})
	// The math agent immediately hands control back.
	responder.push(func(ctx context.Context, capabilities []*tool.Capability) (string, error) {
		_, err := callCapability(ctx, capabilities, "switch_back_to_supervisor", nil)
		return "done already", err
	})
	responder.push(reply("supervisor back in control"))

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	_, err := o.InvokeMainWithText(context.Background(), "ada", "quick math")
	require.NoError(t, err)
	assert.Equal(t, "supervisor_agent", o.MainAgentName())

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)

	var agents []string
	for _, entry := range history {
		if msg, ok := entry.(*types.AIMessage); ok {
			agents = append(agents, msg.AgentName)
		}
	}
	assert.Equal(t, []string{"supervisor_agent", "math_agent", "supervisor_agent"}, agents)
}

func TestNestedInvocationDoesNotDisturbMain(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(func(ctx context.Context, _ []*tool.Capability) (string, error) {
		return "supervisor answer", nil
	})

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	// A capability asking the research agent mid-turn.
	out, err := o.InvokeAgent(context.Background(), "research_agent", "what year is it")
	require.NoError(t, err)
	assert.Equal(t, "supervisor answer", out)
	assert.Equal(t, "supervisor_agent", o.MainAgentName())

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	msg, ok := history[0].(*types.AIMessage)
	require.True(t, ok)
	assert.Equal(t, "research_agent", msg.AgentName)
	assert.False(t, msg.IsMainAgent)
}

type failingInsertStore struct {
	*trace.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (s *failingInsertStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *failingInsertStore) Insert(ctx context.Context, sessionID uuid.UUID, t types.Trace) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("disk full")
	}
	return s.MemoryStore.Insert(ctx, sessionID, t)
}

func TestFailedTraceAppendFailsTurn(t *testing.T) {
	responder := &scriptedResponder{}
	responder.push(reply("fine"))

	store := &failingInsertStore{MemoryStore: trace.NewMemoryStore()}
	o := newTestOrchestrator(t, responder, store)

	store.setFail(true)
	_, err := o.InvokeMainWithText(context.Background(), "ada", "hello")
	require.Error(t, err)
	assert.Equal(t, types.ErrTraceStore, types.CodeOf(err))
}

func TestClosedSessionRejectsTurns(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedResponder{}, trace.NewMemoryStore())
	o.Close()

	_, err := o.InvokeMainWithText(context.Background(), "ada", "hello")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.CodeOf(err))
}

func TestTurnsAreSerializedPerSession(t *testing.T) {
	var active, maxActive int32
	var mu sync.Mutex

	responder := agent.ResponderFunc(func(context.Context, string, string, []*tool.Capability) (string, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return "ok", nil
	})

	o := newTestOrchestrator(t, responder, trace.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := o.InvokeMainWithText(context.Background(), "ada", fmt.Sprintf("turn %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxActive)

	history, err := o.Trace().History(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 16) // 8 human + 8 ai

	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].TraceMeta().Timestamp, history[i-1].TraceMeta().Timestamp)
	}
}

func TestRestartResumesConversation(t *testing.T) {
	store := trace.NewMemoryStore()
	sessionID := uuid.New()

	first := &scriptedResponder{}
	first.push(reply("before restart"))
	o1 := newTestOrchestratorWithID(t, first, store, sessionID)
	_, err := o1.InvokeMainWithText(context.Background(), "ada", "hello")
	require.NoError(t, err)
	o1.Close()

	second := &scriptedResponder{}
	second.push(reply("after restart"))
	o2 := newTestOrchestratorWithID(t, second, store, sessionID)
	_, err = o2.InvokeMainWithText(context.Background(), "ada", "are you still there")
	require.NoError(t, err)

	history, err := o2.Trace().History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].TraceMeta().Timestamp, history[i-1].TraceMeta().Timestamp)
	}
}

func TestUnknownMainAgentIsConfigError(t *testing.T) {
	registry := tool.NewRegistry(nil)
	builtin.RegisterControl(registry, nil)

	_, err := New(context.Background(), Options{
		SessionID:  uuid.New(),
		Templates:  testTemplates(),
		Registry:   registry,
		Responder:  &scriptedResponder{},
		TraceStore: trace.NewMemoryStore(),
		Summaries:  agent.NewMemorySummaryStore(),
		MainAgent:  "nonexistent_agent",
	})
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestUnregisteredTemplateToolAbortsConstruction(t *testing.T) {
	registry := tool.NewRegistry(nil) // nothing registered

	_, err := New(context.Background(), Options{
		SessionID:  uuid.New(),
		Templates:  testTemplates(),
		Registry:   registry,
		Responder:  &scriptedResponder{},
		TraceStore: trace.NewMemoryStore(),
		Summaries:  agent.NewMemorySummaryStore(),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotRegistered, types.CodeOf(err))
}
