package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/trace"
	"github.com/helmsman-ai/helmsman/types"
)

// Options configures orchestrator construction.
type Options struct {
	SessionID uuid.UUID
	Owner     types.Identity

	// Templates are the agent templates visible to the owner.
	Templates []agent.Template
	Registry  *tool.Registry
	Responder agent.Responder

	TraceStore trace.Store
	Summaries  agent.SummaryStore
	Metrics    *metrics.Collector

	// MainAgent receives user turns initially and whenever control is
	// switched back. Defaults to supervisor_agent.
	MainAgent string
	// SummaryTokenBudget caps recorded summaries; 0 disables the cap.
	SummaryTokenBudget int

	Logger *zap.Logger
}

// Orchestrator owns one conversation: its agent pool, its trace log, and
// the deferred hand-off slot. It implements types.SessionContext for the
// capabilities bound to its agents.
//
// User-facing turns are serialized; concurrent InvokeMainWithText calls on
// one session queue behind each other. Distinct sessions run in parallel.
type Orchestrator struct {
	id      uuid.UUID
	owner   types.Identity
	tracer  *trace.Tracer
	summary agent.SummaryStore
	metrics *metrics.Collector
	logger  *zap.Logger

	pool          map[string]types.Agent
	switchable    map[string]bool
	supervisor    string
	summaryBudget int

	// turnMu serializes user-facing turns.
	turnMu sync.Mutex

	// stateMu guards the fields below; they mutate mid-turn.
	stateMu      sync.RWMutex
	mainAgent    string
	currentAgent string
	pending      *Handoff
	closed       bool
}

// New builds an orchestrator from the owner's templates. Every template
// tool id must be registered; an unknown id aborts construction with a
// configuration error. The trace timestamp watermark and per-agent
// summaries are resumed from their stores, so a rebuilt orchestrator
// continues a persisted conversation.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "orchestrator"), zap.String("session_id", opts.SessionID.String()))

	if opts.MainAgent == "" {
		opts.MainAgent = "supervisor_agent"
	}

	tracer, err := trace.NewTracer(ctx, opts.SessionID, opts.TraceStore, opts.Logger)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		id:            opts.SessionID,
		owner:         opts.Owner,
		tracer:        tracer,
		summary:       opts.Summaries,
		metrics:       opts.Metrics,
		logger:        logger,
		pool:          make(map[string]types.Agent, len(opts.Templates)),
		switchable:    make(map[string]bool, len(opts.Templates)),
		supervisor:    opts.MainAgent,
		summaryBudget: opts.SummaryTokenBudget,
		mainAgent:     opts.MainAgent,
		currentAgent:  opts.MainAgent,
	}

	for i := range opts.Templates {
		tmpl := &opts.Templates[i]
		rt, err := agent.NewRuntime(tmpl, opts.Registry, opts.Responder, o, opts.Logger)
		if err != nil {
			return nil, err
		}
		o.pool[tmpl.Name] = rt
		o.switchable[tmpl.Name] = tmpl.SwitchableInto
	}

	if _, ok := o.pool[opts.MainAgent]; !ok {
		return nil, types.NewConfigError(types.ErrInvalidConfig,
			fmt.Sprintf("main agent %q has no template", opts.MainAgent))
	}

	if opts.Metrics != nil {
		opts.Metrics.SessionOpened()
	}
	return o, nil
}

// InvokeMainWithText runs one user-authored turn: the human_message is
// recorded, the main agent responds, and any hand-off queued during the
// turn commits afterwards, chaining into the target's first turn.
func (o *Orchestrator) InvokeMainWithText(ctx context.Context, username, text string) (string, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.stateMu.RLock()
	closed := o.closed
	main := o.mainAgent
	o.stateMu.RUnlock()
	if closed {
		return "", types.NewError(types.ErrSessionClosed, "session is closed")
	}

	human := &types.HumanMessage{Username: username, Content: text}
	if err := o.tracer.Append(ctx, human); err != nil {
		return "", err
	}

	out, err := o.runTurn(ctx, main, text, true)
	if err != nil {
		return "", err
	}

	if err := o.commitHandoffs(ctx); err != nil {
		return "", err
	}
	return out, nil
}

// runTurn executes one agent turn: respond, flush capability traces staged
// during the turn, then record the ai_message. Any trace write failure
// fails the turn.
func (o *Orchestrator) runTurn(ctx context.Context, agentName, text string, isMain bool) (string, error) {
	ag, ok := o.pool[agentName]
	if !ok {
		return "", types.NewError(types.ErrAgentNotFound, fmt.Sprintf("no agent named %q", agentName))
	}

	o.stateMu.Lock()
	prev := o.currentAgent
	o.currentAgent = agentName
	o.stateMu.Unlock()

	defer func() {
		o.stateMu.Lock()
		if isMain {
			// A main turn idles on whoever holds the session now, so a
			// committed hand-off leaves control with the new main agent.
			o.currentAgent = o.mainAgent
		} else {
			o.currentAgent = prev
		}
		o.stateMu.Unlock()
	}()

	start := time.Now()
	out, err := ag.Respond(ctx, text)
	if o.metrics != nil {
		o.metrics.RecordTurn(agentName, time.Since(start), err)
	}
	if err != nil {
		o.logger.Warn("agent turn failed", zap.String("agent", agentName), zap.Error(err))
		return "", err
	}

	if err := o.tracer.FlushPending(ctx); err != nil {
		return "", err
	}

	msg := &types.AIMessage{AgentName: agentName, Content: out, IsMainAgent: isMain}
	if err := o.tracer.Append(ctx, msg); err != nil {
		return "", err
	}
	return out, nil
}

// commitHandoffs drains the pending slot. Committing a hand-off runs the
// target's first turn, which may itself queue another hand-off.
func (o *Orchestrator) commitHandoffs(ctx context.Context) error {
	for {
		o.stateMu.Lock()
		h := o.pending
		o.pending = nil
		if h == nil {
			o.stateMu.Unlock()
			return nil
		}
		from := o.mainAgent
		o.mainAgent = h.Target
		o.stateMu.Unlock()

		o.logger.Info("hand-off committed",
			zap.String("from", from),
			zap.String("to", h.Target),
			zap.String("reason", h.Reason),
		)
		if o.metrics != nil {
			o.metrics.RecordHandoff(from, h.Target)
		}

		if _, err := o.runTurn(ctx, h.Target, h.Notice(), true); err != nil {
			return err
		}
	}
}

// Close stops the orchestrator from accepting further turns. Persistent
// state stays; a later reconstruction resumes the conversation.
func (o *Orchestrator) Close() {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.stateMu.Lock()
	alreadyClosed := o.closed
	o.closed = true
	o.stateMu.Unlock()

	if !alreadyClosed && o.metrics != nil {
		o.metrics.SessionClosed()
	}
}

// Trace exposes the session's tracer for read paths (history, incremental
// queries, live subscriptions).
func (o *Orchestrator) Trace() *trace.Tracer { return o.tracer }

// AgentSwitchable reports whether a hand-off may target the named agent.
// The supervisor is always a legal target.
func (o *Orchestrator) AgentSwitchable(name string) bool {
	if name == o.supervisor {
		return true
	}
	return o.switchable[name]
}

// Supervisor returns the agent that receives control on switch-back.
func (o *Orchestrator) Supervisor() string { return o.supervisor }

// === types.SessionContext implementation ===

func (o *Orchestrator) SessionID() uuid.UUID          { return o.id }
func (o *Orchestrator) OwnerIdentity() types.Identity { return o.owner }
func (o *Orchestrator) Tracer() types.TraceSink       { return o.tracer }

func (o *Orchestrator) Agent(name string) (types.Agent, bool) {
	ag, ok := o.pool[name]
	return ag, ok
}

func (o *Orchestrator) AgentNames() []string {
	names := make([]string, 0, len(o.pool))
	for name := range o.pool {
		names = append(names, name)
	}
	return names
}

func (o *Orchestrator) CurrentAgentName() string {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.currentAgent
}

func (o *Orchestrator) MainAgentName() string {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.mainAgent
}

func (o *Orchestrator) Summaries(ctx context.Context) (map[string]string, error) {
	return o.summary.All(ctx, o.id)
}

func (o *Orchestrator) RecordSummary(ctx context.Context, agentName, text string) error {
	return o.summary.Put(ctx, o.id, agentName, agent.TruncateToTokens(text, o.summaryBudget))
}

// InvokeAgent runs a nested turn of the named agent on behalf of the
// caller. The nested ai_message is never attributed main-agent status and
// main-agent bookkeeping is untouched.
func (o *Orchestrator) InvokeAgent(ctx context.Context, agentName, text string) (string, error) {
	return o.runTurn(ctx, agentName, text, false)
}

// QueueHandoff stages a deferred transfer of main-agent status. The slot
// holds at most one request; the last write wins. Unknown or ineligible
// targets are rejected without touching state.
func (o *Orchestrator) QueueHandoff(prevName, targetName, reason string) error {
	if _, ok := o.pool[targetName]; !ok {
		return types.NewError(types.ErrAgentNotFound, fmt.Sprintf("unknown agent name %q", targetName))
	}
	if !o.AgentSwitchable(targetName) {
		return types.NewError(types.ErrAgentNotSwitchable, fmt.Sprintf("agent %q cannot be switched into", targetName))
	}

	o.stateMu.Lock()
	if o.pending != nil {
		o.logger.Debug("pending hand-off replaced",
			zap.String("old_target", o.pending.Target),
			zap.String("new_target", targetName),
		)
	}
	o.pending = &Handoff{Prev: prevName, Target: targetName, Reason: reason}
	o.stateMu.Unlock()
	return nil
}
