package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// Runtime is a pool member built from a persisted template. Its identity
// is immutable; the master prompt is rebuilt per turn so the current date
// and the latest rolling summary are always fresh.
type Runtime struct {
	name           string
	persona        string
	purpose        string
	switchableInto bool

	capabilities []*tool.Capability
	responder    Responder
	sctx         types.SessionContext
	logger       *zap.Logger
}

// NewRuntime builds an agent from a template, resolving its tool ids
// through the registry. An unregistered tool id aborts construction with a
// configuration error.
func NewRuntime(tmpl *Template, registry *tool.Registry, responder Responder, sctx types.SessionContext, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	toolIDs := make([]string, 0, len(tmpl.Tools))
	for _, t := range tmpl.Tools {
		toolIDs = append(toolIDs, t.ID)
	}

	capabilities, err := registry.ResolveAll(toolIDs, sctx)
	if err != nil {
		return nil, fmt.Errorf("build agent %q: %w", tmpl.Name, err)
	}

	return &Runtime{
		name:           tmpl.Name,
		persona:        tmpl.Persona,
		purpose:        tmpl.Purpose,
		switchableInto: tmpl.SwitchableInto,
		capabilities:   capabilities,
		responder:      responder,
		sctx:           sctx,
		logger:         logger.With(zap.String("component", "agent"), zap.String("agent", tmpl.Name)),
	}, nil
}

// Name implements types.Agent.
func (r *Runtime) Name() string { return r.name }

// SwitchableInto reports whether a hand-off may target this agent.
func (r *Runtime) SwitchableInto() bool { return r.switchableInto }

// Respond implements types.Agent. One call is one turn.
func (r *Runtime) Respond(ctx context.Context, text string) (string, error) {
	summaries, err := r.sctx.Summaries(ctx)
	if err != nil {
		return "", fmt.Errorf("load summaries for %q: %w", r.name, err)
	}

	prompt := r.masterPrompt(summaries[r.name])
	r.logger.Debug("responding", zap.Int("capabilities", len(r.capabilities)))

	return r.responder.Respond(ctx, prompt, text, r.capabilities)
}

// masterPrompt embeds the agent's persona and purpose, the owner's identity
// and settings, the current UTC date, and the agent's rolling summary.
func (r *Runtime) masterPrompt(summary string) string {
	owner := r.sctx.OwnerIdentity()
	now := time.Now().UTC()

	var b strings.Builder

	fmt.Fprintf(&b, "Persona:\n%s\n\n", strings.TrimSpace(r.persona))
	fmt.Fprintf(&b, "Purpose:\n%s\n\n", strings.TrimSpace(r.purpose))

	b.WriteString("Some basic info on the user:\n")
	fmt.Fprintf(&b, "* User's username: %s\n", owner.Username)
	fmt.Fprintf(&b, "* User's full name: %s\n", owner.FullName)
	fmt.Fprintf(&b, "* Preferred Language: %s\n", owner.Language)
	fmt.Fprintf(&b, "* City: %s\n", owner.City)
	fmt.Fprintf(&b, "* Country: %s\n", owner.Country)
	fmt.Fprintf(&b, "* Time Zone: %s\n\n", owner.Timezone)

	fmt.Fprintf(&b, "The current date in UTC is %s. ", now.Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("Anything that happened before this date is in the past; always speak of it in past tense.\n\n")

	b.WriteString("Please speak in the user's preferred language. If the user tries to get you to ")
	b.WriteString("speak in another language, tell them to change their preferred language in the ")
	b.WriteString("settings, using the language they are currently writing in.\n\n")

	b.WriteString("Your tools all work with UTC time. When repeating dates or times from tool ")
	b.WriteString("output to the user, convert them to the user's timezone first.\n\n")

	b.WriteString("If you have a chat summarization tool, use it to save conversation progress ")
	b.WriteString("whenever something important happens.\n\n")

	fmt.Fprintf(&b, "Here is a summary of the previous chat you had with the user:\n%s\n", summary)

	return b.String()
}
