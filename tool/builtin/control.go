package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// supervisorName is the agent that switch_back_to_supervisor targets and
// the one allowed to initiate qualified-agent switches.
const supervisorName = "supervisor_agent"

// codingAgentName marks the agent whose hand-back tears the sandbox down.
const codingAgentName = "coding_agent"

// switchabilityReporter is implemented by session contexts that track the
// switchable-into flag per agent. Contexts without it fall back to
// existence-only validation.
type switchabilityReporter interface {
	AgentSwitchable(name string) bool
}

// RegisterControl registers the hand-off and summary control tools. The
// sandbox manager may be nil when no sandboxed agents are deployed.
func RegisterControl(r *tool.Registry, sandboxes *sandbox.Manager) {
	r.Register("switch_to_more_qualified_agent", switchToQualifiedAgentFactory)
	r.Register("switch_back_to_supervisor", switchBackFactory(sandboxes))
	r.Register("check_helper_agent_chat_summaries", checkSummariesFactory)
	r.Register("summarize_chat", summarizeChatFactory)
}

func switchToQualifiedAgentFactory(sctx types.SessionContext) (*tool.Capability, error) {
	return &tool.Capability{
		Name: "switch_to_more_qualified_agent",
		Description: "Switches to the given agent. A reason for the switch can optionally be passed " +
			"to this tool. The reason is passed on to the new agent so that it has context on what " +
			"it's supposed to do.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"agent_name": {"type": "string", "description": "Name of the agent to switch to."},
				"reason": {"type": "string", "description": "Why the switch is happening."}
			},
			"required": ["agent_name"]
		}`),
		Call: func(_ context.Context, args map[string]any) (string, error) {
			agentName, _ := args["agent_name"].(string)
			reason, _ := args["reason"].(string)

			if _, ok := sctx.Agent(agentName); !ok {
				return fmt.Sprintf("unknown agent name '%s'", agentName), nil
			}
			if reporter, ok := sctx.(switchabilityReporter); ok && !reporter.AgentSwitchable(agentName) {
				return fmt.Sprintf("agent '%s' cannot be switched into", agentName), nil
			}

			if err := sctx.QueueHandoff(sctx.CurrentAgentName(), agentName, reason); err != nil {
				return "Error: " + err.Error(), nil
			}
			return fmt.Sprintf("switched to %s!", agentName), nil
		},
	}, nil
}

func switchBackFactory(sandboxes *sandbox.Manager) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name:        "switch_back_to_supervisor",
			Description: "Switches back to the supervisor.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			Call: func(ctx context.Context, _ map[string]any) (string, error) {
				// The coding agent's sandbox is scrapped when it hands
				// control back.
				if sandboxes != nil && sctx.CurrentAgentName() == codingAgentName {
					sandboxes.Cleanup(ctx, sctx.SessionID())
				}

				if err := sctx.QueueHandoff(sctx.CurrentAgentName(), supervisorName, "the helper agent finished its task"); err != nil {
					return "Error: " + err.Error(), nil
				}
				return "switched back to supervisor", nil
			},
		}, nil
	}
}

func checkSummariesFactory(sctx types.SessionContext) (*tool.Capability, error) {
	return &tool.Capability{
		Name:        "check_helper_agent_chat_summaries",
		Description: "Used for checking what the helper agents have talked about with the user.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Call: func(ctx context.Context, _ map[string]any) (string, error) {
			summaries, err := sctx.Summaries(ctx)
			if err != nil {
				return "Error: could not load chat summaries", nil
			}
			encoded, err := json.Marshal(summaries)
			if err != nil {
				return "Error: could not encode chat summaries", nil
			}
			return string(encoded), nil
		},
	}, nil
}

func summarizeChatFactory(sctx types.SessionContext) (*tool.Capability, error) {
	return &tool.Capability{
		Name:        "summarize_chat",
		Description: "Stores a summary of the current chat.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"chat_summary": {"type": "string", "description": "The summary text to store."}
			},
			"required": ["chat_summary"]
		}`),
		Call: func(ctx context.Context, args map[string]any) (string, error) {
			summary, _ := args["chat_summary"].(string)
			if err := sctx.RecordSummary(ctx, sctx.CurrentAgentName(), summary); err != nil {
				return "Error: could not store the chat summary", nil
			}
			return "Successfully summarized chat.", nil
		},
	}, nil
}
