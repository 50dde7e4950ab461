package tool

import (
	"context"
	"fmt"

	"github.com/helmsman-ai/helmsman/types"
)

// WrapWithTracing decorates a capability so every call, failed ones
// included, appends a tool trace entry carrying the bound arguments and
// outcome, attributed to the agent in control at call time. The entry is
// staged on the tracer's pending buffer because capabilities run inside an
// agent turn, before the orchestrator's own writes; the orchestrator flushes
// the buffer when the turn completes.
func WrapWithTracing(capability *Capability, sctx types.SessionContext) *Capability {
	wrapped := *capability
	inner := capability.Call

	wrapped.Call = func(ctx context.Context, args map[string]any) (string, error) {
		result, err := inner(ctx, args)

		recorded := result
		if err != nil {
			recorded = fmt.Sprintf("error: %s", err)
		}
		sctx.Tracer().AppendPending(&types.ToolCall{
			CalledBy:       sctx.CurrentAgentName(),
			Name:           capability.Name,
			BoundArguments: args,
			ReturnValue:    recorded,
		})
		return result, err
	}
	return &wrapped
}
