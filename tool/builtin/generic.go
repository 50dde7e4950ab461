package builtin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// RegisterGeneric registers tools with no external dependencies.
func RegisterGeneric(r *tool.Registry) {
	r.Register("get_current_date", getCurrentDateFactory)
}

func getCurrentDateFactory(types.SessionContext) (*tool.Capability, error) {
	return &tool.Capability{
		Name:        "get_current_date",
		Description: "Returns the current date and time in UTC.",
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		Call: func(context.Context, map[string]any) (string, error) {
			return time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), nil
		},
	}, nil
}
