package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTrace_KindTagged(t *testing.T) {
	id := uuid.New()
	msg := &AIMessage{
		Meta:        Meta{ID: id, Timestamp: 1700000000.25},
		AgentName:   "supervisor_agent",
		Content:     "hello",
		IsMainAgent: true,
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "ai_message", raw["kind"])
	assert.Equal(t, "supervisor_agent", raw["agent_name"])
	assert.Equal(t, true, raw["is_main_agent"])
	assert.Equal(t, id.String(), raw["id"])
	assert.InDelta(t, 1700000000.25, raw["timestamp"].(float64), 1e-9)
}

func TestUnmarshalTrace_RoundTrip(t *testing.T) {
	entries := []Trace{
		&HumanMessage{Meta: Meta{ID: uuid.New(), Timestamp: 1}, Username: "ada", Content: "hi"},
		&AIMessage{Meta: Meta{ID: uuid.New(), Timestamp: 2}, AgentName: "math_agent", Content: "42"},
		&ToolCall{
			Meta:           Meta{ID: uuid.New(), Timestamp: 3},
			CalledBy:       "supervisor_agent",
			Name:           "get_current_date",
			BoundArguments: map[string]any{"tz": "UTC"},
			ReturnValue:    "2026-09-01",
		},
		&Image{Meta: Meta{ID: uuid.New(), Timestamp: 4}, Base64EncodedImage: "aGk=", Caption: "a cat"},
		&SideEffect{Meta: Meta{ID: uuid.New(), Timestamp: 5}, Payload: "exit 0", Caption: "program run"},
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		require.NoError(t, err)

		decoded, err := UnmarshalTrace(data)
		require.NoError(t, err)
		assert.Equal(t, entry.Kind(), decoded.Kind())
		assert.Equal(t, entry.TraceMeta().ID, decoded.TraceMeta().ID)
		assert.Equal(t, entry, decoded)
	}
}

func TestUnmarshalTrace_UnknownKind(t *testing.T) {
	_, err := UnmarshalTrace([]byte(`{"kind":"telepathy"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestErrorModel(t *testing.T) {
	cfg := NewConfigError(ErrToolNotRegistered, "tool with id `nope` was not registered")
	assert.True(t, IsConfigError(cfg))
	assert.False(t, IsRetryable(cfg))
	assert.Equal(t, ErrToolNotRegistered, CodeOf(cfg))

	capErr := NewError(ErrSandboxUnavailable, "provider down").WithRetryable(true)
	assert.False(t, IsConfigError(capErr))
	assert.True(t, IsRetryable(capErr))

	withCause := NewError(ErrUpstreamError, "call failed").WithCause(errors.New("boom"))
	assert.Contains(t, withCause.Error(), "boom")

	wrapped := fmt.Errorf("build session: %w", cfg)
	assert.True(t, IsConfigError(wrapped))
	assert.Equal(t, ErrToolNotRegistered, CodeOf(wrapped))
}
