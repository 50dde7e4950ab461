package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates trace entry variants on the wire. The string values are
// part of the client protocol and must not change.
type Kind string

const (
	KindHumanMessage Kind = "human_message"
	KindAIMessage    Kind = "ai_message"
	KindTool         Kind = "tool"
	KindImage        Kind = "image"
	KindSideEffect   Kind = "side_effect"
)

// Kinds lists every trace kind.
func Kinds() []Kind {
	return []Kind{KindHumanMessage, KindAIMessage, KindTool, KindImage, KindSideEffect}
}

// Meta carries the fields common to every trace entry. Timestamp is unix
// seconds as a float, matching the wire schema consumed by existing clients.
type Meta struct {
	ID        uuid.UUID `json:"id"`
	Timestamp float64   `json:"timestamp"`
}

// Trace is one immutable, timestamped record of something that happened in a
// session: a message, a tool call, or a generated artifact.
type Trace interface {
	Kind() Kind
	// TraceMeta exposes the common fields for stamping by the tracer.
	TraceMeta() *Meta
}

// HumanMessage records one user-authored turn.
type HumanMessage struct {
	Meta
	Username string `json:"username"`
	Content  string `json:"content"`
}

func (*HumanMessage) Kind() Kind { return KindHumanMessage }
func (m *HumanMessage) TraceMeta() *Meta { return &m.Meta }

// AIMessage records one agent response. IsMainAgent marks output produced
// while the authoring agent held main-agent status.
type AIMessage struct {
	Meta
	AgentName   string `json:"agent_name"`
	Content     string `json:"content"`
	IsMainAgent bool   `json:"is_main_agent"`
}

func (*AIMessage) Kind() Kind { return KindAIMessage }
func (m *AIMessage) TraceMeta() *Meta { return &m.Meta }

// ToolCall records one capability invocation, attributed to the agent that
// was in control when the call ran.
type ToolCall struct {
	Meta
	CalledBy       string         `json:"called_by"`
	Name           string         `json:"name"`
	BoundArguments map[string]any `json:"bound_arguments"`
	ReturnValue    string         `json:"return_value"`
}

func (*ToolCall) Kind() Kind { return KindTool }
func (m *ToolCall) TraceMeta() *Meta { return &m.Meta }

// Image records a generated image artifact shown to the user.
type Image struct {
	Meta
	Base64EncodedImage string `json:"base64_encoded_image"`
	Caption            string `json:"caption"`
}

func (*Image) Kind() Kind { return KindImage }
func (m *Image) TraceMeta() *Meta { return &m.Meta }

// SideEffect records a non-message artifact such as program-execution output.
type SideEffect struct {
	Meta
	Payload string `json:"payload"`
	Caption string `json:"caption"`
}

func (*SideEffect) Kind() Kind { return KindSideEffect }
func (m *SideEffect) TraceMeta() *Meta { return &m.Meta }

func (m *HumanMessage) MarshalJSON() ([]byte, error) {
	type alias HumanMessage
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindHumanMessage, (*alias)(m)})
}

func (m *AIMessage) MarshalJSON() ([]byte, error) {
	type alias AIMessage
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindAIMessage, (*alias)(m)})
}

func (m *ToolCall) MarshalJSON() ([]byte, error) {
	type alias ToolCall
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindTool, (*alias)(m)})
}

func (m *Image) MarshalJSON() ([]byte, error) {
	type alias Image
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindImage, (*alias)(m)})
}

func (m *SideEffect) MarshalJSON() ([]byte, error) {
	type alias SideEffect
	return json.Marshal(struct {
		Kind Kind `json:"kind"`
		*alias
	}{KindSideEffect, (*alias)(m)})
}

// UnmarshalTrace decodes one kind-tagged trace object into its concrete type.
func UnmarshalTrace(data []byte) (Trace, error) {
	var envelope struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode trace envelope: %w", err)
	}

	var t Trace
	switch envelope.Kind {
	case KindHumanMessage:
		t = &HumanMessage{}
	case KindAIMessage:
		t = &AIMessage{}
	case KindTool:
		t = &ToolCall{}
	case KindImage:
		t = &Image{}
	case KindSideEffect:
		t = &SideEffect{}
	default:
		return nil, fmt.Errorf("unknown trace kind %q", envelope.Kind)
	}

	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode %s trace: %w", envelope.Kind, err)
	}
	return t, nil
}
