package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// Responder is the model adapter an agent delegates its token loop to.
// Implementations run the tool-calling loop against a model given the
// master prompt, the user turn, and the agent's resolved capabilities,
// and return the final assistant text.
type Responder interface {
	Respond(ctx context.Context, systemPrompt, input string, capabilities []*tool.Capability) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, systemPrompt, input string, capabilities []*tool.Capability) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, systemPrompt, input string, capabilities []*tool.Capability) (string, error) {
	return f(ctx, systemPrompt, input, capabilities)
}

// HTTPResponderConfig configures the chat-completions responder.
type HTTPResponderConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxToolHops int
}

// HTTPResponder drives an OpenAI-compatible chat-completions endpoint,
// executing returned tool calls locally until the model produces text.
type HTTPResponder struct {
	config HTTPResponderConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPResponder creates a responder against cfg.BaseURL.
func NewHTTPResponder(cfg HTTPResponderConfig, logger *zap.Logger) *HTTPResponder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxToolHops <= 0 {
		cfg.MaxToolHops = 16
	}
	return &HTTPResponder{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "http_responder")),
	}
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatToolDef `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Respond runs the tool loop until the model answers with plain text or
// the hop budget runs out.
func (r *HTTPResponder) Respond(ctx context.Context, systemPrompt, input string, capabilities []*tool.Capability) (string, error) {
	byName := make(map[string]*tool.Capability, len(capabilities))
	defs := make([]chatToolDef, 0, len(capabilities))
	for _, c := range capabilities {
		byName[c.Name] = c
		def := chatToolDef{Type: "function"}
		def.Function.Name = c.Name
		def.Function.Description = c.Description
		def.Function.Parameters = c.Parameters
		defs = append(defs, def)
	}

	messages := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: input},
	}

	for hop := 0; hop < r.config.MaxToolHops; hop++ {
		reply, err := r.complete(ctx, chatRequest{
			Model:       r.config.Model,
			Messages:    messages,
			Tools:       defs,
			Temperature: r.config.Temperature,
		})
		if err != nil {
			return "", err
		}

		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}

		messages = append(messages, *reply)
		for _, call := range reply.ToolCalls {
			messages = append(messages, r.executeToolCall(ctx, byName, call))
		}
	}

	return "", types.NewError(types.ErrUpstreamError, "model did not converge within tool hop budget")
}

func (r *HTTPResponder) executeToolCall(ctx context.Context, byName map[string]*tool.Capability, call chatToolCall) chatMessage {
	result := chatMessage{Role: "tool", ToolCallID: call.ID}

	capability, ok := byName[call.Function.Name]
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", call.Function.Name)
		return result
	}

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			result.Content = fmt.Sprintf("Error: malformed tool arguments: %v", err)
			return result
		}
	}

	out, err := capability.Call(ctx, args)
	if err != nil {
		// Recoverable failures are fed back to the model as text.
		result.Content = "Error: " + err.Error()
		return result
	}
	result.Content = out
	return result
}

func (r *HTTPResponder) complete(ctx context.Context, req chatRequest) (*chatMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrUpstreamTimeout, "model request cancelled").WithCause(err)
		}
		return nil, types.NewError(types.ErrUpstreamError, "model request failed").WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read model response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("model endpoint returned non-200", zap.Int("status", resp.StatusCode))
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("model endpoint status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode model response").WithCause(err)
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "model response had no choices")
	}
	return &parsed.Choices[0].Message, nil
}
