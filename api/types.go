package api

import (
	"github.com/google/uuid"
)

// SendMessageRequest carries one user chat turn.
type SendMessageRequest struct {
	// Message text as typed by the user.
	Text string `json:"text"`
}

// SendMessageResponse acknowledges a processed turn. The full transcript,
// including any hand-off turns the message triggered, is available through
// the trace endpoints.
type SendMessageResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	// Reply is the text produced by the agent that received the message.
	Reply string `json:"reply"`
	// MainAgent is the agent in control after any hand-offs committed.
	MainAgent string `json:"main_agent"`
}

// SessionView describes one chat session.
type SessionView struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// CreateSessionRequest opens a session with an optional fixed id so clients
// can resume across restarts.
type CreateSessionRequest struct {
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Title     string     `json:"title,omitempty"`
}

// SessionStateResponse reports live orchestration state.
type SessionStateResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	MainAgent string    `json:"main_agent"`
	Agents    []string  `json:"agents"`
}

// TemplateView describes an agent template.
type TemplateView struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Persona        string    `json:"persona"`
	Purpose        string    `json:"purpose"`
	SwitchableInto bool      `json:"switchable_into"`
	Custom         bool      `json:"custom"`
	Tools          []string  `json:"tools"`
}

// ToolView describes one catalogue entry.
type ToolView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpsertTemplateRequest creates or modifies a custom agent template.
type UpsertTemplateRequest struct {
	Name           string   `json:"name"`
	Persona        string   `json:"persona"`
	Purpose        string   `json:"purpose"`
	SwitchableInto bool     `json:"switchable_into"`
	Tools          []string `json:"tools"`
}
