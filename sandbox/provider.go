package sandbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// State is the lifecycle state of a sandbox.
type State string

const (
	StateAbsent   State = "absent"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
)

// Provider errors. ErrUnavailable is recoverable: the backing provider is
// transiently unreachable and the caller should retry later.
var (
	ErrNotFound    = errors.New("sandbox not found")
	ErrUnavailable = errors.New("sandbox provider unavailable, retry later")
)

// Handle references one session's execution environment.
type Handle struct {
	SessionID   uuid.UUID
	ContainerID string
	State       State
}

// Provider is the backing execution-environment service.
type Provider interface {
	// Create provisions a new sandbox for the session.
	Create(ctx context.Context, sessionID uuid.UUID) (*Handle, error)

	// Get returns the session's sandbox with its current state, or
	// ErrNotFound.
	Get(ctx context.Context, sessionID uuid.UUID) (*Handle, error)

	// Start restarts a stopped sandbox.
	Start(ctx context.Context, h *Handle) error

	// Remove destroys the sandbox. Removing an absent sandbox is not an
	// error.
	Remove(ctx context.Context, h *Handle) error

	// Exec runs one shell command to completion and returns its exit code
	// and combined output.
	Exec(ctx context.Context, h *Handle, command string) (int, string, error)

	// PutFile writes a file into the sandbox filesystem.
	PutFile(ctx context.Context, h *Handle, path, content string) error
}
