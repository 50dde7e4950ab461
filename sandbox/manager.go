package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager implements the get-or-create/restart/cleanup lifecycle over a
// Provider, caching handles per session.
type Manager struct {
	provider Provider
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// NewManager creates a manager over the given provider.
func NewManager(provider Provider, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		logger:   logger.With(zap.String("component", "sandbox_manager")),
		handles:  make(map[uuid.UUID]*Handle),
	}
}

// GetOrCreate returns the session's sandbox: reused when running, restarted
// when stopped, created when absent. Provider outages surface ErrUnavailable.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID uuid.UUID) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(ctx, sessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		return m.create(ctx, sessionID)
	case err != nil:
		return nil, err
	}

	if h.State == StateStopped {
		m.logger.Info("restarting stopped sandbox", zap.String("session_id", sessionID.String()))
		if err := m.provider.Start(ctx, h); err != nil {
			return nil, fmt.Errorf("restart sandbox: %w", err)
		}
		h.State = StateRunning
	}

	m.handles[sessionID] = h
	return h, nil
}

// Cleanup tears down the session's sandbox. Best effort: a missing sandbox
// is not an error, and provider failures are logged rather than returned.
func (m *Manager) Cleanup(ctx context.Context, sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.lookup(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("sandbox lookup failed during cleanup", zap.String("session_id", sessionID.String()), zap.Error(err))
		}
		delete(m.handles, sessionID)
		return
	}

	if err := m.provider.Remove(ctx, h); err != nil {
		m.logger.Warn("sandbox removal failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	}
	delete(m.handles, sessionID)
}

// Exec runs one command on the sandbox. No queuing: one command at a time
// per sandbox, caller's responsibility to serialize.
func (m *Manager) Exec(ctx context.Context, h *Handle, command string) (int, string, error) {
	return m.provider.Exec(ctx, h, command)
}

// PutFile writes a file into the sandbox.
func (m *Manager) PutFile(ctx context.Context, h *Handle, path, content string) error {
	return m.provider.PutFile(ctx, h, path, content)
}

// lookup prefers the cached handle but re-checks provider state so a
// sandbox stopped behind our back is noticed. Callers hold m.mu.
func (m *Manager) lookup(ctx context.Context, sessionID uuid.UUID) (*Handle, error) {
	h, err := m.provider.Get(ctx, sessionID)
	if err != nil {
		delete(m.handles, sessionID)
		return nil, err
	}
	if cached, ok := m.handles[sessionID]; ok && cached.ContainerID == h.ContainerID {
		cached.State = h.State
		return cached, nil
	}
	return h, nil
}

// create provisions a fresh sandbox. Callers hold m.mu.
func (m *Manager) create(ctx context.Context, sessionID uuid.UUID) (*Handle, error) {
	m.logger.Info("creating sandbox", zap.String("session_id", sessionID.String()))
	h, err := m.provider.Create(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	h.State = StateRunning
	m.handles[sessionID] = h
	return h, nil
}
