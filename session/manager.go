package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/sandbox"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/trace"
	"github.com/helmsman-ai/helmsman/types"
)

// Record is the persisted session row backing the chat session listing.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Title     string    `gorm:"size:256" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements gorm's table naming.
func (Record) TableName() string { return "sessions" }

// MigrateSessions creates the session table.
func MigrateSessions(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// ManagerOptions carries the shared collaborators every orchestrator is
// built from.
type ManagerOptions struct {
	DB        *gorm.DB
	Templates *agent.TemplateStore
	Registry  *tool.Registry
	Responder agent.Responder

	TraceStore trace.Store
	Summaries  agent.SummaryStore
	Sandboxes  *sandbox.Manager
	Metrics    *metrics.Collector

	MainAgent          string
	SummaryTokenBudget int

	Logger *zap.Logger
}

// Manager maps live session ids to orchestrators. Concurrent GetOrCreate
// calls for one id resolve to exactly one instance: the first writer wins
// and losers discard their construction.
type Manager struct {
	opts   ManagerOptions
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Orchestrator
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:     opts,
		logger:   logger.With(zap.String("component", "session_manager")),
		sessions: make(map[uuid.UUID]*Orchestrator),
	}
}

// Get returns the live orchestrator for the id, if any.
func (m *Manager) Get(sessionID uuid.UUID) (*Orchestrator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.sessions[sessionID]
	return o, ok
}

// GetOrCreate returns the session's orchestrator, constructing it when
// absent. Construction loads the owner's templates and resumes persisted
// trace and summary state, so a restarted process picks conversations back
// up transparently.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID uuid.UUID, owner types.Identity) (*Orchestrator, error) {
	if o, ok := m.Get(sessionID); ok {
		return o, nil
	}

	built, err := m.build(ctx, sessionID, owner)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		built.Close()
		return existing, nil
	}
	m.sessions[sessionID] = built
	m.mu.Unlock()

	if m.opts.DB != nil {
		rec := Record{ID: sessionID, UserID: owner.UserID}
		if err := m.opts.DB.WithContext(ctx).FirstOrCreate(&rec, "id = ?", sessionID).Error; err != nil {
			m.logger.Warn("session record upsert failed", zap.Error(err))
		}
	}

	m.logger.Info("session created",
		zap.String("session_id", sessionID.String()),
		zap.String("user", owner.Username),
	)
	return built, nil
}

func (m *Manager) build(ctx context.Context, sessionID uuid.UUID, owner types.Identity) (*Orchestrator, error) {
	templates, err := m.opts.Templates.ForUser(owner.UserID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return New(ctx, Options{
		SessionID:          sessionID,
		Owner:              owner,
		Templates:          templates,
		Registry:           m.opts.Registry,
		Responder:          m.opts.Responder,
		TraceStore:         m.opts.TraceStore,
		Summaries:          m.opts.Summaries,
		Metrics:            m.opts.Metrics,
		MainAgent:          m.opts.MainAgent,
		SummaryTokenBudget: m.opts.SummaryTokenBudget,
		Logger:             m.opts.Logger,
	})
}

// ListForUser returns the user's persisted sessions, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	if m.opts.DB == nil {
		return nil, nil
	}
	var records []Record
	err := m.opts.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// SetTitle updates the persisted session title.
func (m *Manager) SetTitle(ctx context.Context, sessionID uuid.UUID, title string) error {
	if m.opts.DB == nil {
		return nil
	}
	return m.opts.DB.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", sessionID).
		Update("title", title).Error
}

// Owner reports who a session belongs to. It consults the live map first,
// then the persisted record. ok is false for unknown sessions.
func (m *Manager) Owner(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, bool) {
	if o, live := m.Get(sessionID); live {
		return o.OwnerIdentity().UserID, true
	}
	if m.opts.DB == nil {
		return uuid.Nil, false
	}
	var rec Record
	err := m.opts.DB.WithContext(ctx).First(&rec, "id = ?", sessionID).Error
	if err != nil {
		return uuid.Nil, false
	}
	return rec.UserID, true
}

// Delete tears a session down completely: the live orchestrator closes,
// the trace log, summaries, and session row are removed, and the sandbox
// is cleaned up.
func (m *Manager) Delete(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	o, live := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if live {
		o.Close()
	}

	if m.opts.Sandboxes != nil {
		m.opts.Sandboxes.Cleanup(ctx, sessionID)
	}
	if err := m.opts.Summaries.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session summaries: %w", err)
	}
	if err := m.opts.TraceStore.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session traces: %w", err)
	}
	if m.opts.DB != nil {
		if err := m.opts.DB.WithContext(ctx).Delete(&Record{}, "id = ?", sessionID).Error; err != nil {
			return fmt.Errorf("delete session record: %w", err)
		}
	}

	m.logger.Info("session deleted", zap.String("session_id", sessionID.String()))
	return nil
}

// CloseAll closes every live orchestrator, e.g. on shutdown. Sessions
// close in parallel since each close may flush state over the network.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Orchestrator)
	m.mu.Unlock()

	var g errgroup.Group
	for _, o := range sessions {
		g.Go(func() error {
			o.Close()
			return nil
		})
	}
	_ = g.Wait()
}
