package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SummaryStore holds the per-agent rolling chat summaries of a session.
// Only the summarization capability writes; every agent turn reads.
type SummaryStore interface {
	// All returns agent name to summary text for the session. Agents with
	// no recorded summary are absent from the map.
	All(ctx context.Context, sessionID uuid.UUID) (map[string]string, error)
	// Put replaces the named agent's summary.
	Put(ctx context.Context, sessionID uuid.UUID, agentName, text string) error
	// DeleteSession drops every summary of the session.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}

// SummaryStoreType selects the backing implementation.
type SummaryStoreType string

const (
	SummaryStoreMemory SummaryStoreType = "memory"
	SummaryStoreGorm   SummaryStoreType = "gorm"
	SummaryStoreRedis  SummaryStoreType = "redis"
)

// SummaryStoreConfig configures the factory.
type SummaryStoreConfig struct {
	Type SummaryStoreType `yaml:"type"`
	// TokenBudget caps summary length; 0 disables the cap.
	TokenBudget int `yaml:"token_budget"`
	// TTL applies to the redis backend only.
	TTL time.Duration `yaml:"ttl"`
}

// NewSummaryStore creates a SummaryStore based on the configuration. The
// db and rdb arguments may be nil when the corresponding type is unused.
func NewSummaryStore(config SummaryStoreConfig, db *gorm.DB, rdb *redis.Client) (SummaryStore, error) {
	switch config.Type {
	case SummaryStoreMemory, "":
		return NewMemorySummaryStore(), nil
	case SummaryStoreGorm:
		if db == nil {
			return nil, errors.New("gorm summary store requires a database")
		}
		return NewGormSummaryStore(db), nil
	case SummaryStoreRedis:
		if rdb == nil {
			return nil, errors.New("redis summary store requires a client")
		}
		return NewRedisSummaryStore(rdb, config.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported summary store type: %s", config.Type)
	}
}

// TruncateToTokens caps text to at most budget tokens using the cl100k_base
// encoding. A zero or negative budget returns text unchanged.
func TruncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Encoder data unavailable: fall back to a rough byte cap.
		if len(text) > budget*4 {
			return text[:budget*4]
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}

// SummaryRecord is the gorm row backing the relational summary store.
type SummaryRecord struct {
	SessionID uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentName string    `gorm:"size:128;primaryKey"`
	Text      string    `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName implements gorm's table naming.
func (SummaryRecord) TableName() string { return "chat_summaries" }

// GormSummaryStore persists summaries relationally.
type GormSummaryStore struct {
	db *gorm.DB
}

// NewGormSummaryStore creates a store over db.
func NewGormSummaryStore(db *gorm.DB) *GormSummaryStore {
	return &GormSummaryStore{db: db}
}

func (s *GormSummaryStore) All(ctx context.Context, sessionID uuid.UUID) (map[string]string, error) {
	var records []SummaryRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[rec.AgentName] = rec.Text
	}
	return out, nil
}

func (s *GormSummaryStore) Put(ctx context.Context, sessionID uuid.UUID, agentName, text string) error {
	rec := SummaryRecord{SessionID: sessionID, AgentName: agentName, Text: text, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "agent_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

func (s *GormSummaryStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&SummaryRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete summaries: %w", err)
	}
	return nil
}

// RedisSummaryStore keeps summaries in a redis hash per session.
type RedisSummaryStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSummaryStore creates a store over client. A zero ttl means the
// hashes never expire.
func NewRedisSummaryStore(client *redis.Client, ttl time.Duration) *RedisSummaryStore {
	return &RedisSummaryStore{client: client, ttl: ttl}
}

func summaryKey(sessionID uuid.UUID) string {
	return "helmsman:summaries:" + sessionID.String()
}

func (s *RedisSummaryStore) All(ctx context.Context, sessionID uuid.UUID) (map[string]string, error) {
	out, err := s.client.HGetAll(ctx, summaryKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	return out, nil
}

func (s *RedisSummaryStore) Put(ctx context.Context, sessionID uuid.UUID, agentName, text string) error {
	key := summaryKey(sessionID)
	if err := s.client.HSet(ctx, key, agentName, text).Err(); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("refresh summary ttl: %w", err)
		}
	}
	return nil
}

func (s *RedisSummaryStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.Del(ctx, summaryKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete summaries: %w", err)
	}
	return nil
}

// MemorySummaryStore keeps summaries in process memory, for tests and
// single-node deployments.
type MemorySummaryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[string]string
}

// NewMemorySummaryStore creates an empty in-memory store.
func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{sessions: make(map[uuid.UUID]map[string]string)}
}

func (s *MemorySummaryStore) All(_ context.Context, sessionID uuid.UUID) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.sessions[sessionID]))
	for name, text := range s.sessions[sessionID] {
		out[name] = text
	}
	return out, nil
}

func (s *MemorySummaryStore) Put(_ context.Context, sessionID uuid.UUID, agentName, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[string]string)
	}
	s.sessions[sessionID][agentName] = text
	return nil
}

func (s *MemorySummaryStore) DeleteSession(_ context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
