package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/types"
)

// Record is the relational shape of one trace entry: a single table with a
// kind discriminant column and the kind-specific fields carried as the full
// wire-schema JSON payload. Seq is the insertion-order tie-break.
type Record struct {
	Seq       int64   `gorm:"primaryKey;autoIncrement"`
	TraceID   string  `gorm:"size:36;uniqueIndex"`
	SessionID string  `gorm:"size:36;index:idx_trace_session_ts,priority:1"`
	Timestamp float64 `gorm:"index:idx_trace_session_ts,priority:2"`
	Kind      string  `gorm:"size:32"`
	Payload   string  `gorm:"type:text"`
}

// TableName implements gorm's table naming override.
func (Record) TableName() string { return "trace_records" }

// GormStore persists trace entries through a gorm DB handle. It works with
// any configured dialect (sqlite, postgres, mysql).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the trace_records table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate trace records: %w", err)
	}
	return nil
}

// Insert persists one stamped entry.
func (s *GormStore) Insert(ctx context.Context, sessionID uuid.UUID, t types.Trace) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trace payload: %w", err)
	}

	rec := Record{
		TraceID:   t.TraceMeta().ID.String(),
		SessionID: sessionID.String(),
		Timestamp: t.TraceMeta().Timestamp,
		Kind:      string(t.Kind()),
		Payload:   string(payload),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert trace record: %w", err)
	}
	return nil
}

// List returns the full ordered history for a session.
func (s *GormStore) List(ctx context.Context, sessionID uuid.UUID) ([]types.Trace, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("timestamp asc, seq asc").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list trace records: %w", err)
	}
	return decodeRecords(recs)
}

// ListSince returns entries newer than the given timestamp, excluding kinds.
func (s *GormStore) ListSince(ctx context.Context, sessionID uuid.UUID, since float64, exclude []types.Kind) ([]types.Trace, error) {
	q := s.db.WithContext(ctx).
		Where("session_id = ? AND timestamp > ?", sessionID.String(), since)
	if len(exclude) > 0 {
		kinds := make([]string, len(exclude))
		for i, k := range exclude {
			kinds[i] = string(k)
		}
		q = q.Where("kind NOT IN ?", kinds)
	}

	var recs []Record
	if err := q.Order("timestamp asc, seq asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list trace records since: %w", err)
	}
	return decodeRecords(recs)
}

// LatestTimestamp returns the newest timestamp for a session, 0 when empty.
func (s *GormStore) LatestTimestamp(ctx context.Context, sessionID uuid.UUID) (float64, error) {
	var rec Record
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("timestamp desc, seq desc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest trace timestamp: %w", err)
	}
	return rec.Timestamp, nil
}

// DeleteSession removes every entry for a session.
func (s *GormStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("delete session traces: %w", err)
	}
	return nil
}

func decodeRecords(recs []Record) ([]types.Trace, error) {
	out := make([]types.Trace, 0, len(recs))
	for _, rec := range recs {
		t, err := types.UnmarshalTrace([]byte(rec.Payload))
		if err != nil {
			return nil, fmt.Errorf("decode trace record %s: %w", rec.TraceID, err)
		}
		out = append(out, t)
	}
	return out, nil
}
