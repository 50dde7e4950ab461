package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/types"
)

// tieBreak is the minimum gap enforced between two entries stamped within
// the clock's resolution. One microsecond keeps the float64 unix-seconds
// representation exact for decades.
const tieBreak = 1e-6

// Tracer is the per-session append surface over a Store. It assigns ids and
// monotonic timestamps, buffers pending entries for callers without store
// access, and fans appended entries out to subscribers.
//
// A Tracer is safe for concurrent use, but the orchestrator serializes turns
// per session, so contention is limited to subscribers.
type Tracer struct {
	sessionID uuid.UUID
	store     Store
	logger    *zap.Logger

	mu      sync.Mutex
	lastTS  float64
	pending []types.Trace

	subMu   sync.Mutex
	subs    map[int]chan types.Trace
	nextSub int
}

// NewTracer creates a tracer for one session, resuming the timestamp
// watermark from whatever the store already holds so that entries appended
// after a restart still order after the persisted history.
func NewTracer(ctx context.Context, sessionID uuid.UUID, store Store, logger *zap.Logger) (*Tracer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	latest, err := store.LatestTimestamp(ctx, sessionID)
	if err != nil {
		return nil, types.NewError(types.ErrTraceStore, "read timestamp watermark").WithCause(err)
	}

	return &Tracer{
		sessionID: sessionID,
		store:     store,
		logger:    logger.With(zap.String("component", "tracer"), zap.String("session_id", sessionID.String())),
		lastTS:    latest,
		subs:      make(map[int]chan types.Trace),
	}, nil
}

// SessionID returns the session this tracer belongs to.
func (tr *Tracer) SessionID() uuid.UUID { return tr.sessionID }

// stamp assigns id and timestamp when absent and advances the watermark.
// Callers hold tr.mu.
func (tr *Tracer) stamp(t types.Trace) {
	meta := t.TraceMeta()
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	if meta.Timestamp == 0 {
		meta.Timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	if meta.Timestamp <= tr.lastTS {
		meta.Timestamp = tr.lastTS + tieBreak
	}
	tr.lastTS = meta.Timestamp
}

// Append stamps and persists one entry, then makes it visible to
// subscribers. A store failure is returned to the caller and must fail the
// enclosing turn.
func (tr *Tracer) Append(ctx context.Context, t types.Trace) error {
	tr.mu.Lock()
	tr.stamp(t)
	err := tr.store.Insert(ctx, tr.sessionID, t)
	tr.mu.Unlock()

	if err != nil {
		tr.logger.Error("trace append failed", zap.String("kind", string(t.Kind())), zap.Error(err))
		return types.NewError(types.ErrTraceStore, "append trace entry").WithCause(err)
	}

	tr.notify(t)
	return nil
}

// AppendPending stamps an entry and stages it in memory. Used from nested
// capability calls that do not have transactional access to the primary data
// store; the orchestrator flushes staged entries under its own call.
func (tr *Tracer) AppendPending(t types.Trace) {
	tr.mu.Lock()
	tr.stamp(t)
	tr.pending = append(tr.pending, t)
	tr.mu.Unlock()
}

// FlushPending persists the staged entries in stamping order. On failure the
// unwritten remainder stays staged and the error propagates to fail the turn.
func (tr *Tracer) FlushPending(ctx context.Context) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for len(tr.pending) > 0 {
		t := tr.pending[0]
		if err := tr.store.Insert(ctx, tr.sessionID, t); err != nil {
			tr.logger.Error("pending trace flush failed", zap.Int("staged", len(tr.pending)), zap.Error(err))
			return types.NewError(types.ErrTraceStore, "flush pending trace entries").WithCause(err)
		}
		tr.pending = tr.pending[1:]
		tr.notify(t)
	}
	tr.pending = nil
	return nil
}

// History returns the full ordered replay of the session.
func (tr *Tracer) History(ctx context.Context) ([]types.Trace, error) {
	entries, err := tr.store.List(ctx, tr.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load trace history: %w", err)
	}
	return entries, nil
}

// Since returns entries appended strictly after the given timestamp,
// excluding the listed kinds. Used by clients polling incrementally.
func (tr *Tracer) Since(ctx context.Context, since float64, exclude []types.Kind) ([]types.Trace, error) {
	entries, err := tr.store.ListSince(ctx, tr.sessionID, since, exclude)
	if err != nil {
		return nil, fmt.Errorf("load trace entries since %f: %w", since, err)
	}
	return entries, nil
}

// Subscribe registers a listener for entries appended from now on. The
// returned cancel func must be called to release the subscription. Slow
// subscribers lose entries rather than blocking appends.
func (tr *Tracer) Subscribe() (<-chan types.Trace, func()) {
	tr.subMu.Lock()
	id := tr.nextSub
	tr.nextSub++
	ch := make(chan types.Trace, 32)
	tr.subs[id] = ch
	tr.subMu.Unlock()

	cancel := func() {
		tr.subMu.Lock()
		if sub, ok := tr.subs[id]; ok {
			delete(tr.subs, id)
			close(sub)
		}
		tr.subMu.Unlock()
	}
	return ch, cancel
}

func (tr *Tracer) notify(t types.Trace) {
	tr.subMu.Lock()
	defer tr.subMu.Unlock()
	for _, ch := range tr.subs {
		select {
		case ch <- t:
		default:
			tr.logger.Warn("trace subscriber lagging, entry dropped", zap.String("kind", string(t.Kind())))
		}
	}
}
