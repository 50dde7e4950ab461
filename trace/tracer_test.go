package trace

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/types"
)

func newTestTracer(t *testing.T) *Tracer {
	t.Helper()
	tr, err := NewTracer(context.Background(), uuid.New(), NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)
	return tr
}

func TestTracer_AppendAssignsMonotonicTimestamps(t *testing.T) {
	tr := newTestTracer(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		msg := &types.AIMessage{AgentName: "supervisor_agent", Content: fmt.Sprintf("m%d", i)}
		require.NoError(t, tr.Append(ctx, msg))
	}

	hist, err := tr.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 50)

	for i := 1; i < len(hist); i++ {
		assert.Greater(t, hist[i].TraceMeta().Timestamp, hist[i-1].TraceMeta().Timestamp,
			"entry %d must order strictly after entry %d", i, i-1)
	}
	for _, entry := range hist {
		assert.NotEqual(t, uuid.Nil, entry.TraceMeta().ID)
	}
}

func TestTracer_TieBreakOnEqualClockReads(t *testing.T) {
	tr := newTestTracer(t)
	ctx := context.Background()

	// Pre-stamped entries sharing one timestamp must still come out ordered.
	for i := 0; i < 3; i++ {
		entry := &types.AIMessage{AgentName: "supervisor_agent", Content: "tick"}
		entry.Timestamp = 1700000000
		require.NoError(t, tr.Append(ctx, entry))
	}

	hist, err := tr.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 1700000000.0, hist[0].TraceMeta().Timestamp)
	assert.Greater(t, hist[1].TraceMeta().Timestamp, hist[0].TraceMeta().Timestamp)
	assert.Greater(t, hist[2].TraceMeta().Timestamp, hist[1].TraceMeta().Timestamp)
}

func TestTracer_SinceExcludesKinds(t *testing.T) {
	tr := newTestTracer(t)
	ctx := context.Background()

	require.NoError(t, tr.Append(ctx, &types.HumanMessage{Username: "ada", Content: "before"}))
	hist, err := tr.History(ctx)
	require.NoError(t, err)
	cutoff := hist[0].TraceMeta().Timestamp

	require.NoError(t, tr.Append(ctx, &types.ToolCall{CalledBy: "math_agent", Name: "run_wolfram_alpha_tool"}))
	require.NoError(t, tr.Append(ctx, &types.AIMessage{AgentName: "math_agent", Content: "first"}))
	require.NoError(t, tr.Append(ctx, &types.AIMessage{AgentName: "math_agent", Content: "second"}))

	got, err := tr.Since(ctx, cutoff, []types.Kind{types.KindTool})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].(*types.AIMessage).Content)
	assert.Equal(t, "second", got[1].(*types.AIMessage).Content)
}

func TestTracer_PendingFlushPreservesStampingOrder(t *testing.T) {
	tr := newTestTracer(t)
	ctx := context.Background()

	tr.AppendPending(&types.ToolCall{CalledBy: "coding_agent", Name: "run_command"})
	require.NoError(t, tr.Append(ctx, &types.AIMessage{AgentName: "coding_agent", Content: "done"}))
	require.NoError(t, tr.FlushPending(ctx))

	hist, err := tr.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	// The tool call was stamped before the message, so it must come back
	// first even though it reached the store last.
	assert.Equal(t, types.KindTool, hist[0].Kind())
	assert.Equal(t, types.KindAIMessage, hist[1].Kind())
	assert.Less(t, hist[0].TraceMeta().Timestamp, hist[1].TraceMeta().Timestamp)
}

type failingStore struct {
	*MemoryStore
	failInsert bool
}

func (s *failingStore) Insert(ctx context.Context, sessionID uuid.UUID, t types.Trace) error {
	if s.failInsert {
		return errors.New("disk full")
	}
	return s.MemoryStore.Insert(ctx, sessionID, t)
}

func TestTracer_AppendFailurePropagates(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failInsert: true}
	tr, err := NewTracer(context.Background(), uuid.New(), store, zap.NewNop())
	require.NoError(t, err)

	err = tr.Append(context.Background(), &types.HumanMessage{Username: "ada", Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.ErrTraceStore, types.CodeOf(err))
}

func TestTracer_FlushFailureKeepsRemainder(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	tr, err := NewTracer(context.Background(), uuid.New(), store, zap.NewNop())
	require.NoError(t, err)

	tr.AppendPending(&types.ToolCall{Name: "a"})
	tr.AppendPending(&types.ToolCall{Name: "b"})

	store.failInsert = true
	require.Error(t, tr.FlushPending(context.Background()))

	store.failInsert = false
	require.NoError(t, tr.FlushPending(context.Background()))

	hist, err := tr.History(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "a", hist[0].(*types.ToolCall).Name)
	assert.Equal(t, "b", hist[1].(*types.ToolCall).Name)
}

func TestTracer_WatermarkSurvivesRestart(t *testing.T) {
	store := NewMemoryStore()
	sessionID := uuid.New()
	ctx := context.Background()

	tr1, err := NewTracer(ctx, sessionID, store, zap.NewNop())
	require.NoError(t, err)
	high := &types.AIMessage{AgentName: "supervisor_agent", Content: "future"}
	high.Timestamp = 9e9 // far ahead of the wall clock
	require.NoError(t, tr1.Append(ctx, high))

	// A rebuilt tracer must keep ordering after the persisted watermark.
	tr2, err := NewTracer(ctx, sessionID, store, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tr2.Append(ctx, &types.AIMessage{AgentName: "supervisor_agent", Content: "later"}))

	hist, err := tr2.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Greater(t, hist[1].TraceMeta().Timestamp, hist[0].TraceMeta().Timestamp)
}

func TestTracer_SubscribeReceivesAppends(t *testing.T) {
	tr := newTestTracer(t)
	ch, cancel := tr.Subscribe()
	defer cancel()

	require.NoError(t, tr.Append(context.Background(), &types.HumanMessage{Username: "ada", Content: "hi"}))

	got := <-ch
	assert.Equal(t, types.KindHumanMessage, got.Kind())
}
