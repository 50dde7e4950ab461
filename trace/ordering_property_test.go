package trace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/helmsman-ai/helmsman/types"
)

// Property: for any interleaving of direct and pending appends with arbitrary
// pre-set timestamps, History() comes out strictly ordered by timestamp, and
// every Since(t) result is an in-order subset of History().
func TestProperty_HistoryOrdering(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr, err := NewTracer(context.Background(), uuid.New(), NewMemoryStore(), zap.NewNop())
		require.NoError(rt, err)
		ctx := context.Background()

		n := rapid.IntRange(1, 40).Draw(rt, "n")
		for i := 0; i < n; i++ {
			entry := &types.AIMessage{AgentName: "supervisor_agent", Content: "x"}
			// Adversarial clock: stale, duplicate, or zero timestamps.
			entry.Timestamp = rapid.Float64Range(0, 100).Draw(rt, "ts")

			if rapid.Bool().Draw(rt, "pending") {
				tr.AppendPending(entry)
			} else {
				require.NoError(rt, tr.Append(ctx, entry))
			}
		}
		require.NoError(rt, tr.FlushPending(ctx))

		hist, err := tr.History(ctx)
		require.NoError(rt, err)

		byTimestamp := func(entries []types.Trace) []float64 {
			out := make([]float64, len(entries))
			for i, e := range entries {
				out[i] = e.TraceMeta().Timestamp
			}
			return out
		}

		stamps := byTimestamp(hist)
		for i := 1; i < len(stamps); i++ {
			if stamps[i] <= stamps[i-1] {
				rt.Fatalf("history not strictly ordered at %d: %v <= %v", i, stamps[i], stamps[i-1])
			}
		}

		cutoff := rapid.Float64Range(-1, 200).Draw(rt, "cutoff")
		since, err := tr.Since(ctx, cutoff, nil)
		require.NoError(rt, err)

		// Since(cutoff) must equal the suffix of history past the cutoff.
		var want []float64
		for _, ts := range stamps {
			if ts > cutoff {
				want = append(want, ts)
			}
		}
		got := byTimestamp(since)
		if len(got) != len(want) {
			rt.Fatalf("since returned %d entries, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				rt.Fatalf("since out of order at %d: %v != %v", i, got[i], want[i])
			}
		}
	})
}
