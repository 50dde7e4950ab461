package trace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/helmsman-ai/helmsman/types"
)

// ErrNotFound is returned when a session has no trace records.
var ErrNotFound = errors.New("not found")

// Store persists trace entries for sessions. Implementations must return
// entries ordered by timestamp ascending, with insertion order as the
// tie-break.
type Store interface {
	// Insert persists one stamped entry.
	Insert(ctx context.Context, sessionID uuid.UUID, t types.Trace) error

	// List returns the full ordered history for a session.
	List(ctx context.Context, sessionID uuid.UUID) ([]types.Trace, error)

	// ListSince returns entries with timestamp strictly greater than since,
	// excluding the given kinds, in history order.
	ListSince(ctx context.Context, sessionID uuid.UUID, since float64, exclude []types.Kind) ([]types.Trace, error)

	// LatestTimestamp returns the largest timestamp recorded for a session,
	// or 0 when the session has no entries.
	LatestTimestamp(ctx context.Context, sessionID uuid.UUID) (float64, error)

	// DeleteSession removes every entry for a session. Used only by
	// whole-session deletion.
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
}
