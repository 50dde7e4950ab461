package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/session"
	"github.com/helmsman-ai/helmsman/types"
)

// StreamHandler pushes trace entries to clients over WebSocket.
type StreamHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(sessions *session.Manager, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		sessions: sessions,
		logger:   logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleStream upgrades to WebSocket and streams the session's trace. A
// since query parameter replays persisted entries newer than the watermark
// before live entries flow; the subscription is registered first so no
// entry is lost between replay and live delivery.
//
// GET /api/v1/sessions/{id}/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if recorded, known := h.sessions.Owner(r.Context(), id); known && recorded != owner.UserID {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "session not found", h.logger)
		return
	}

	var since float64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid since parameter", h.logger)
			return
		}
		since = parsed
	}

	o, err := h.sessions.GetOrCreate(r.Context(), id, owner)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx := r.Context()
	tracer := o.Trace()

	entries, cancel := tracer.Subscribe()
	defer cancel()

	backlog, err := tracer.Since(ctx, since, nil)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "history unavailable")
		return
	}

	watermark := since
	for _, entry := range backlog {
		if err := writeTrace(ctx, conn, entry); err != nil {
			return
		}
		if ts := entry.TraceMeta().Timestamp; ts > watermark {
			watermark = ts
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closing")
			return
		case entry, open := <-entries:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			// Entries already sent during replay are skipped.
			if entry.TraceMeta().Timestamp <= watermark {
				continue
			}
			if err := writeTrace(ctx, conn, entry); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeTrace(ctx context.Context, conn *websocket.Conn, entry types.Trace) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
