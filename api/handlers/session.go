package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/api"
	"github.com/helmsman-ai/helmsman/session"
	"github.com/helmsman-ai/helmsman/types"
)

// SessionHandler serves session lifecycle and chat turn endpoints.
type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions: sessions,
		logger:   logger.With(zap.String("component", "session_handler")),
	}
}

// resolve loads the caller's orchestrator for the session in the path,
// enforcing ownership. A session owned by someone else reads as absent.
func (h *SessionHandler) resolve(w http.ResponseWriter, r *http.Request) (*session.Orchestrator, types.Identity, bool) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return nil, types.Identity{}, false
	}
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return nil, types.Identity{}, false
	}

	if recorded, known := h.sessions.Owner(r.Context(), id); known && recorded != owner.UserID {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "session not found", h.logger)
		return nil, types.Identity{}, false
	}

	o, err := h.sessions.GetOrCreate(r.Context(), id, owner)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return nil, types.Identity{}, false
	}
	return o, owner, true
}

// HandleCreate opens a session, minting an id unless the client supplies
// one.
//
// POST /api/v1/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	var req api.CreateSessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := uuid.New()
	if req.SessionID != nil {
		id = *req.SessionID
	}

	if recorded, known := h.sessions.Owner(r.Context(), id); known && recorded != owner.UserID {
		WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidRequest, "session id unavailable", h.logger)
		return
	}

	o, err := h.sessions.GetOrCreate(r.Context(), id, owner)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	if req.Title != "" {
		if err := h.sessions.SetTitle(r.Context(), id, req.Title); err != nil {
			h.logger.Warn("session title update failed", zap.Error(err))
		}
	}

	WriteSuccess(w, api.SessionStateResponse{
		SessionID: o.SessionID(),
		MainAgent: o.MainAgentName(),
		Agents:    o.AgentNames(),
	})
}

// HandleList returns the caller's sessions, newest first.
//
// GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	records, err := h.sessions.ListForUser(r.Context(), owner.UserID)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	views := make([]api.SessionView, 0, len(records))
	for _, rec := range records {
		views = append(views, api.SessionView{
			ID:        rec.ID,
			Title:     rec.Title,
			CreatedAt: rec.CreatedAt.Unix(),
			UpdatedAt: rec.UpdatedAt.Unix(),
		})
	}
	WriteSuccess(w, views)
}

// HandleDelete removes a session and all its persisted state.
//
// DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	recorded, known := h.sessions.Owner(r.Context(), id)
	if !known || recorded != owner.UserID {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "session not found", h.logger)
		return
	}

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"deleted": id.String()})
}

// HandleSendMessage runs one user turn through the session's main agent.
// Hand-offs queued during the turn commit before the response is written,
// so MainAgent reflects the post-turn state.
//
// POST /api/v1/sessions/{id}/messages
func (h *SessionHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	o, owner, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "text is required", h.logger)
		return
	}

	reply, err := o.InvokeMainWithText(r.Context(), owner.Username, req.Text)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.SendMessageResponse{
		SessionID: o.SessionID(),
		Reply:     reply,
		MainAgent: o.MainAgentName(),
	})
}

// HandleState reports live orchestration state.
//
// GET /api/v1/sessions/{id}/state
func (h *SessionHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	o, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, api.SessionStateResponse{
		SessionID: o.SessionID(),
		MainAgent: o.MainAgentName(),
		Agents:    o.AgentNames(),
	})
}

// HandleTraces returns the session transcript. Query parameters:
//
//	since   float64 unix-seconds watermark; only strictly newer entries
//	        are returned
//	exclude comma-separated trace kinds to omit
//
// GET /api/v1/sessions/{id}/traces
func (h *SessionHandler) HandleTraces(w http.ResponseWriter, r *http.Request) {
	o, _, ok := h.resolve(w, r)
	if !ok {
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

	var exclude []types.Kind
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			exclude = append(exclude, types.Kind(strings.TrimSpace(part)))
		}
	}

	entries, err := o.Trace().Since(r.Context(), since, exclude)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, entries)
}
