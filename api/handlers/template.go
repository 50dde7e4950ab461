package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/api"
	"github.com/helmsman-ai/helmsman/types"
)

// TemplateHandler serves the agent template and tool catalogue endpoints.
type TemplateHandler struct {
	templates *agent.TemplateStore
	logger    *zap.Logger
}

// NewTemplateHandler creates a template handler.
func NewTemplateHandler(templates *agent.TemplateStore, logger *zap.Logger) *TemplateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateHandler{
		templates: templates,
		logger:    logger.With(zap.String("component", "template_handler")),
	}
}

func templateView(t agent.Template) api.TemplateView {
	tools := make([]string, 0, len(t.Tools))
	for _, tool := range t.Tools {
		tools = append(tools, tool.ID)
	}
	return api.TemplateView{
		ID:             t.ID,
		Name:           t.Name,
		Persona:        t.Persona,
		Purpose:        t.Purpose,
		SwitchableInto: t.SwitchableInto,
		Custom:         !t.IsGlobal(),
		Tools:          tools,
	}
}

// HandleList returns the templates visible to the caller: the global team
// plus their own custom agents.
//
// GET /api/v1/templates
func (h *TemplateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	templates, err := h.templates.ForUser(owner.UserID)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	views := make([]api.TemplateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, templateView(t))
	}
	WriteSuccess(w, views)
}

// HandleListTools returns the tool catalogue.
//
// GET /api/v1/tools
func (h *TemplateHandler) HandleListTools(w http.ResponseWriter, r *http.Request) {
	if _, ok := RequireIdentity(w, r, h.logger); !ok {
		return
	}

	tools, err := h.templates.ListTools()
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	views := make([]api.ToolView, 0, len(tools))
	for _, t := range tools {
		views = append(views, api.ToolView{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	WriteSuccess(w, views)
}

func (h *TemplateHandler) decodeUpsert(w http.ResponseWriter, r *http.Request) (*api.UpsertTemplateRequest, bool) {
	var req api.UpsertTemplateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return nil, false
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name is required", h.logger)
		return nil, false
	}
	return &req, true
}

// HandleCreate adds a custom agent template for the caller. New sessions
// pick it up; live ones keep their team until recreated.
//
// POST /api/v1/templates
func (h *TemplateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	tmpl, err := h.templates.CreateCustom(owner.UserID, req.Name, req.Persona, req.Purpose, req.SwitchableInto, req.Tools)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, templateView(*tmpl))
}

// HandleModify rewrites one of the caller's custom templates.
//
// PUT /api/v1/templates/{id}
func (h *TemplateHandler) HandleModify(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}
	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	tmpl, err := h.templates.ModifyCustom(owner.UserID, id, req.Name, req.Persona, req.Purpose, req.SwitchableInto, req.Tools)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, templateView(*tmpl))
}

// HandleDelete removes one of the caller's custom templates. Global
// templates cannot be deleted through the API.
//
// DELETE /api/v1/templates/{id}
func (h *TemplateHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := RequireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := PathUUID(w, r, "id", h.logger)
	if !ok {
		return
	}

	if err := h.templates.DeleteCustom(owner.UserID, id); err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"deleted": id.String()})
}
