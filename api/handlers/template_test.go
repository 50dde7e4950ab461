package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-ai/helmsman/api"
)

func TestTemplateListShowsSeededTeam(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwner("ada")

	rr, e := env.do(t, http.MethodGet, "/api/v1/templates", nil, &owner)
	require.Equal(t, http.StatusOK, rr.Code)

	var views []api.TemplateView
	require.NoError(t, json.Unmarshal(e.Data, &views))
	require.Len(t, views, 6)

	names := make(map[string]api.TemplateView, len(views))
	for _, v := range views {
		names[v.Name] = v
	}
	require.Contains(t, names, "supervisor_agent")
	require.Contains(t, names, "math_agent")
	assert.False(t, names["supervisor_agent"].Custom)
	assert.True(t, names["math_agent"].SwitchableInto)
	assert.False(t, names["research_agent"].SwitchableInto)
	assert.Contains(t, names["math_agent"].Tools, "run_wolfram_alpha_tool")
}

func TestToolCatalogue(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwner("ada")

	rr, e := env.do(t, http.MethodGet, "/api/v1/tools", nil, &owner)
	require.Equal(t, http.StatusOK, rr.Code)

	var tools []api.ToolView
	require.NoError(t, json.Unmarshal(e.Data, &tools))
	require.Len(t, tools, 16)

	ids := make([]string, 0, len(tools))
	for _, tool := range tools {
		ids = append(ids, tool.ID)
	}
	assert.Contains(t, ids, "switch_to_more_qualified_agent")
	assert.Contains(t, ids, "generate_image_and_show_it_to_user")
}

func TestTemplateCreateModifyDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwner("ada")

	rr, e := env.do(t, http.MethodPost, "/api/v1/templates", api.UpsertTemplateRequest{
		Name:           "poetry_agent",
		Persona:        "You are a poet.",
		Purpose:        "Compose poems on request.",
		SwitchableInto: true,
		Tools:          []string{"get_current_date", "switch_back_to_supervisor"},
	}, &owner)
	require.Equal(t, http.StatusOK, rr.Code)

	var created api.TemplateView
	require.NoError(t, json.Unmarshal(e.Data, &created))
	assert.True(t, created.Custom)
	assert.ElementsMatch(t, []string{"get_current_date", "switch_back_to_supervisor"}, created.Tools)

	rr, e = env.do(t, http.MethodPut, "/api/v1/templates/"+created.ID.String(), api.UpsertTemplateRequest{
		Name:           "poetry_agent",
		Persona:        "You are a very serious poet.",
		Purpose:        "Compose poems on request.",
		SwitchableInto: false,
		Tools:          []string{"get_current_date"},
	}, &owner)
	require.Equal(t, http.StatusOK, rr.Code)

	var modified api.TemplateView
	require.NoError(t, json.Unmarshal(e.Data, &modified))
	assert.False(t, modified.SwitchableInto)
	assert.Equal(t, []string{"get_current_date"}, modified.Tools)

	rr, _ = env.do(t, http.MethodDelete, "/api/v1/templates/"+created.ID.String(), nil, &owner)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, e = env.do(t, http.MethodGet, "/api/v1/templates", nil, &owner)
	require.Equal(t, http.StatusOK, rr.Code)
	var views []api.TemplateView
	require.NoError(t, json.Unmarshal(e.Data, &views))
	assert.Len(t, views, 6)
}

func TestTemplateCreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	owner := newOwner("ada")

	rr, _ := env.do(t, http.MethodPost, "/api/v1/templates", api.UpsertTemplateRequest{
		Name:  "broken_agent",
		Tools: []string{"no_such_tool"},
	}, &owner)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/v1/templates", api.UpsertTemplateRequest{
		Name: "supervisor_agent",
	}, &owner)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/v1/templates", api.UpsertTemplateRequest{}, &owner)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTemplateModifyForeignTemplateFails(t *testing.T) {
	env := newTestEnv(t)
	ada := newOwner("ada")
	eve := newOwner("eve")

	rr, e := env.do(t, http.MethodPost, "/api/v1/templates", api.UpsertTemplateRequest{
		Name:    "poetry_agent",
		Persona: "You are a poet.",
		Purpose: "Compose poems.",
	}, &ada)
	require.Equal(t, http.StatusOK, rr.Code)
	var created api.TemplateView
	require.NoError(t, json.Unmarshal(e.Data, &created))

	rr, _ = env.do(t, http.MethodPut, "/api/v1/templates/"+created.ID.String(), api.UpsertTemplateRequest{
		Name: "poetry_agent",
	}, &eve)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = env.do(t, http.MethodDelete, "/api/v1/templates/"+created.ID.String(), nil, &eve)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
