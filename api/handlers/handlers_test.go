package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/session"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/tool/builtin"
	"github.com/helmsman-ai/helmsman/trace"
	"github.com/helmsman-ai/helmsman/types"
)

type testEnv struct {
	mux       *http.ServeMux
	sessions  *session.Manager
	templates *agent.TemplateStore
	db        *gorm.DB
}

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, string) (string, error) { return "aW1n", nil }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, agent.Migrate(db))
	require.NoError(t, session.MigrateSessions(db))
	require.NoError(t, trace.Migrate(db))
	require.NoError(t, builtin.MigrateEvents(db))
	require.NoError(t, agent.Seed(db, nil))

	registry := tool.NewRegistry(nil)
	builtin.RegisterControl(registry, nil)
	builtin.RegisterGeneric(registry)
	builtin.RegisterCoding(registry, nil)
	builtin.RegisterScheduling(registry, db)
	builtin.RegisterMath(registry, builtin.WolframConfig{AppID: "test-app-id"})
	builtin.RegisterWebSearch(registry, builtin.TavilyConfig{APIKey: "test-key"})
	builtin.RegisterImage(registry, builtin.ImageConfig{Generator: nopGenerator{}})

	responder := agent.ResponderFunc(func(_ context.Context, _, input string, _ []*tool.Capability) (string, error) {
		return "echo: " + input, nil
	})

	templates := agent.NewTemplateStore(db)
	sessions := session.NewManager(session.ManagerOptions{
		DB:         db,
		Templates:  templates,
		Registry:   registry,
		Responder:  responder,
		TraceStore: trace.NewGormStore(db),
		Summaries:  agent.NewGormSummaryStore(db),
	})
	t.Cleanup(sessions.CloseAll)

	sh := NewSessionHandler(sessions, nil)
	th := NewTemplateHandler(templates, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", sh.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", sh.HandleList)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.HandleDelete)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", sh.HandleSendMessage)
	mux.HandleFunc("GET /api/v1/sessions/{id}/state", sh.HandleState)
	mux.HandleFunc("GET /api/v1/sessions/{id}/traces", sh.HandleTraces)
	mux.HandleFunc("GET /api/v1/templates", th.HandleList)
	mux.HandleFunc("POST /api/v1/templates", th.HandleCreate)
	mux.HandleFunc("PUT /api/v1/templates/{id}", th.HandleModify)
	mux.HandleFunc("DELETE /api/v1/templates/{id}", th.HandleDelete)
	mux.HandleFunc("GET /api/v1/tools", th.HandleListTools)

	return &testEnv{mux: mux, sessions: sessions, templates: templates, db: db}
}

// envelope mirrors Response with raw data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, target string, body any, owner *types.Identity) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if owner != nil {
		req = req.WithContext(types.WithIdentity(req.Context(), *owner))
	}

	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func newOwner(name string) types.Identity {
	return types.Identity{UserID: uuid.New(), Username: name, FullName: "Ada Lovelace", Timezone: "UTC"}
}
