package session

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/agent"
	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/tool/builtin"
	"github.com/helmsman-ai/helmsman/trace"
	"github.com/helmsman-ai/helmsman/types"
)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, agent.Migrate(db))
	require.NoError(t, MigrateSessions(db))
	require.NoError(t, trace.Migrate(db))
	require.NoError(t, agent.Seed(db, nil))

	registry := tool.NewRegistry(nil)
	builtin.RegisterControl(registry, nil)
	builtin.RegisterGeneric(registry)
	builtin.RegisterCoding(registry, nil)
	builtin.RegisterScheduling(registry, db)
	builtin.RegisterMath(registry, builtin.WolframConfig{AppID: "test-app-id"})
	builtin.RegisterWebSearch(registry, builtin.TavilyConfig{APIKey: "test-key"})
	builtin.RegisterImage(registry, builtin.ImageConfig{Generator: nopGenerator{}})

	responder := agent.ResponderFunc(func(context.Context, string, string, []*tool.Capability) (string, error) {
		return "ok", nil
	})

	mgr := NewManager(ManagerOptions{
		DB:         db,
		Templates:  agent.NewTemplateStore(db),
		Registry:   registry,
		Responder:  responder,
		TraceStore: trace.NewGormStore(db),
		Summaries:  agent.NewGormSummaryStore(db),
	})
	return mgr, db
}

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, string) (string, error) { return "aW1n", nil }

func testOwner() types.Identity {
	return types.Identity{UserID: uuid.New(), Username: "ada", FullName: "Ada Lovelace", Timezone: "UTC"}
}

func TestManagerGetOrCreatePersistsRecord(t *testing.T) {
	mgr, db := newTestManager(t)
	owner := testOwner()
	sessionID := uuid.New()

	o, err := mgr.GetOrCreate(context.Background(), sessionID, owner)
	require.NoError(t, err)
	assert.Equal(t, sessionID, o.SessionID())
	assert.Equal(t, "supervisor_agent", o.MainAgentName())

	var rec Record
	require.NoError(t, db.First(&rec, "id = ?", sessionID).Error)
	assert.Equal(t, owner.UserID, rec.UserID)
}

func TestManagerGetOrCreateRaceYieldsOneInstance(t *testing.T) {
	mgr, _ := newTestManager(t)
	owner := testOwner()
	sessionID := uuid.New()

	const callers = 16
	results := make([]*Orchestrator, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := mgr.GetOrCreate(context.Background(), sessionID, owner)
			assert.NoError(t, err)
			results[i] = o
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestManagerDistinctSessionsAreIndependent(t *testing.T) {
	mgr, _ := newTestManager(t)
	owner := testOwner()

	a, err := mgr.GetOrCreate(context.Background(), uuid.New(), owner)
	require.NoError(t, err)
	b, err := mgr.GetOrCreate(context.Background(), uuid.New(), owner)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = a.InvokeMainWithText(context.Background(), "ada", "hello a")
	require.NoError(t, err)

	historyB, err := b.Trace().History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, historyB)
}

func TestManagerListForUser(t *testing.T) {
	mgr, _ := newTestManager(t)
	owner := testOwner()

	_, err := mgr.GetOrCreate(context.Background(), uuid.New(), owner)
	require.NoError(t, err)
	_, err = mgr.GetOrCreate(context.Background(), uuid.New(), owner)
	require.NoError(t, err)
	_, err = mgr.GetOrCreate(context.Background(), uuid.New(), testOwner())
	require.NoError(t, err)

	records, err := mgr.ListForUser(context.Background(), owner.UserID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestManagerDeleteTearsDownEverything(t *testing.T) {
	mgr, db := newTestManager(t)
	owner := testOwner()
	sessionID := uuid.New()

	o, err := mgr.GetOrCreate(context.Background(), sessionID, owner)
	require.NoError(t, err)

	_, err = o.InvokeMainWithText(context.Background(), "ada", "remember this")
	require.NoError(t, err)
	require.NoError(t, o.RecordSummary(context.Background(), "supervisor_agent", "chatted"))

	require.NoError(t, mgr.Delete(context.Background(), sessionID))

	_, live := mgr.Get(sessionID)
	assert.False(t, live)

	_, err = o.InvokeMainWithText(context.Background(), "ada", "hello?")
	require.Error(t, err)
	assert.Equal(t, types.ErrSessionClosed, types.CodeOf(err))

	var recCount int64
	require.NoError(t, db.Model(&Record{}).Where("id = ?", sessionID).Count(&recCount).Error)
	assert.Zero(t, recCount)

	traces, err := trace.NewGormStore(db).List(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, traces)

	summaries, err := agent.NewGormSummaryStore(db).All(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
