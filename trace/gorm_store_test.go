package trace

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/types"
)

func setupSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return NewGormStore(db)
}

func TestGormStore_InsertAndList(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	entries := []types.Trace{
		&types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 1}, Username: "ada", Content: "hi"},
		&types.AIMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 2}, AgentName: "supervisor_agent", Content: "hello", IsMainAgent: true},
		&types.ToolCall{Meta: types.Meta{ID: uuid.New(), Timestamp: 3}, CalledBy: "supervisor_agent", Name: "get_current_date", ReturnValue: "2026-09-01"},
	}
	for _, e := range entries {
		require.NoError(t, store.Insert(ctx, sessionID, e))
	}
	// Another session's entry must not leak into the listing.
	require.NoError(t, store.Insert(ctx, uuid.New(), &types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 1.5}, Username: "bob", Content: "other"}))

	got, err := store.List(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, types.KindHumanMessage, got[0].Kind())
	assert.Equal(t, "hello", got[1].(*types.AIMessage).Content)
	assert.True(t, got[1].(*types.AIMessage).IsMainAgent)
	assert.Equal(t, "get_current_date", got[2].(*types.ToolCall).Name)
}

func TestGormStore_ListSinceFiltersKindAndTimestamp(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	require.NoError(t, store.Insert(ctx, sessionID, &types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 1}, Username: "ada", Content: "old"}))
	require.NoError(t, store.Insert(ctx, sessionID, &types.ToolCall{Meta: types.Meta{ID: uuid.New(), Timestamp: 2}, Name: "run_command"}))
	require.NoError(t, store.Insert(ctx, sessionID, &types.AIMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 3}, AgentName: "coding_agent", Content: "a"}))
	require.NoError(t, store.Insert(ctx, sessionID, &types.AIMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 4}, AgentName: "coding_agent", Content: "b"}))

	got, err := store.ListSince(ctx, sessionID, 1, []types.Kind{types.KindTool})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].(*types.AIMessage).Content)
	assert.Equal(t, "b", got[1].(*types.AIMessage).Content)
}

func TestGormStore_TiesOrderedByInsertion(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	for _, content := range []string{"first", "second", "third"} {
		msg := &types.AIMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 7}, AgentName: "supervisor_agent", Content: content}
		require.NoError(t, store.Insert(ctx, sessionID, msg))
	}

	got, err := store.List(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].(*types.AIMessage).Content)
	assert.Equal(t, "second", got[1].(*types.AIMessage).Content)
	assert.Equal(t, "third", got[2].(*types.AIMessage).Content)
}

func TestGormStore_LatestTimestampAndDelete(t *testing.T) {
	store := setupSQLiteStore(t)
	ctx := context.Background()
	sessionID := uuid.New()

	ts, err := store.LatestTimestamp(ctx, sessionID)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, store.Insert(ctx, sessionID, &types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 11}, Username: "ada"}))
	require.NoError(t, store.Insert(ctx, sessionID, &types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 12}, Username: "ada"}))

	ts, err = store.LatestTimestamp(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, ts)

	require.NoError(t, store.DeleteSession(ctx, sessionID))
	got, err := store.List(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGormStore_InsertErrorSurfaces(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "trace_records"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	store := NewGormStore(gormDB)
	err = store.Insert(context.Background(), uuid.New(), &types.HumanMessage{Meta: types.Meta{ID: uuid.New(), Timestamp: 1}, Username: "ada"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
