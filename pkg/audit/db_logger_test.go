package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldwork/pkg/contextkeys"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

func TestRecordAndList(t *testing.T) {
	db := workflow.OpenTestDB(t)
	logger := NewDBLogger(db)
	ctx := context.Background()

	logger.Record(ctx, Entry{UserID: 1, Action: ActionCreate, ResourceType: "milestone", ResourceID: "10", Status: StatusAllowed})
	logger.Record(ctx, Entry{UserID: 2, Action: ActionDelete, ResourceType: "milestone", ResourceID: "10", Status: StatusDenied, Detail: "permission denied"})
	logger.Record(ctx, Entry{UserID: 2, Action: ActionUpdate, ResourceType: "indicator", ResourceID: "4", Status: StatusNotFound})

	t.Run("all entries newest first", func(t *testing.T) {
		entries, err := logger.List(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, ActionUpdate, entries[0].Action)
	})

	t.Run("filter by status", func(t *testing.T) {
		entries, err := logger.List(ctx, Query{Status: StatusDenied})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(2), entries[0].UserID)
		assert.Equal(t, "permission denied", entries[0].Detail)
	})

	t.Run("filter by user and resource", func(t *testing.T) {
		entries, err := logger.List(ctx, Query{UserID: 2, ResourceType: "milestone"})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ActionDelete, entries[0].Action)
	})

	t.Run("limit", func(t *testing.T) {
		entries, err := logger.List(ctx, Query{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestRecordPicksUpRequestID(t *testing.T) {
	db := workflow.OpenTestDB(t)
	logger := NewDBLogger(db)

	ctx := contextkeys.WithRequestID(context.Background(), "req-7")
	logger.Record(ctx, Entry{UserID: 1, Action: ActionCreate, ResourceType: "program", Status: StatusAllowed})

	entries, err := logger.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0].RequestID)
}
