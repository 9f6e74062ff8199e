package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/insight-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatabaseURLEnv = "INSIGHT_TEST_DATABASE_URL"

func TestTransitionStore_Integration(t *testing.T) {
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping database integration test", testDatabaseURLEnv)
	}

	ctx := context.Background()
	db, err := Open(ctx, url, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, "up", discardLogger()))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	store := NewTransitionStore(db, discardLogger()).WithTx(tx)
	requestID := uuid.New()
	owner := "integration-owner"
	base := time.Now().UTC().Truncate(time.Millisecond)

	steps := []events.Type{
		events.TypeRequestEnqueued,
		events.TypeRequestStarted,
		events.TypeRequestCompleted,
	}
	for i, typ := range steps {
		ev := events.NewEvent(typ, requestID, base.Add(time.Duration(i)*time.Millisecond))
		ev.OwnerID = owner
		ev.RequestType = "summarize"
		ev.Status = "pending"
		if typ == events.TypeRequestCompleted {
			ev.Status = "completed"
			ev.Result = json.RawMessage(`{"summary":"done"}`)
			ev.ProcessingTimeMs = 7
		}
		require.NoError(t, store.HandleEvent(ctx, ev))
	}

	got, err := store.ListByRequest(ctx, owner, requestID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, events.TypeRequestEnqueued, got[0].EventType)
	assert.Equal(t, events.TypeRequestCompleted, got[2].EventType)
	assert.JSONEq(t, `{"summary":"done"}`, string(got[2].Result))
	assert.Equal(t, int64(7), got[2].ProcessingTimeMs)

	other, err := store.ListByRequest(ctx, "someone-else", requestID)
	require.NoError(t, err)
	assert.Empty(t, other)
}
