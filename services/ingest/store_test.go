package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"schoolsync-backend/lib/scrapers/compass/parse"
	"schoolsync-backend/lib/testutil"
	"schoolsync-backend/services/ingest/db"

	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) Service {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/ingest",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	return NewService(setup.DB)
}

func mustEvent(t *testing.T, raw string) parse.Event {
	event, err := parse.Object[parse.Event](json.RawMessage(raw))
	require.NoError(t, err)
	return event
}

const eventWithInstance = `{
	"activityId": 101, "title": "Maths", "description": "",
	"start": "2026-03-02T23:00:00Z", "finish": "2026-03-02T23:50:00Z",
	"guid": "2b6e9d5e-9f7a-4a1f-8a36-0f1d4c2e2d11",
	"instanceId": "inst-8812", "runningStatus": 0, "allDay": false
}`

const eventWithoutInstance = `{
	"activityId": 101, "title": "Maths", "description": "",
	"start": "2026-03-02T23:00:00Z", "finish": "2026-03-02T23:50:00Z",
	"guid": "2b6e9d5e-9f7a-4a1f-8a36-0f1d4c2e2d11",
	"runningStatus": 0, "allDay": false
}`

func TestEventExternalID(t *testing.T) {
	withInstance := mustEvent(t, eventWithInstance)
	require.Equal(t, "inst-8812", EventExternalID(withInstance))

	withoutInstance := mustEvent(t, eventWithoutInstance)
	first := EventExternalID(withoutInstance)
	second := EventExternalID(mustEvent(t, eventWithoutInstance))

	// derived fingerprints are stable across refetches and fixed-length
	require.Equal(t, first, second)
	require.Len(t, first, 32)

	// changing any identifying field changes the fingerprint
	shifted := mustEvent(t, eventWithoutInstance)
	shifted.Start.Time = shifted.Start.Add(time.Hour)
	require.NotEqual(t, first, EventExternalID(shifted))

	otherGuid := mustEvent(t, eventWithoutInstance)
	otherGuid.Guid = "d0a7c4f2-1111-4a1f-8a36-0f1d4c2e2d11"
	require.NotEqual(t, first, EventExternalID(otherGuid))

	otherActivity := mustEvent(t, eventWithoutInstance)
	otherActivity.ActivityId = 202
	require.NotEqual(t, first, EventExternalID(otherActivity))
}

func TestStorePayloadsUpserts(t *testing.T) {
	store := setupStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	first, err := store.BeginBatch(ctx, "compass", MethodCalendarEvents, map[string]any{"limit": 50})
	require.NoError(t, err)

	err = store.StorePayloads(ctx, first, []Payload{
		{ExternalID: "inst-8812", Raw: json.RawMessage(eventWithInstance)},
	})
	require.NoError(t, err)

	// the same occurrence observed again on a later sync must update the
	// existing row, never duplicate it
	second, err := store.BeginBatch(ctx, "compass", MethodCalendarEvents, map[string]any{"limit": 50})
	require.NoError(t, err)
	updated := `{"activityId": 101, "title": "Maths (moved)", "description": "",
		"start": "2026-03-02T23:00:00Z", "finish": "2026-03-02T23:50:00Z",
		"guid": "2b6e9d5e-9f7a-4a1f-8a36-0f1d4c2e2d11",
		"instanceId": "inst-8812", "runningStatus": 0, "allDay": false}`
	err = store.StorePayloads(ctx, second, []Payload{
		{ExternalID: "inst-8812", Raw: json.RawMessage(updated)},
	})
	require.NoError(t, err)

	payloads, err := store.ListPayloads(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	require.Contains(t, payloads[0].PayloadJson, "Maths (moved)")

	// the row moved to the newest batch
	stale, err := store.ListPayloads(ctx, first.ID)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestLatestBatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.LatestBatch(ctx, "compass", MethodCalendarEvents)
	require.True(t, errors.Is(err, sql.ErrNoRows))

	_, err = store.BeginBatch(ctx, "compass", MethodCalendarEvents, nil)
	require.NoError(t, err)
	_, err = store.BeginBatch(ctx, "compass", MethodUserDetails, nil)
	require.NoError(t, err)

	batch, err := store.LatestBatch(ctx, "compass", MethodUserDetails)
	require.NoError(t, err)
	require.Equal(t, MethodUserDetails, batch.MethodName)
}

func TestDeleteBatchCascades(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	batch, err := store.BeginBatch(ctx, "compass", MethodCalendarEvents, nil)
	require.NoError(t, err)
	err = store.StorePayloads(ctx, batch, []Payload{
		{ExternalID: "inst-8812", Raw: json.RawMessage(eventWithInstance)},
	})
	require.NoError(t, err)

	report, err := store.ProcessOnce(ctx, "compass")
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)

	err = store.DeleteBatch(ctx, batch.ID)
	require.NoError(t, err)

	payloads, err := store.ListPayloads(ctx, batch.ID)
	require.NoError(t, err)
	require.Empty(t, payloads)

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Empty(t, events)
}
