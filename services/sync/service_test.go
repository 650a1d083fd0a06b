package sync

import (
	"context"
	"testing"

	"schoolsync-backend/lib/scrapers/compass"
	"schoolsync-backend/lib/testutil"
	"schoolsync-backend/services/ingest"
	ingestdb "schoolsync-backend/services/ingest/db"
	"schoolsync-backend/services/keychain"
	keychaindb "schoolsync-backend/services/keychain/db"

	"github.com/stretchr/testify/require"
)

func setupPipeline(t *testing.T) (Service, ingest.Service) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/sync",
		DbSchema: ingestdb.Schema + "\n" + keychaindb.Schema,
	})
	t.Cleanup(cleanup)

	keychainSvc := keychain.NewService(setup.DB)
	err := keychainSvc.Save(context.Background(), "compass", "anguyen", "hunter2")
	require.NoError(t, err)

	store := ingest.NewService(setup.DB)
	service := NewService(
		Options{
			BaseUrl:     "https://example.compass.education",
			Mode:        compass.ModeMock,
			MockDataDir: "testdata/portal",
		},
		keychainSvc,
		store,
	)
	return service, store
}

func TestSyncPipeline(t *testing.T) {
	service, store := setupPipeline(t)
	ctx := context.Background()

	err := service.Sync(ctx)
	require.NoError(t, err)

	// two valid calendar items stored, the broken third skipped
	batch, err := store.LatestBatch(ctx, "compass", ingest.MethodCalendarEvents)
	require.NoError(t, err)
	payloads, err := store.ListPayloads(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	userBatch, err := store.LatestBatch(ctx, "compass", ingest.MethodUserDetails)
	require.NoError(t, err)
	userPayloads, err := store.ListPayloads(ctx, userBatch.ID)
	require.NoError(t, err)
	require.Len(t, userPayloads, 1)
	require.Equal(t, "7241", userPayloads[0].ExternalID)

	report, err := service.Process(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.Report{Created: 2}, report)

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "Maths", events[0].Title)
	require.Equal(t, "Room 12B", events[0].Location.String)
	require.Equal(t, "Scheduled", events[0].Status.String)
	require.Equal(t, "Main Hall", events[1].Location.String)
	require.Equal(t, "Cancelled", events[1].Status.String)
}

func TestSyncIsRerunnable(t *testing.T) {
	service, store := setupPipeline(t)
	ctx := context.Background()

	err := service.Sync(ctx)
	require.NoError(t, err)
	_, err = service.Process(ctx)
	require.NoError(t, err)

	// a second full pass over identical upstream data updates in place
	err = service.Sync(ctx)
	require.NoError(t, err)
	report, err := service.Process(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.Report{Updated: 2}, report)

	batch, err := store.LatestBatch(ctx, "compass", ingest.MethodCalendarEvents)
	require.NoError(t, err)
	payloads, err := store.ListPayloads(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	events, err := store.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSyncWithoutCredentials(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/sync",
		DbSchema: ingestdb.Schema + "\n" + keychaindb.Schema,
	})
	t.Cleanup(cleanup)

	service := NewService(
		Options{Mode: compass.ModeMock, MockDataDir: "testdata/portal"},
		keychain.NewService(setup.DB),
		ingest.NewService(setup.DB),
	)

	err := service.Sync(context.Background())
	require.ErrorIs(t, err, keychain.ErrNotFound)
}
