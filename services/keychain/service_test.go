package keychain

import (
	"context"
	"errors"
	"testing"

	"schoolsync-backend/lib/testutil"
	"schoolsync-backend/services/keychain/db"

	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/keychain",
		DbSchema: db.Schema,
	})
	defer cleanup()
	service := NewService(setup.DB)

	ctx := context.Background()

	{
		_, _, err := service.Load(ctx, "compass")
		require.True(t, errors.Is(err, ErrNotFound))
	}
	{
		err := service.Save(ctx, "compass", "anguyen", "hunter2")
		require.NoError(t, err)

		username, secret, err := service.Load(ctx, "compass")
		require.NoError(t, err)
		require.Equal(t, "anguyen", username)
		require.Equal(t, "hunter2", secret)
	}
	{
		// saving again replaces, one row per source
		err := service.Save(ctx, "compass", "anguyen", "rotated")
		require.NoError(t, err)

		_, secret, err := service.Load(ctx, "compass")
		require.NoError(t, err)
		require.Equal(t, "rotated", secret)
	}
	{
		err := service.Delete(ctx, "compass")
		require.NoError(t, err)

		_, _, err = service.Load(ctx, "compass")
		require.True(t, errors.Is(err, ErrNotFound))
	}
}
