package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage_LastSyncAt(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	at, err := store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	want := time.Date(2026, 1, 5, 9, 30, 15, 250_000_000, time.UTC)
	require.NoError(t, store.SaveLastSyncAt(ctx, want))

	at, err = store.GetLastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(at))
}
