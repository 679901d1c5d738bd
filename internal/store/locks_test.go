package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireLock_SecondCallerLoses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "script:1", "hostA:100")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquireLock(ctx, "script:1", "hostB:200")
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must not be acquirable")

	// A different key is independent.
	ok, err = s.TryAcquireLock(ctx, "script:2", "hostB:200")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLock_OnlyMatchingOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.TryAcquireLock(ctx, "script:1", "hostA:100")
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong owner: release is a no-op, lock stays held.
	require.NoError(t, s.ReleaseLock(ctx, "script:1", "hostB:200"))
	ok, err = s.TryAcquireLock(ctx, "script:1", "hostB:200")
	require.NoError(t, err)
	assert.False(t, ok)

	// Right owner frees it.
	require.NoError(t, s.ReleaseLock(ctx, "script:1", "hostA:100"))
	ok, err = s.TryAcquireLock(ctx, "script:1", "hostB:200")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocks_ReacquireAfterRelease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.TryAcquireLock(ctx, "script:9", "host:1")
		require.NoError(t, err)
		require.True(t, ok, "iteration %d", i)
		require.NoError(t, s.ReleaseLock(ctx, "script:9", "host:1"))
	}
}
