package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTable_BlocksUntilRelease(t *testing.T) {
	locks := NewLockTable()

	release, err := locks.Acquire(context.Background(), []string{"r2", "r1"})
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		rel, err := locks.Acquire(context.Background(), []string{"r1"})
		if err == nil {
			close(acquired)
			rel()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while r1 is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestLockTable_ContextCancelReleasesPartial(t *testing.T) {
	locks := NewLockTable()

	holdB, err := locks.Acquire(context.Background(), []string{"b"})
	require.NoError(t, err)
	defer holdB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// "a" must not stay held by the failed attempt
	rel, ok := locks.TryAcquire([]string{"a"})
	require.True(t, ok)
	rel()
}

func TestLockTable_TryAcquire(t *testing.T) {
	locks := NewLockTable()

	rel, ok := locks.TryAcquire([]string{"r1", "r1"})
	require.True(t, ok)

	_, ok = locks.TryAcquire([]string{"r1"})
	assert.False(t, ok)

	rel()
	rel() // idempotent

	rel2, ok := locks.TryAcquire([]string{"r1"})
	assert.True(t, ok)
	rel2()
}
