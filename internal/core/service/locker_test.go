package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockledger/internal/core/domain"
)

func TestLocker_TimeoutIsConcurrencyConflict(t *testing.T) {
	l := NewLocker("item")
	ctx := context.Background()

	unlock, err := l.Lock(ctx, time.Second, "b")
	require.NoError(t, err)

	_, err = l.Lock(ctx, 20*time.Millisecond, "a", "b", "c")
	var conflict *domain.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "item b", conflict.Resource)
	assert.True(t, domain.IsRetryable(err))

	// "a" was acquired before the timeout and must have been given back
	unlockA, err := l.Lock(ctx, 20*time.Millisecond, "a")
	require.NoError(t, err)
	unlockA()

	unlock()
	unlock() // second call is a no-op

	unlockAll, err := l.Lock(ctx, 20*time.Millisecond, "a", "b", "c")
	require.NoError(t, err)
	unlockAll()

	assert.Empty(t, l.locks)
}

func TestLocker_CancelledContext(t *testing.T) {
	l := NewLocker("member")

	unlock, err := l.Lock(context.Background(), 0, "m1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Lock(ctx, time.Second, "m1")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLocker_DuplicateKeys(t *testing.T) {
	l := NewLocker("item")

	unlock, err := l.Lock(context.Background(), 50*time.Millisecond, "a", "a", "b")
	require.NoError(t, err)
	unlock()
}

func TestLocker_OverlappingSetsDoNotDeadlock(t *testing.T) {
	l := NewLocker("item")
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"x", "y", "z"}
			if i%2 == 0 {
				keys = []string{"z", "y", "x"}
			}
			unlock, err := l.Lock(ctx, 5*time.Second, keys...)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			counter++
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}
