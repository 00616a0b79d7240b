package filelock

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/lilyenv/pkg/errors"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".lock")

	l, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err)
	require.Equal(t, path, l.Path())
	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "double release is a no-op")

	l2, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err, "lock must be reusable after release")
	require.NoError(t, l2.Release())
}

func TestAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = Acquire(context.Background(), path, 150*time.Millisecond)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCodeLockContention), "got %v", err)
	require.Equal(t, 6, errors.ExitCode(err))
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		held.Release()
	}()

	l, err := Acquire(context.Background(), path, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquireCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = Acquire(ctx, path, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := Acquire(context.Background(), path, 10*time.Second)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}
