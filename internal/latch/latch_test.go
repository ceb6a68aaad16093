package latch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dreamware/teseograph/internal/coreerr"
	"github.com/dreamware/teseograph/internal/latch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLockAllowsConcurrentReaders(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()

	require.NoError(t, l.ReadLock(ctx))
	require.NoError(t, l.ReadLock(ctx))
	l.ReadUnlock()
	l.ReadUnlock()
}

func TestWriteLockExcludesReaders(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()
	require.NoError(t, l.WriteLock(ctx))

	readErrCh := make(chan error, 1)
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		readErrCh <- l.ReadLock(cctx)
	}()

	select {
	case err := <-readErrCh:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("reader should have blocked and then timed out")
	}

	l.WriteUnlock()
	require.NoError(t, l.ReadLock(ctx))
	l.ReadUnlock()
}

func TestRebalanceLockWaitsForReaders(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()
	require.NoError(t, l.ReadLock(ctx))

	done := make(chan struct{})
	go func() {
		require.NoError(t, l.RebalanceLock(ctx))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("rebalance should not proceed while a reader is active")
	case <-time.After(20 * time.Millisecond):
	}

	l.ReadUnlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rebalance should proceed once reader releases")
	}
	l.RebalanceUnlock()
}

func TestOptimisticReadValidatesAgainstWriter(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()

	v, err := l.OptimisticReadBegin()
	require.NoError(t, err)
	require.NoError(t, l.OptimisticValidate(v))

	require.NoError(t, l.WriteLock(ctx))
	assert.ErrorIs(t, l.OptimisticValidate(v), coreerr.ErrAbort)
	l.WriteUnlock()

	assert.ErrorIs(t, l.OptimisticValidate(v), coreerr.ErrAbort)
	v2, err := l.OptimisticReadBegin()
	require.NoError(t, err)
	require.NoError(t, l.OptimisticValidate(v2))
}

func TestMarkInvalidRejectsFurtherAcquisition(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()
	require.NoError(t, l.WriteLock(ctx))
	l.MarkInvalid()

	assert.ErrorIs(t, l.ReadLock(ctx), coreerr.ErrInvalid)
	assert.ErrorIs(t, l.WriteLock(ctx), coreerr.ErrInvalid)
	_, err := l.OptimisticReadBegin()
	assert.ErrorIs(t, err, coreerr.ErrInvalid)
}

func TestConcurrentReadersAndWritersStayConsistent(t *testing.T) {
	var l latch.SegmentLatch
	ctx := context.Background()
	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				require.NoError(t, l.WriteLock(ctx))
				counter++
				l.WriteUnlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1600), counter)
}
