package workpool_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/raddi-network/entrystore/workpool"
	"github.com/stretchr/testify/require"
)

func TestJoinWaitsForAllTasks(t *testing.T) {
	pool := workpool.Begin(0)
	var done atomic.Int32
	for i := 0; i < 20; i++ {
		pool.Dispatch(func() error {
			done.Add(1)
			return nil
		})
	}
	require.NoError(t, pool.Join())
	require.EqualValues(t, 20, done.Load())
}

func TestJoinReportsTaskError(t *testing.T) {
	pool := workpool.Begin(0)
	sentinel := errors.New("boom")
	pool.Dispatch(func() error { return nil })
	pool.Dispatch(func() error { return sentinel })
	err := pool.Join()
	require.ErrorIs(t, err, sentinel)
}

func TestPanicIsCaughtAndReported(t *testing.T) {
	pool := workpool.Begin(0)
	pool.Dispatch(func() error {
		panic("unexpected")
	})
	err := pool.Join()
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	pool := workpool.Begin(2)
	var inFlight, maxInFlight atomic.Int32
	for i := 0; i < 10; i++ {
		pool.Dispatch(func() error {
			cur := inFlight.Add(1)
			for {
				old := maxInFlight.Load()
				if cur <= old || maxInFlight.CompareAndSwap(old, cur) {
					break
				}
			}
			inFlight.Add(-1)
			return nil
		})
	}
	require.NoError(t, pool.Join())
	require.LessOrEqual(t, maxInFlight.Load(), int32(2))
}
