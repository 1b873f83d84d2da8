package adapter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOrderLocker_SerializesSameOrder(t *testing.T) {
	locker := NewLocalOrderLocker()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, locker.size())
}

func TestLocalOrderLocker_DifferentOrdersDoNotBlock(t *testing.T) {
	locker := NewLocalOrderLocker()
	ctx := context.Background()

	unlock1, err := locker.Lock(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	unlock2, err := locker.Lock(timeoutCtx, 2)
	require.NoError(t, err)
	unlock2()
}

func TestLocalOrderLocker_RespectsContext(t *testing.T) {
	locker := NewLocalOrderLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(timeoutCtx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // 重复调用无副作用
	assert.Zero(t, locker.size())
}

func TestOrderLockResource(t *testing.T) {
	assert.Equal(t, "order-42", orderLockResource(42))
}
