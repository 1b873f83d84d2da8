package adapter

import (
	"context"
	"sync"
)

// LocalOrderLocker 是进程内按订单 ID 加锁的互斥锁表，单实例部署时使用。
// 不再被引用的锁会从表中移除。
type LocalOrderLocker struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{locks: make(map[int64]*lockEntry)}
}

func (l *LocalOrderLocker) Lock(ctx context.Context, orderID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[orderID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(orderID, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(orderID, e)
		})
	}, nil
}

func (l *LocalOrderLocker) release(orderID int64, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, orderID)
	}
}

func (l *LocalOrderLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
