package bootstrap

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal 记录各个 Worker 的启停顺序
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeWorker struct {
	name     string
	startErr error
	log      *journal
}

func (w *fakeWorker) Start(context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	w.log.add("start " + w.name)
	return nil
}

func (w *fakeWorker) Stop(context.Context) {
	w.log.add("stop " + w.name)
}

func TestStartWorkers_ReturnsStartedOnFailure(t *testing.T) {
	log := &journal{}
	workers := []Worker{
		&fakeWorker{name: "a", log: log},
		&fakeWorker{name: "b", log: log},
		&fakeWorker{name: "c", startErr: errors.New("broker unreachable"), log: log},
		&fakeWorker{name: "d", log: log},
	}

	started, err := startWorkers(context.Background(), workers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
	assert.Equal(t, workers[:2], started)

	stopWorkers(context.Background(), started)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log.list())
}

func TestStartService_StopsStartedWorkersWhenLaterOneFails(t *testing.T) {
	log := &journal{}
	closed := false

	err := StartService(context.Background(), AppInfo{
		ServiceName: "order-service-test",
		Port:        0,
		Workers: []Worker{
			&fakeWorker{name: "bus", log: log},
			&fakeWorker{name: "outbox", log: log},
			&fakeWorker{name: "consumer", startErr: errors.New("subscribe failed"), log: log},
		},
		Closers: []func(ctx context.Context) error{
			func(context.Context) error { closed = true; return nil },
		},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker")
	assert.Equal(t, []string{"start bus", "start outbox", "stop outbox", "stop bus"}, log.list())
	assert.True(t, closed)
}
