package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/catador/internal/adapters/mq/queue"
	worker "github.com/okian/catador/internal/adapters/mq/worker"
	model "github.com/okian/catador/internal/domain/model"
	logging "github.com/okian/catador/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	requests chan queue.Request
}

func newMockQueue() *mockQueue {
	return &mockQueue{requests: make(chan queue.Request, 16)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Request { return mq.requests }

func (mq *mockQueue) Close() error {
	close(mq.requests)
	return nil
}

func (mq *mockQueue) add(session string, rev int64) {
	p := model.NewSessionProgress("ev1", model.SessionID(session))
	p.Revision = rev
	mq.requests <- queue.Request{Progress: p, EnqueuedAt: time.Now()}
}

// mockSaver keeps the highest revision per session and fails a configurable
// number of times first.
type mockSaver struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	saved    map[model.SessionID]int64
}

func newMockSaver() *mockSaver {
	return &mockSaver{saved: map[model.SessionID]int64{}}
}

func (ms *mockSaver) SaveProgress(_ context.Context, p *model.SessionProgress) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.calls++
	if ms.failures > 0 {
		ms.failures--
		return false, ms.err
	}
	if ms.saved[p.SessionID] >= p.Revision {
		return false, nil
	}
	ms.saved[p.SessionID] = p.Revision
	return true, nil
}

func (ms *mockSaver) revision(id model.SessionID) int64 {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.saved[id]
}

func (ms *mockSaver) callCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.calls
}

func TestInMemoryWorker(t *testing.T) {
	_ = logging.Init(logging.WithOutput(io.Discard))

	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		saver := newMockSaver()
		w := worker.NewInMemoryWorker(q, saver,
			worker.WithName("test-worker"),
			worker.WithRetryBackoff(time.Millisecond),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When requests arrive out of order", func() {
			q.add("s1", 2)
			q.add("s1", 1)
			convey.So(q.Close(), convey.ShouldBeNil)
			waitDone(w)

			convey.Convey("Then the newest revision wins", func() {
				convey.So(saver.revision("s1"), convey.ShouldEqual, 2)
				convey.So(saver.callCount(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the store fails transiently", func() {
			saver.failures = 2
			saver.err = model.ErrStoreUnavailable
			q.add("s2", 1)
			convey.So(q.Close(), convey.ShouldBeNil)
			waitDone(w)

			convey.Convey("Then the write is retried", func() {
				convey.So(saver.revision("s2"), convey.ShouldEqual, 1)
				convey.So(saver.callCount(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the record is gone", func() {
			saver.failures = 5
			saver.err = fmt.Errorf("progress: %w", model.ErrNotFound)
			q.add("s3", 1)
			convey.So(q.Close(), convey.ShouldBeNil)
			waitDone(w)

			convey.Convey("Then it is not retried", func() {
				convey.So(saver.callCount(), convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a worker that exhausts its retries", t, func() {
		q := newMockQueue()
		saver := newMockSaver()
		saver.failures = 10
		saver.err = errors.New("disk on fire")
		w := worker.NewInMemoryWorker(q, saver, worker.WithRetries(1), worker.WithRetryBackoff(time.Millisecond))
		go w.Run(context.Background())

		q.add("s1", 1)
		convey.So(q.Close(), convey.ShouldBeNil)
		waitDone(w)
		convey.So(saver.callCount(), convey.ShouldEqual, 2)
		convey.So(saver.revision("s1"), convey.ShouldEqual, 0)
	})
}

func TestPool(t *testing.T) {
	_ = logging.Init(logging.WithOutput(io.Discard))

	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		saver := newMockSaver()
		pool := worker.NewPool(3, q, saver)
		pool.Start(context.Background())

		for i := 1; i <= 20; i++ {
			p := model.NewSessionProgress("ev1", model.SessionID(fmt.Sprintf("s%d", i%4)))
			p.Revision = int64(i)
			q.Enqueue(context.Background(), queue.Request{Progress: p})
		}

		convey.Convey("When it shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every pending request was processed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(saver.callCount(), convey.ShouldEqual, 20)
				convey.So(saver.revision("s0"), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

// waitDone waits for a worker to drain its closed queue.
func waitDone(w *worker.InMemoryWorker) {
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		convey.So("worker did not stop", convey.ShouldBeEmpty)
	}
}

func TestInMemoryWorker_Shutdown(t *testing.T) {
	_ = logging.Init(logging.WithOutput(io.Discard))

	convey.Convey("Given an idle worker", t, func() {
		w := worker.NewInMemoryWorker(newMockQueue(), newMockSaver())
		go w.Run(context.Background())

		convey.Convey("Then Shutdown stops it and can be repeated", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}
