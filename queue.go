package bluetooth

import (
	"context"
	"sync"

	"github.com/cbcentral/bluetooth/internal/groutine"
	"github.com/sirupsen/logrus"
)

// queue is a serial dispatch queue: tasks run one at a time, in submission
// order, on a single worker goroutine. The backlog is unbounded so that
// submitting never blocks, which matters for native callback threads.
type queue struct {
	label  string
	logger *logrus.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

func newQueue(label string, logger *logrus.Logger) *queue {
	q := &queue{
		label:  label,
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	groutine.Go(context.Background(), label, q.run)
	return q
}

func (q *queue) run(ctx context.Context) {
	defer close(q.done)
	log := q.logger.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("dispatch queue started")
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			log.Debug("dispatch queue stopped")
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

// async appends fn to the queue. It returns false if the queue is closed,
// in which case fn is never run.
func (q *queue) async(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

// sync runs fn on the queue and waits for it to finish. It must not be
// called from a task.
func (q *queue) sync(fn func()) bool {
	finished := make(chan struct{})
	if !q.async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// closeWith appends fn as the last task and closes the queue in one step,
// so nothing can be queued behind it. Tasks already queued still run.
func (q *queue) closeWith(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if fn != nil {
		q.tasks = append(q.tasks, fn)
	}
	q.closed = true
	q.cond.Signal()
	return true
}

// wait blocks until the worker has drained the queue after closeWith.
func (q *queue) wait() {
	<-q.done
}
