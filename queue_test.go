package bluetooth

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *queue {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return newQueue("test.queue", logger)
}

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := newTestQueue(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.async(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.True(t, q.closeWith(nil))
	q.wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "tasks MUST run in submission order")
	}
}

func TestQueueSyncWaitsForTask(t *testing.T) {
	q := newTestQueue(t)
	defer q.closeWith(nil)

	ran := false
	require.True(t, q.sync(func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	}))
	assert.True(t, ran)
}

func TestQueueAsyncNeverBlocks(t *testing.T) {
	q := newTestQueue(t)

	release := make(chan struct{})
	require.True(t, q.async(func() { <-release }))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.async(func() {})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async MUST NOT block while a task is running")
	}
	close(release)
	q.closeWith(nil)
	q.wait()
}

func TestQueueCloseWithRunsLastAndRejectsLater(t *testing.T) {
	q := newTestQueue(t)

	var order []string
	q.async(func() { order = append(order, "first") })
	require.True(t, q.closeWith(func() { order = append(order, "last") }))

	assert.False(t, q.async(func() { order = append(order, "late") }), "closed queue MUST reject tasks")
	assert.False(t, q.sync(func() {}))
	assert.False(t, q.closeWith(nil), "second close MUST report false")

	q.wait()
	assert.Equal(t, []string{"first", "last"}, order)
}
