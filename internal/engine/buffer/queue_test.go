package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 3; i++ {
		assert.False(t, q.Push(i))
	}
	assert.Equal(t, []int{1, 2}, q.PopBatch(2))
	q.Push(4)
	q.Push(5)
	assert.Equal(t, []int{3, 4, 5}, q.PopBatch(10))
	assert.Nil(t, q.PopBatch(10))
	assert.Zero(t, q.Len())
}

func TestQueue_DropOldestWhenFull(t *testing.T) {
	q := New[int](3)
	for i := 1; i <= 10; i++ {
		q.Push(i)
		assert.LessOrEqual(t, q.Len(), 3)
		batch := peek(q)
		assert.Equal(t, i, batch[len(batch)-1], "newest item must be present")
	}
	assert.EqualValues(t, 7, q.Dropped())
	assert.EqualValues(t, 10, q.Pushed())
	assert.Equal(t, []int{8, 9, 10}, q.PopBatch(0))
}

func TestQueue_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[string](0).Cap())
}

func TestQueue_ReadySignal(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after push")
	}
}

func TestQueue_WaitTimesOut(t *testing.T) {
	q := New[int](2)
	start := time.Now()
	q.Wait(context.Background(), 20*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	q.Push(1)
	start = time.Now()
	q.Wait(context.Background(), time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](64)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				q.Push(i)
			}
		}()
	}
	var popped int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			popped += len(q.PopBatch(16))
		}
	}()
	wg.Wait()
	<-done
	popped += len(q.PopBatch(0))

	require.EqualValues(t, 8000, q.Pushed())
	assert.EqualValues(t, 8000, uint64(popped)+q.Dropped())
}

// peek returns the queued items, oldest first, without removing them.
func peek(q *Queue[int]) []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]int, q.size)
	for i := range out {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	return out
}
