package parallel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		v, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestQueueDrainsBeforeReportingStop(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a")
	q.Enqueue("b")
	q.SetStop()
	q.SetStop()
	assert.True(t, q.Stopped())

	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestQueueStopWakesAllWaiters(t *testing.T) {
	q := NewQueue[int]()

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Dequeue()
			results <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.SetStop()
	wg.Wait()
	close(results)
	for ok := range results {
		assert.False(t, ok)
	}
}

func TestQueueBlockingDequeue(t *testing.T) {
	q := NewQueue[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := q.Dequeue()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before enqueue")
	case <-time.After(10 * time.Millisecond):
	}
	q.Enqueue(42)
	assert.Equal(t, 42, <-got)
}
