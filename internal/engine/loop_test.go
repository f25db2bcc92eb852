package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_DrainRunsInOrder(t *testing.T) {
	l := NewLoop()

	var got []int
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	assert.Equal(t, 3, l.Drain())
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, int64(3), l.Processed())
	assert.Equal(t, int64(3), l.Posted())
	assert.Equal(t, 0, l.Len())
}

func TestLoop_DrainRunsNestedPosts(t *testing.T) {
	l := NewLoop()

	var got []string
	l.Post(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})

	assert.Equal(t, 2, l.Drain())
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestLoop_PostNilRejected(t *testing.T) {
	assert.False(t, NewLoop().Post(nil))
}

func TestLoop_RunStopsOnContext(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	ran := make(chan struct{})
	l.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.False(t, l.Post(func() {}), "post after shutdown is rejected")
}

func TestLoop_StopRunsQueuedThenReturns(t *testing.T) {
	l := NewLoop()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		l.Post(func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	l.Stop()

	err := l.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestLoop_ConcurrentPostersKeepPerGoroutineOrder(t *testing.T) {
	l := NewLoop()
	const posters, perPoster = 8, 50

	// Only touched by tasks, which run on the test goroutine in Drain.
	recorded := make(map[int][]int)

	var wg sync.WaitGroup
	for p := 0; p < posters; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPoster; i++ {
				i := i
				l.Post(func() { recorded[p] = append(recorded[p], i) })
			}
		}(p)
	}
	wg.Wait()

	l.Drain()

	for p := 0; p < posters; p++ {
		seq := recorded[p]
		require.Len(t, seq, perPoster)
		for i, v := range seq {
			assert.Equal(t, i, v)
		}
	}
}
