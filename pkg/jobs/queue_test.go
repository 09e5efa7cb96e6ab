package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	var seen sync.Map
	q := NewQueue("test", func(_ context.Context, job Job) error {
		seen.Store(job.ID, job.Payload)
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a", Payload: 1}))
	require.NoError(t, q.Enqueue(Job{ID: "b", Payload: 2}))
	wg.Wait()

	v, ok := seen.Load("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("retry", func(_ context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "score", Key: "dataset-1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	require.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestQueueCoalescesPendingKeys(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	q := NewQueue("dedup", func(_ context.Context, job Job) error {
		<-release
		atomic.AddInt32(&runs, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	q.Start(context.Background())
	defer q.Stop()

	// first job occupies the worker, the following identical keys collapse into one pending entry
	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "blocker"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, q.Enqueue(Job{ID: "2", Key: "dataset-1"}))
	require.NoError(t, q.Enqueue(Job{ID: "3", Key: "dataset-1"}))
	require.NoError(t, q.Enqueue(Job{ID: "4", Key: "dataset-1"}))
	require.Equal(t, 1, q.Pending())

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, 0, q.Pending())
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueTryEnqueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("bounded", func(_ context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.TryEnqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "2"}))

	err := q.TryEnqueue(Job{ID: "3", Key: "dataset-9"})
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 0, q.Pending())
}
