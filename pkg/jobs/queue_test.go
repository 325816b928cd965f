package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(2)
	handler := func(ctx context.Context, job Job) error {
		defer wg.Done()
		if job.ID == "slow" {
			<-release
		}
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}
	q := NewQueue("test", handler, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "slow"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "fast"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "fast"
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	assert.ElementsMatch(t, []string{"fast", "slow"}, seen)
}

func TestQueueSurvivesPanicsAndErrors(t *testing.T) {
	done := make(chan string, 3)
	handler := func(ctx context.Context, job Job) error {
		defer func() { done <- job.ID }()
		switch job.ID {
		case "panic":
			panic("boom")
		case "error":
			return errors.New("failed")
		}
		return nil
	}
	q := NewQueue("test", handler, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"panic", "error", "ok"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: id}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
}

func TestQueueEnqueueRequiresStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(context.Background(), Job{ID: "x"})
	assert.True(t, errors.Is(err, ErrQueueStopped))

	q.Start(context.Background())
	q.Stop()
	err = q.Enqueue(context.Background(), Job{ID: "x"})
	assert.True(t, errors.Is(err, ErrQueueStopped))
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var (
		mu  sync.Mutex
		ran []string
	)
	handler := func(ctx context.Context, job Job) error {
		time.Sleep(5 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		ran = append(ran, job.ID)
		mu.Unlock()
		return nil
	}
	var dropped []string
	q := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 8, OnDrop: func(j Job) { dropped = append(dropped, j.ID) }})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: id}))
	}
	// Shutdown usually follows cancellation of the process context.
	cancel()
	q.Stop()

	assert.Equal(t, ids, ran)
	assert.Empty(t, dropped)
	assert.Zero(t, q.Pending())
}

func TestQueueStopHandsUnstartedJobsToOnDropAfterTimeout(t *testing.T) {
	started := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	var (
		mu      sync.Mutex
		dropped []string
	)
	q := NewQueue("test", handler, QueueConfig{
		Workers:      1,
		BufferSize:   4,
		DrainTimeout: 20 * time.Millisecond,
		OnDrop: func(j Job) {
			mu.Lock()
			dropped = append(dropped, j.ID)
			mu.Unlock()
		},
	})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "stuck"}))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "b"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "c"}))

	q.Stop()
	assert.Equal(t, []string{"b", "c"}, dropped)
}

func TestQueueTryEnqueueReportsFullBuffer(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	handler := func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}
	q := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.TryEnqueue(context.Background(), Job{ID: "running"}))
	<-started
	require.NoError(t, q.TryEnqueue(context.Background(), Job{ID: "buffered"}))

	err := q.TryEnqueue(context.Background(), Job{ID: "overflow"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	q.Stop()
	assert.ErrorIs(t, q.TryEnqueue(context.Background(), Job{ID: "late"}), ErrQueueStopped)
}

func TestQueueStopReleasesBlockedEnqueue(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "running"}))
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{ID: "buffered"}))

	blocked := make(chan error, 1)
	go func() { blocked <- q.Enqueue(context.Background(), Job{ID: "waiting"}) }()

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()
	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrQueueStopped)
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released by Stop")
	}
	close(release)
	<-stopped
}
