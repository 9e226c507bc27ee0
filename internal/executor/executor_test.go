package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitReturnsResult(t *testing.T) {
	p := New()
	defer p.Shutdown()

	result, err := Submit(context.Background(), p, func() int { return 42 })
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	p := New()
	defer p.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := make(chan struct{})
	_, err := Submit(ctx, p, func() int {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return 1
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 2), done: make(chan struct{})}
	defer p.Shutdown()

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	release := make(chan struct{})

	results := make(chan int, 4)
	for i := 0; i < 4; i++ {
		go func() {
			r, err := Submit(context.Background(), p, func() int {
				n := inFlight.Add(1)
				for {
					cur := maxSeen.Load()
					if n <= cur || maxSeen.CompareAndSwap(cur, n) {
						break
					}
				}
				<-release
				inFlight.Add(-1)
				return 1
			})
			if err == nil {
				results <- r
			}
		}()
	}

	time.Sleep(30 * time.Millisecond)
	close(release)
	for i := 0; i < 4; i++ {
		<-results
	}
	assert.LessOrEqual(t, int(maxSeen.Load()), 2)
}

func TestShutdownUnblocksPendingSubmit(t *testing.T) {
	p := &Pool{sem: make(chan struct{}, 0), done: make(chan struct{})}
	errCh := make(chan error, 1)
	go func() {
		_, err := Submit(context.Background(), p, func() int { return 1 })
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.Shutdown()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Submit did not unblock after Shutdown")
	}
}

func TestSizeIsBounded(t *testing.T) {
	n := Size()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 32)
}
