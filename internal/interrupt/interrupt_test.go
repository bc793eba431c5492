package interrupt

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBroadcastsToAllWaiters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	woke := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-s.Done()
			woke <- id
		}(i)
	}

	s.Request()
	wg.Wait()
	close(woke)

	count := 0
	for range woke {
		count++
	}
	assert.Equal(t, 8, count)
}

func TestSignalRequestIsIdempotent(t *testing.T) {
	s := New()
	assert.False(t, s.Requested())
	assert.NoError(t, s.Err())

	s.Request()
	s.Request()

	assert.True(t, s.Requested())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestSignalActsAsContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithTimeout(s, time.Minute)
	defer cancel()

	s.Request()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("derived context was not cancelled")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, ok := s.Deadline()
	assert.False(t, ok)
	assert.Nil(t, s.Value("key"))
}

func TestNotifyRequestsOnSignal(t *testing.T) {
	s := New()
	stop := Notify(s, syscall.SIGUSR1)
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not turned into a cancellation request")
	}
	stop()
}
