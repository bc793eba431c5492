// Package interrupt turns an external interrupt request into a single-shot
// cancellation that any number of waiters can observe.
package interrupt

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

// Signal is a single-shot broadcast cancellation token. It satisfies
// context.Context so it can be handed to anything that takes a context.
type Signal struct {
	done chan struct{}
	once sync.Once
}

// New returns a Signal that has not been requested.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Request fires the signal. Only the first call has any effect.
func (s *Signal) Request() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Requested reports whether Request has been called.
func (s *Signal) Requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the signal is requested.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Err returns context.Canceled once the signal has been requested.
func (s *Signal) Err() error {
	if s.Requested() {
		return context.Canceled
	}
	return nil
}

func (s *Signal) Deadline() (time.Time, bool) { return time.Time{}, false }

func (s *Signal) Value(any) any { return nil }

var _ context.Context = (*Signal)(nil)

// Notify requests s whenever one of sigs arrives. The returned function
// unregisters the handler.
func Notify(s *Signal, sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				slog.Debug("received signal", "signal", sig)
				s.Request()
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
