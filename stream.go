package iceoryx2

import (
	"context"
	"sync"
)

// Stream is a running receive loop's output. Messages arrive on C (or via
// Next) until the stream's context is cancelled, Stop is called or the
// underlying wait primitive faults; Err distinguishes a fault from a normal
// stop after the channel closes.
type Stream struct {
	ch     chan Message
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// C returns the stream's delivery channel. It is closed when the stream
// ends.
func (s *Stream) C() <-chan Message { return s.ch }

// Next blocks for the next message. When the stream has ended it returns the
// stream's fault if one occurred, ErrStreamClosed otherwise. A cancelled ctx
// returns ctx.Err().
func (s *Stream) Next(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-s.ch:
		if !ok {
			if err := s.Err(); err != nil {
				return Message{}, err
			}
			return Message{}, ErrStreamClosed
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Stop cancels the stream and blocks until its wait loop has exited and the
// delivery channel is closed. Stopping twice is harmless.
func (s *Stream) Stop() {
	s.cancel()
	<-s.done
}

// Err reports why the stream ended, or nil for a normal stop. Only
// meaningful after the delivery channel closes.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
