package iceoryx2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/internal/wire"
	"github.com/youndong/iceoryx2/pkg/log"
)

// Subscriber is the receiving endpoint of one service. TryReceive polls for
// a single message; Messages starts an event-driven stream that blocks on
// the transport's wait primitive instead of spinning.
//
// Every received sample is decoded and released back to the pool before the
// message is handed to the caller, so a slow consumer delays delivery but
// never pins pool buffers.
type Subscriber struct {
	node    *Node
	service string
	ch      transport.ChannelHandle
	handle  transport.SubscriberHandle
	logger  log.Logger

	received atomic.Uint64

	// recvMu serializes poll and release on the transport handle between
	// TryReceive and a running stream.
	recvMu sync.Mutex

	mu     sync.Mutex
	stream *Stream
	closed bool
}

// SubscriberStats is a snapshot of a subscriber's counters.
type SubscriberStats struct {
	Received uint64
}

// Service returns the service name the subscriber is attached to.
func (s *Subscriber) Service() string { return s.service }

// TryReceive returns the next pending message without blocking. The second
// return is false when no message is pending. Malformed frames are consumed
// and reported with ErrReceiveFailed; the next call moves past them.
func (s *Subscriber) TryReceive() (Message, bool, error) {
	if err := s.guard(); err != nil {
		return Message{}, false, err
	}
	m, ok, err := s.pollDecode()
	if err != nil {
		return Message{}, false, fmt.Errorf("%w: service %q: %w", ErrReceiveFailed, s.service, err)
	}
	return m, ok, nil
}

// Messages starts the subscriber's receive stream: a background wait loop
// that delivers every incoming message to the returned Stream until ctx is
// cancelled or the stream is stopped. Starting a new stream stops the
// previous one.
func (s *Subscriber) Messages(ctx context.Context) (*Stream, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.stream
	s.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &Stream{
		ch:     make(chan Message, s.node.cfg.StreamBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: subscriber for %q", ErrEndpointClosed, s.service)
	}
	s.stream = st
	s.mu.Unlock()

	go s.run(ctx, st)
	return st, nil
}

// Stats returns a snapshot of the subscriber's counters.
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{Received: s.received.Load()}
}

// Close stops any running stream, detaches from the service and returns
// still-queued samples to the pool. Closing twice returns ErrEndpointClosed.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: subscriber for %q", ErrEndpointClosed, s.service)
	}
	s.closed = true
	st := s.stream
	s.stream = nil
	s.mu.Unlock()

	if st != nil {
		st.Stop()
	}
	err := s.node.tr.DropSubscriber(s.handle)
	if cerr := s.node.tr.DropChannel(s.ch); err == nil {
		err = cerr
	}
	s.node.releaseEndpoint()
	s.logger.Debug("subscriber closed", log.Uint64("received", s.received.Load()))
	return err
}

// pollDecode takes one sample off the transport, decodes it and releases the
// buffer. ok is false when nothing is pending. A non-nil error with ok true
// means a sample was consumed but could not be decoded.
func (s *Subscriber) pollDecode() (Message, bool, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	smp, err := s.node.tr.PollReceive(s.handle)
	if err != nil {
		return Message{}, false, err
	}
	if smp == nil {
		return Message{}, false, nil
	}
	m, derr := wire.Decode(smp.Payload(), smp.Header())
	s.node.tr.Release(s.handle, smp)
	if derr != nil {
		return Message{}, true, derr
	}
	s.received.Add(1)
	return m, true, nil
}

func (s *Subscriber) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: subscriber for %q", ErrEndpointClosed, s.service)
	}
	return nil
}

// run is the stream's wait loop: block on the node's wait primitive, drain
// every pending sample, forward, repeat. The wait timeout is a liveness
// bound, not an error: cancellation is observed within one timeout even if
// no message ever arrives.
func (s *Subscriber) run(ctx context.Context, st *Stream) {
	defer close(st.done)
	defer close(st.ch)

	timeout := s.node.cfg.WaitTimeout()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := s.node.tr.Wait(s.node.handle, timeout); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			st.setErr(fmt.Errorf("%w: %w", ErrWaitFault, err))
			s.logger.Error("receive stream wait fault", log.Err(err))
			return
		}

		for {
			if ctx.Err() != nil {
				return
			}
			m, ok, err := s.pollDecode()
			if err != nil {
				if errors.Is(err, wire.ErrMalformedFrame) {
					s.logger.Warn("dropping malformed frame", log.Err(err))
					continue
				}
				// The handle disappearing under us is a normal stop; any
				// other poll failure is a fault the consumer must see.
				if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
					return
				}
				st.setErr(fmt.Errorf("%w: service %q: %w", ErrReceiveFailed, s.service, err))
				s.logger.Error("receive stream poll fault", log.Err(err))
				return
			}
			if !ok {
				break
			}
			select {
			case st.ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}
