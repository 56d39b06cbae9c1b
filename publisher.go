package iceoryx2

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/internal/wire"
	"github.com/youndong/iceoryx2/pkg/log"
)

// Publisher is the sending endpoint of one service. Send loans a sample from
// the service's fixed pool, encodes the message in place and commits it; the
// message bytes are never copied again on their way to subscribers sharing
// the transport.
//
// A publisher is safe for concurrent Sends; each Send owns its loaned sample
// exclusively until commit or discard.
type Publisher struct {
	node    *Node
	service string
	ch      transport.ChannelHandle
	handle  transport.PublisherHandle
	logger  log.Logger

	sent   atomic.Uint64
	failed atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// PublisherStats is a snapshot of a publisher's delivery counters.
type PublisherStats struct {
	Sent   uint64
	Failed uint64
}

// Service returns the service name the publisher is attached to.
func (p *Publisher) Service() string { return p.service }

// Send publishes m to every subscriber of the service. An empty Sender is
// filled in with the node name, a zero Timestamp with the current time and a
// zero Version with the current protocol version.
//
// Oversized messages fail with ErrPayloadTooLarge before any sample is
// loaned. A pool-exhausted loan fails with ErrLoanFailed and is safe to
// retry once subscribers release.
func (p *Publisher) Send(m Message) error {
	if err := p.guard(); err != nil {
		return err
	}
	if m.Sender == "" {
		m.Sender = p.node.name
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.Version == 0 {
		m.Version = wire.ProtocolVersion
	}

	if err := wire.Validate(m); err != nil {
		p.failed.Add(1)
		return err
	}

	smp, err := p.node.tr.Loan(p.handle)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("%w: service %q: %w", ErrLoanFailed, p.service, err)
	}
	if err := wire.EncodeInto(m, smp.Payload(), smp.Header()); err != nil {
		p.node.tr.Discard(p.handle, smp)
		p.failed.Add(1)
		return fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	if err := p.node.tr.Commit(p.handle, smp); err != nil {
		p.node.tr.Discard(p.handle, smp)
		p.failed.Add(1)
		return fmt.Errorf("%w: service %q: %w", ErrSendFailed, p.service, err)
	}

	p.sent.Add(1)
	return nil
}

// Stats returns a snapshot of the publisher's counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{Sent: p.sent.Load(), Failed: p.failed.Load()}
}

// Close detaches the publisher from the service. Closing twice returns
// ErrEndpointClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("%w: publisher for %q", ErrEndpointClosed, p.service)
	}
	p.closed = true
	p.mu.Unlock()

	err := p.node.tr.DropPublisher(p.handle)
	if cerr := p.node.tr.DropChannel(p.ch); err == nil {
		err = cerr
	}
	p.node.releaseEndpoint()
	p.logger.Debug("publisher closed",
		log.Uint64("sent", p.sent.Load()),
		log.Uint64("failed", p.failed.Load()))
	return err
}

func (p *Publisher) guard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: publisher for %q", ErrEndpointClosed, p.service)
	}
	return nil
}
