package iceoryx2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/youndong/iceoryx2/internal/config"
	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/internal/transport/mem"
	"github.com/youndong/iceoryx2/internal/transport/shm"
	"github.com/youndong/iceoryx2/internal/wire"
	"github.com/youndong/iceoryx2/pkg/log"
)

// Node is the entry point of the library. It owns the process-side transport
// resources every endpoint created from it shares. One node per process is
// the normal shape; several are allowed.
//
// A node tracks its open endpoints and refuses to close while any remain.
type Node struct {
	name   string
	stype  ServiceType
	cfg    *config.Config
	logger log.Logger

	tr     transport.Transport
	handle transport.NodeHandle

	mu        sync.Mutex
	endpoints int
	closed    bool
}

// NewNode creates a node named name. The name identifies the participant in
// logs and is the default sender of messages published through the node's
// publishers.
func NewNode(name string, opts ...NodeOption) (*Node, error) {
	o := &nodeOptions{
		serviceType: ServiceTypeLocal,
		cfg:         config.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeCreationFailed, err)
	}
	if o.logger == nil {
		logger, err := log.ApplyConfig(&log.Config{Level: o.cfg.LogLevel, Format: o.cfg.LogFormat})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNodeCreationFailed, err)
		}
		o.logger = logger
	}

	tr := o.tr
	if tr == nil {
		switch o.serviceType {
		case ServiceTypeLocal:
			tr = mem.Default()
		case ServiceTypeIPC:
			var err error
			tr, err = shm.New(shm.Options{Dir: o.cfg.ShmDir, PoolCapacity: o.cfg.PoolCapacity})
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrNodeCreationFailed, err)
			}
		default:
			return nil, fmt.Errorf("%w: unknown service type %d", ErrNodeCreationFailed, o.serviceType)
		}
	}

	handle, err := tr.CreateNode(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeCreationFailed, err)
	}

	n := &Node{
		name:   name,
		stype:  o.serviceType,
		cfg:    o.cfg,
		logger: o.logger.WithComponent("node").With(log.Str("node", name)),
		tr:     tr,
		handle: handle,
	}
	n.logger.Debug("node created",
		log.Str("service_type", o.serviceType.String()),
		log.Str("node_id", handle.UniqueID().String()))
	return n, nil
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// ID returns the node's transport-assigned unique identifier.
func (n *Node) ID() uuid.UUID { return n.handle.UniqueID() }

// ServiceType returns the node's service type.
func (n *Node) ServiceType() ServiceType { return n.stype }

// Publisher opens (or creates) the named service and attaches a publisher to
// it. The returned publisher is owned by the caller and must be closed.
func (n *Node) Publisher(service string) (*Publisher, error) {
	if err := n.acquireEndpoint(); err != nil {
		return nil, err
	}
	ch, err := n.openService(service)
	if err != nil {
		n.releaseEndpoint()
		return nil, err
	}
	ph, err := n.tr.MakePublisher(ch)
	if err != nil {
		n.tr.DropChannel(ch)
		n.releaseEndpoint()
		return nil, fmt.Errorf("%w: service %q: %w", ErrServiceOpenFailed, service, err)
	}
	p := &Publisher{
		node:    n,
		service: service,
		ch:      ch,
		handle:  ph,
		logger:  n.logger.WithComponent("publisher").With(log.Str("service", service)),
	}
	p.logger.Debug("publisher attached", log.Str("publisher_id", ph.UniqueID().String()))
	return p, nil
}

// Subscriber opens (or creates) the named service and attaches a subscriber
// to it. The returned subscriber is owned by the caller and must be closed.
func (n *Node) Subscriber(service string) (*Subscriber, error) {
	if err := n.acquireEndpoint(); err != nil {
		return nil, err
	}
	ch, err := n.openService(service)
	if err != nil {
		n.releaseEndpoint()
		return nil, err
	}
	sh, err := n.tr.MakeSubscriber(n.handle, ch)
	if err != nil {
		n.tr.DropChannel(ch)
		n.releaseEndpoint()
		return nil, fmt.Errorf("%w: service %q: %w", ErrServiceOpenFailed, service, err)
	}
	s := &Subscriber{
		node:    n,
		service: service,
		ch:      ch,
		handle:  sh,
		logger:  n.logger.WithComponent("subscriber").With(log.Str("service", service)),
	}
	s.logger.Debug("subscriber attached", log.Str("subscriber_id", sh.UniqueID().String()))
	return s, nil
}

// Close releases the node's transport resources. It fails with ErrNodeBusy
// while publishers or subscribers created from it are still open; close the
// endpoints first. Closing twice returns ErrEndpointClosed.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrEndpointClosed
	}
	if n.endpoints > 0 {
		open := n.endpoints
		n.mu.Unlock()
		return fmt.Errorf("%w: %d still open", ErrNodeBusy, open)
	}
	n.closed = true
	n.mu.Unlock()

	if err := n.tr.DropNode(n.handle); err != nil {
		return fmt.Errorf("%w: %w", ErrEndpointClosed, err)
	}
	n.logger.Debug("node closed")
	return nil
}

// openService opens the service's channel with the frame contract and maps
// transport errors onto the caller-facing taxonomy.
func (n *Node) openService(service string) (transport.ChannelHandle, error) {
	ch, err := n.tr.OpenOrCreateChannel(n.handle, service, wire.ChannelDescriptor())
	if err != nil {
		if errors.Is(err, transport.ErrDescriptorMismatch) {
			return nil, fmt.Errorf("%w: service %q: %w", ErrPayloadTypeMismatch, service, err)
		}
		return nil, fmt.Errorf("%w: service %q: %w", ErrServiceOpenFailed, service, err)
	}
	return ch, nil
}

func (n *Node) acquireEndpoint() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("%w: node %q", ErrEndpointClosed, n.name)
	}
	n.endpoints++
	return nil
}

func (n *Node) releaseEndpoint() {
	n.mu.Lock()
	if n.endpoints > 0 {
		n.endpoints--
	}
	n.mu.Unlock()
}
