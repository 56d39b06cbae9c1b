package iceoryx2

import (
	"time"

	"github.com/youndong/iceoryx2/internal/config"
	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/pkg/log"
)

// ServiceType selects how a node's endpoints reach each other.
type ServiceType int

const (
	// ServiceTypeLocal connects endpoints within the current process.
	ServiceTypeLocal ServiceType = iota
	// ServiceTypeIPC connects endpoints across processes on this host
	// through shared memory segments.
	ServiceTypeIPC
)

func (s ServiceType) String() string {
	switch s {
	case ServiceTypeLocal:
		return "local"
	case ServiceTypeIPC:
		return "ipc"
	default:
		return "unknown"
	}
}

type nodeOptions struct {
	serviceType ServiceType
	cfg         *config.Config
	logger      log.Logger
	tr          transport.Transport
}

// NodeOption configures NewNode.
type NodeOption func(*nodeOptions)

// WithServiceType selects the node's service type. The default is Local.
func WithServiceType(st ServiceType) NodeOption {
	return func(o *nodeOptions) { o.serviceType = st }
}

// WithLogger sets the node's logger. The default logger writes text to
// stderr at info level.
func WithLogger(l log.Logger) NodeOption {
	return func(o *nodeOptions) { o.logger = l }
}

// WithShmDir sets the directory holding IPC channel segments.
func WithShmDir(dir string) NodeOption {
	return func(o *nodeOptions) { o.cfg.ShmDir = dir }
}

// WithPoolCapacity bounds the samples in flight per service this node
// creates.
func WithPoolCapacity(n int) NodeOption {
	return func(o *nodeOptions) { o.cfg.PoolCapacity = n }
}

// WithWaitTimeout sets the receive stream's liveness interval: how long a
// blocked wait sleeps before re-checking for cancellation.
func WithWaitTimeout(d time.Duration) NodeOption {
	return func(o *nodeOptions) {
		o.cfg.WaitTimeoutMs = int(d / time.Millisecond)
	}
}

// WithStreamBuffer sets the capacity of receive stream delivery channels.
func WithStreamBuffer(n int) NodeOption {
	return func(o *nodeOptions) { o.cfg.StreamBuffer = n }
}

// withTransport substitutes the transport. Tests use it for fault injection.
func withTransport(tr transport.Transport) NodeOption {
	return func(o *nodeOptions) { o.tr = tr }
}
