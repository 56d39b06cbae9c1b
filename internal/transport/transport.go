package transport

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TypeDetail describes a fixed payload layout: logical type name, byte size
// and byte alignment. Two endpoints communicate only if their details match
// exactly.
type TypeDetail struct {
	Name  string
	Size  uint64
	Align uint64
}

// Descriptor is the full payload-type contract a channel enforces: the
// payload frame plus the per-sample user header.
type Descriptor struct {
	Payload TypeDetail
	Header  TypeDetail
}

// Equal reports whether two descriptors are compatible.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.Payload == o.Payload && d.Header == o.Header
}

// Sentinel errors reported by implementations. The facade maps them onto the
// caller-facing taxonomy.
var (
	// ErrDescriptorMismatch: a channel of that name exists with an
	// incompatible descriptor. Configuration error, not retried.
	ErrDescriptorMismatch = errors.New("channel descriptor mismatch")

	// ErrPoolExhausted: every buffer of the channel's fixed pool is in
	// flight. Transient; safe to retry after the subscribers release.
	ErrPoolExhausted = errors.New("sample pool exhausted")

	// ErrClosed: the handle was dropped and must not be used again.
	ErrClosed = errors.New("handle closed")

	// ErrForeignSample: a sample was passed back through a handle that does
	// not own it.
	ErrForeignSample = errors.New("sample does not belong to this handle")

	// ErrSampleState: a loan/commit/discard/release call does not match the
	// sample's current ownership state.
	ErrSampleState = errors.New("invalid sample state transition")

	// ErrTooManySubscribers: the channel's fixed subscriber table is full.
	ErrTooManySubscribers = errors.New("subscriber limit reached")
)

// Sample is a single fixed-size shared buffer instance, either loaned for
// writing or received for reading. The regions stay valid until the sample is
// committed, discarded or released; holding one longer starves the pool.
type Sample interface {
	Payload() []byte
	Header() []byte
}

// NodeHandle identifies one participant process-side resource.
type NodeHandle interface {
	UniqueID() uuid.UUID
}

// ChannelHandle is an opened named channel with an agreed descriptor.
type ChannelHandle interface {
	Name() string
	Descriptor() Descriptor
}

// PublisherHandle is the write side of a channel.
type PublisherHandle interface {
	UniqueID() uuid.UUID
}

// SubscriberHandle is the read side of a channel.
type SubscriberHandle interface {
	UniqueID() uuid.UUID
}

// WaitResult tells a waiter why it woke.
type WaitResult int

const (
	// WaitTimeout: the timeout elapsed with no event. Normal; callers use it
	// as a liveness check.
	WaitTimeout WaitResult = iota
	// WaitEvent: at least one sample may be available on a channel one of the
	// node's subscribers is attached to.
	WaitEvent
)

// Transport is the capability the core requires from the shared-memory
// collaborator. Handles are exclusively owned: no two endpoints share one,
// and each handle is used from a single goroutine at a time.
type Transport interface {
	// CreateNode registers one node-level resource.
	CreateNode(name string) (NodeHandle, error)

	// OpenOrCreateChannel opens the named channel, creating it with desc on
	// first reference. A later open with a different descriptor fails with
	// ErrDescriptorMismatch.
	OpenOrCreateChannel(node NodeHandle, name string, desc Descriptor) (ChannelHandle, error)

	MakePublisher(ch ChannelHandle) (PublisherHandle, error)
	MakeSubscriber(node NodeHandle, ch ChannelHandle) (SubscriberHandle, error)

	// Loan hands out a write buffer from the channel's fixed pool, or
	// ErrPoolExhausted when every buffer is still in flight.
	Loan(p PublisherHandle) (Sample, error)
	// Commit transfers a loaned sample to the transport for delivery. After
	// Commit the publisher must not touch the sample again.
	Commit(p PublisherHandle, s Sample) error
	// Discard returns a loaned sample to the pool without sending it.
	Discard(p PublisherHandle, s Sample)

	// PollReceive returns the next available sample, or (nil, nil) when the
	// channel is empty.
	PollReceive(sub SubscriberHandle) (Sample, error)
	// Release returns a received sample to the pool. Every received sample
	// must be released exactly once.
	Release(sub SubscriberHandle, s Sample)

	// Wait blocks until an event is signalled for the node or the timeout
	// elapses. A timeout <= 0 blocks until an event arrives.
	Wait(node NodeHandle, timeout time.Duration) (WaitResult, error)

	DropPublisher(p PublisherHandle) error
	DropSubscriber(sub SubscriberHandle) error
	DropChannel(ch ChannelHandle) error
	DropNode(node NodeHandle) error
}
