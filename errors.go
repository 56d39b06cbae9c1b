package iceoryx2

import (
	"errors"

	"github.com/youndong/iceoryx2/internal/wire"
)

// Caller-facing error taxonomy. Transport-level failures are wrapped in one
// of these sentinels; errors.Is against a sentinel classifies a failure
// without depending on transport internals.
var (
	// ErrNodeCreationFailed: the node's transport resources could not be set
	// up.
	ErrNodeCreationFailed = errors.New("node creation failed")

	// ErrServiceOpenFailed: a service could not be opened or created.
	ErrServiceOpenFailed = errors.New("service open failed")

	// ErrPayloadTypeMismatch: the service exists with an incompatible payload
	// contract. Configuration error; retrying does not help.
	ErrPayloadTypeMismatch = errors.New("service payload type mismatch")

	// ErrLoanFailed: no sample buffer was available. Transient when caused by
	// pool exhaustion; retry after subscribers release.
	ErrLoanFailed = errors.New("sample loan failed")

	// ErrEncodeFailed: the message could not be written into the loaned
	// sample. The sample was returned to the pool.
	ErrEncodeFailed = errors.New("message encode failed")

	// ErrSendFailed: the transport rejected delivery of an encoded sample.
	ErrSendFailed = errors.New("send failed")

	// ErrReceiveFailed: a receive operation failed below the codec.
	ErrReceiveFailed = errors.New("receive failed")

	// ErrWaitFault: the blocking wait primitive reported a failure. The
	// stream that observed it is dead; Stream.Err returns the cause.
	ErrWaitFault = errors.New("wait failed")

	// ErrEndpointClosed: the publisher or subscriber was closed.
	ErrEndpointClosed = errors.New("endpoint closed")

	// ErrNodeBusy: Close was called while endpoints are still open.
	ErrNodeBusy = errors.New("node has open endpoints")

	// ErrStreamClosed: the stream ended; no further messages will arrive.
	ErrStreamClosed = errors.New("stream closed")
)

// Codec sentinels, re-exported so callers can classify without importing
// internals.
var (
	// ErrPayloadTooLarge: the message exceeds the fixed frame capacity. The
	// message was rejected before any transport interaction.
	ErrPayloadTooLarge = wire.ErrPayloadTooLarge

	// ErrMalformedFrame: a received frame failed decoding.
	ErrMalformedFrame = wire.ErrMalformedFrame
)
