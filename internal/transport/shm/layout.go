package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/youndong/iceoryx2/internal/transport"
)

// Segment layout constants.
const (
	segMagic   = "IOX2SEG\x00"
	segVersion = uint32(1)

	// segHeaderSize is the fixed header size; the subscriber table starts
	// right after it.
	segHeaderSize = 512

	// maxSubSlots bounds subscribers per channel. Fixed so the segment size
	// is known at creation time.
	maxSubSlots = 8

	// ringEntries is each subscriber's pending-sample ring capacity. Power of
	// two for masked wrap.
	ringEntries = 128

	// typeNameMax bounds the descriptor type-name strings stored in the
	// header.
	typeNameMax = 64
)

// Per-slot ownership states.
const (
	slotFree uint32 = iota
	slotLoaned
	slotLive
)

// segHeader is the fixed segment header. Field order is the on-disk layout;
// it must not change without bumping segVersion.
type segHeader struct {
	magic        [8]byte
	version      uint32
	poolCap      uint32
	payloadSize  uint64
	payloadAlign uint64
	headerSize   uint64
	headerAlign  uint64
	payloadName  [typeNameMax]byte
	headerName   [typeNameMax]byte
	subsOff      uint64
	statesOff    uint64
	dataOff      uint64
	slotStride   uint64
	totalSize    uint64
	ready        uint32
	_            uint32
}

func (h *segHeader) Ready() bool { return atomic.LoadUint32(&h.ready) != 0 }

func (h *segHeader) SetReady(ready bool) {
	var v uint32
	if ready {
		v = 1
	}
	atomic.StoreUint32(&h.ready, v)
}

// subSlot is one subscriber's delivery queue inside the segment: an SPSC ring
// of pool-slot indices, a CAS push lock serializing producers, and a futex
// doorbell the publisher rings after pushing.
type subSlot struct {
	active   uint32
	doorbell uint32
	pushLock uint32
	_        uint32
	head     uint64
	tail     uint64
	ring     [ringEntries]uint32
}

const subSlotSize = uint64(unsafe.Sizeof(subSlot{}))

// slotState is one pool slot's ownership record. track carries the
// time-sortable id stamped at commit; it is written while the publisher
// still owns the slot exclusively and survives in the segment for
// post-mortem inspection of commit order.
type slotState struct {
	state uint32
	refs  uint32
	track [16]byte
}

const slotStateSize = uint64(unsafe.Sizeof(slotState{}))

// layout is the computed segment geometry for a descriptor and pool size.
type layout struct {
	subsOff    uint64
	statesOff  uint64
	dataOff    uint64
	slotStride uint64
	totalSize  uint64
}

func computeLayout(desc transport.Descriptor, poolCap int) (layout, error) {
	if poolCap <= 0 {
		return layout{}, fmt.Errorf("pool capacity must be positive, got %d", poolCap)
	}
	if len(desc.Payload.Name) > typeNameMax || len(desc.Header.Name) > typeNameMax {
		return layout{}, fmt.Errorf("type name exceeds %d bytes", typeNameMax)
	}
	if desc.Payload.Align == 0 || desc.Payload.Align&(desc.Payload.Align-1) != 0 {
		return layout{}, fmt.Errorf("payload alignment %d is not a power of two", desc.Payload.Align)
	}

	var l layout
	l.subsOff = segHeaderSize
	l.statesOff = l.subsOff + maxSubSlots*subSlotSize
	l.dataOff = align64(l.statesOff + uint64(poolCap)*slotStateSize)
	l.slotStride = align64(alignTo(desc.Payload.Size, 8) + alignTo(desc.Header.Size, 8))
	l.totalSize = l.dataOff + uint64(poolCap)*l.slotStride
	return l, nil
}

func alignTo(n, a uint64) uint64 { return (n + a - 1) &^ (a - 1) }
func align64(n uint64) uint64    { return alignTo(n, 64) }

// writeDescriptor stores the channel's payload-type contract into the header.
func (h *segHeader) writeDescriptor(desc transport.Descriptor) {
	h.payloadSize = desc.Payload.Size
	h.payloadAlign = desc.Payload.Align
	h.headerSize = desc.Header.Size
	h.headerAlign = desc.Header.Align
	copy(h.payloadName[:], desc.Payload.Name)
	copy(h.headerName[:], desc.Header.Name)
}

// readDescriptor reconstructs the stored payload-type contract.
func (h *segHeader) readDescriptor() transport.Descriptor {
	return transport.Descriptor{
		Payload: transport.TypeDetail{
			Name:  cString(h.payloadName[:]),
			Size:  h.payloadSize,
			Align: h.payloadAlign,
		},
		Header: transport.TypeDetail{
			Name:  cString(h.headerName[:]),
			Size:  h.headerSize,
			Align: h.headerAlign,
		},
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// validate checks a mapped header before the segment is trusted.
func (h *segHeader) validate() error {
	if string(h.magic[:]) != segMagic {
		return fmt.Errorf("bad segment magic %q", h.magic)
	}
	if h.version != segVersion {
		return fmt.Errorf("unsupported segment version %d, expected %d", h.version, segVersion)
	}
	if h.poolCap == 0 {
		return fmt.Errorf("segment pool capacity is zero")
	}
	want, err := computeLayout(h.readDescriptor(), int(h.poolCap))
	if err != nil {
		return err
	}
	if want.subsOff != h.subsOff || want.statesOff != h.statesOff ||
		want.dataOff != h.dataOff || want.slotStride != h.slotStride || want.totalSize != h.totalSize {
		return fmt.Errorf("segment layout mismatch")
	}
	return nil
}
