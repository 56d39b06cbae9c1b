package shm

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/youndong/iceoryx2/internal/transport"
)

// readyDeadline bounds how long an opener waits for the creating process to
// finish initializing a segment.
const readyDeadline = 2 * time.Second

// segment is one channel's memory-mapped file, shared by every endpoint of
// the channel in this process.
type segment struct {
	path    string
	f       *os.File
	mem     []byte
	created bool
}

// createOrOpenSegment maps the segment file at path, creating and
// initializing it when it does not exist yet. On open of an existing file the
// stored descriptor must match desc.
func createOrOpenSegment(path string, desc transport.Descriptor, poolCap int) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err == nil {
		seg, err := initSegment(path, f, desc, poolCap)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		return seg, nil
	}
	if !os.IsExist(err) {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	return openSegment(path, desc)
}

func initSegment(path string, f *os.File, desc transport.Descriptor, poolCap int) (*segment, error) {
	lay, err := computeLayout(desc, poolCap)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(lay.totalSize)); err != nil {
		return nil, fmt.Errorf("size segment %s: %w", path, err)
	}
	mem, err := mapFile(f, int(lay.totalSize))
	if err != nil {
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}

	seg := &segment{path: path, f: f, mem: mem, created: true}
	h := seg.header()
	copy(h.magic[:], segMagic)
	h.version = segVersion
	h.poolCap = uint32(poolCap)
	h.writeDescriptor(desc)
	h.subsOff = lay.subsOff
	h.statesOff = lay.statesOff
	h.dataOff = lay.dataOff
	h.slotStride = lay.slotStride
	h.totalSize = lay.totalSize
	h.SetReady(true)
	return seg, nil
}

func openSegment(path string, desc transport.Descriptor) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}

	// The creator sizes the file before initializing the header; wait out
	// that window instead of mapping a still-empty file.
	deadline := time.Now().Add(readyDeadline)
	var size int64
	for {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("stat segment %s: %w", path, err)
		}
		size = fi.Size()
		if size >= segHeaderSize {
			break
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("segment %s never initialized", path)
		}
		time.Sleep(time.Millisecond)
	}

	mem, err := mapFile(f, int(size))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	seg := &segment{path: path, f: f, mem: mem}

	h := seg.header()
	for !h.Ready() {
		if time.Now().After(deadline) {
			seg.close()
			return nil, fmt.Errorf("segment %s never initialized", path)
		}
		time.Sleep(time.Millisecond)
	}
	if err := h.validate(); err != nil {
		seg.close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	if uint64(size) < h.totalSize {
		seg.close()
		return nil, fmt.Errorf("segment %s truncated: %d of %d bytes", path, size, h.totalSize)
	}
	if !h.readDescriptor().Equal(desc) {
		seg.close()
		return nil, fmt.Errorf("%w: segment %s", transport.ErrDescriptorMismatch, path)
	}
	return seg, nil
}

func (s *segment) header() *segHeader {
	return (*segHeader)(unsafe.Pointer(&s.mem[0]))
}

func (s *segment) subSlot(i int) *subSlot {
	off := s.header().subsOff + uint64(i)*subSlotSize
	return (*subSlot)(unsafe.Pointer(&s.mem[off]))
}

func (s *segment) slotState(i uint32) *slotState {
	off := s.header().statesOff + uint64(i)*slotStateSize
	return (*slotState)(unsafe.Pointer(&s.mem[off]))
}

// payloadAt and headerAt return the fixed regions of pool slot i. The payload
// leads the slot; the header follows at the next 8-byte boundary.
func (s *segment) payloadAt(i uint32) []byte {
	h := s.header()
	off := h.dataOff + uint64(i)*h.slotStride
	return s.mem[off : off+h.payloadSize : off+h.payloadSize]
}

func (s *segment) headerAt(i uint32) []byte {
	h := s.header()
	off := h.dataOff + uint64(i)*h.slotStride + alignTo(h.payloadSize, 8)
	return s.mem[off : off+h.headerSize : off+h.headerSize]
}

func (s *segment) descriptor() transport.Descriptor { return s.header().readDescriptor() }

func (s *segment) poolCap() int { return int(s.header().poolCap) }

// close unmaps and closes the segment. The file stays on disk for other
// processes; removal is an explicit cleanup operation.
func (s *segment) close() error {
	err := unmapFile(s.mem)
	s.mem = nil
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
