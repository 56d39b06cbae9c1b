package shm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/pkg/id"
)

// Options configures a Transport.
type Options struct {
	// Dir is the directory holding segment files, typically /dev/shm.
	Dir string
	// PoolCapacity bounds the number of samples in flight per channel the
	// transport creates. Openers of an existing channel inherit the creator's
	// capacity.
	PoolCapacity int
}

// DefaultPoolCapacity is used when Options.PoolCapacity is zero.
const DefaultPoolCapacity = 16

// pollInterval paces waiters that cannot block on a futex (several
// subscribers on one node, or no kernel futex support).
const pollInterval = 2 * time.Millisecond

// waitChunk bounds a single futex sleep so waiters notice a dropped node.
const waitChunk = 100 * time.Millisecond

// ErrUnsupported is returned by New on platforms without shared file
// mappings.
var ErrUnsupported = errors.New("shared memory transport not supported on this platform")

const (
	segPrefix = "iox2_"
	segSuffix = ".seg"
)

// Transport implements transport.Transport over memory-mapped segment files.
// Instances in different processes pointing at the same directory form one
// channel namespace.
type Transport struct {
	dir     string
	poolCap int
	gen     *id.Generator

	mu   sync.Mutex
	segs map[string]*segRef
}

// segRef shares one process-wide mapping per channel across all local
// endpoints.
type segRef struct {
	seg  *segment
	refs int
}

// New returns a transport rooted at opts.Dir, creating the directory when
// missing.
func New(opts Options) (*Transport, error) {
	if !mmapSupported {
		return nil, ErrUnsupported
	}
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segment directory %s: %w", dir, err)
	}
	poolCap := opts.PoolCapacity
	if poolCap <= 0 {
		poolCap = DefaultPoolCapacity
	}
	return &Transport{
		dir:     dir,
		poolCap: poolCap,
		gen:     id.NewGenerator(),
		segs:    make(map[string]*segRef),
	}, nil
}

type node struct {
	uid  uuid.UUID
	name string

	mu      sync.Mutex
	subs    map[uuid.UUID]*subscriber
	dropped atomic.Bool
}

func (n *node) UniqueID() uuid.UUID { return n.uid }

type channelHandle struct {
	t    *Transport
	name string
	ref  *segRef

	mu      sync.Mutex
	dropped bool
}

func (h *channelHandle) Name() string                     { return h.name }
func (h *channelHandle) Descriptor() transport.Descriptor { return h.ref.seg.descriptor() }

type publisher struct {
	uid  uuid.UUID
	name string
	ref  *segRef

	mu      sync.Mutex
	dropped bool
}

func (p *publisher) UniqueID() uuid.UUID { return p.uid }

type subscriber struct {
	uid  uuid.UUID
	name string
	ref  *segRef
	slot int

	mu      sync.Mutex
	dropped bool
}

func (s *subscriber) UniqueID() uuid.UUID { return s.uid }

type sample struct {
	seg     *segment
	idx     uint32
	payload []byte
	header  []byte
}

func (s *sample) Payload() []byte { return s.payload }
func (s *sample) Header() []byte  { return s.header }

// CreateNode implements transport.Transport.
func (t *Transport) CreateNode(name string) (transport.NodeHandle, error) {
	return &node{uid: uuid.New(), name: name, subs: make(map[uuid.UUID]*subscriber)}, nil
}

// OpenOrCreateChannel implements transport.Transport.
func (t *Transport) OpenOrCreateChannel(_ transport.NodeHandle, name string, desc transport.Descriptor) (transport.ChannelHandle, error) {
	ref, err := t.refSegment(name, desc)
	if err != nil {
		return nil, err
	}
	return &channelHandle{t: t, name: name, ref: ref}, nil
}

// MakePublisher implements transport.Transport.
func (t *Transport) MakePublisher(chh transport.ChannelHandle) (transport.PublisherHandle, error) {
	h, err := t.channelOf(chh)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	h.ref.refs++
	t.mu.Unlock()
	return &publisher{uid: uuid.New(), name: h.name, ref: h.ref}, nil
}

// MakeSubscriber implements transport.Transport. It claims one of the
// segment's fixed subscriber slots.
func (t *Transport) MakeSubscriber(nh transport.NodeHandle, chh transport.ChannelHandle) (transport.SubscriberHandle, error) {
	n, ok := nh.(*node)
	if !ok {
		return nil, fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	h, err := t.channelOf(chh)
	if err != nil {
		return nil, err
	}

	seg := h.ref.seg
	claimed := -1
	for i := 0; i < maxSubSlots; i++ {
		slot := seg.subSlot(i)
		lockPush(slot)
		if atomic.LoadUint32(&slot.active) == 0 {
			atomic.StoreUint64(&slot.head, 0)
			atomic.StoreUint64(&slot.tail, 0)
			atomic.StoreUint32(&slot.active, 1)
			claimed = i
		}
		unlockPush(slot)
		if claimed >= 0 {
			break
		}
	}
	if claimed < 0 {
		return nil, fmt.Errorf("%w: channel %q (limit %d)", transport.ErrTooManySubscribers, h.name, maxSubSlots)
	}

	sub := &subscriber{uid: uuid.New(), name: h.name, ref: h.ref, slot: claimed}
	t.mu.Lock()
	h.ref.refs++
	t.mu.Unlock()
	n.mu.Lock()
	n.subs[sub.uid] = sub
	n.mu.Unlock()
	return sub, nil
}

// Loan implements transport.Transport.
func (t *Transport) Loan(ph transport.PublisherHandle) (transport.Sample, error) {
	p, err := t.publisherOf(ph)
	if err != nil {
		return nil, err
	}
	seg := p.ref.seg
	for i := uint32(0); i < uint32(seg.poolCap()); i++ {
		st := seg.slotState(i)
		if atomic.CompareAndSwapUint32(&st.state, slotFree, slotLoaned) {
			return &sample{
				seg:     seg,
				idx:     i,
				payload: seg.payloadAt(i),
				header:  seg.headerAt(i),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: channel %q (capacity %d)", transport.ErrPoolExhausted, p.name, seg.poolCap())
}

// Commit implements transport.Transport. The slot index is pushed to every
// active subscriber ring; with none attached the slot returns to the pool
// unseen. The publisher holds a temporary reference across the pushes so a
// fast subscriber releasing early cannot free the slot mid-delivery.
func (t *Transport) Commit(ph transport.PublisherHandle, smp transport.Sample) error {
	p, err := t.publisherOf(ph)
	if err != nil {
		return err
	}
	s, err := sampleOf(p.ref.seg, smp)
	if err != nil {
		return err
	}
	seg := p.ref.seg
	st := seg.slotState(s.idx)
	if !atomic.CompareAndSwapUint32(&st.state, slotLoaned, slotLive) {
		return fmt.Errorf("%w: commit of a sample that is not loaned", transport.ErrSampleState)
	}
	// No ring holds the index yet, so nothing can release before these
	// stores; the track stamp is written under the same exclusivity.
	tid := t.gen.Next()
	copy(st.track[:], tid[:])
	atomic.StoreUint32(&st.refs, 1)

	for i := 0; i < maxSubSlots; i++ {
		slot := seg.subSlot(i)
		delivered := false
		lockPush(slot)
		if atomic.LoadUint32(&slot.active) == 1 {
			head := atomic.LoadUint64(&slot.head)
			tail := atomic.LoadUint64(&slot.tail)
			if tail-head < ringEntries {
				atomic.AddUint32(&st.refs, 1)
				atomic.StoreUint32(&slot.ring[tail&(ringEntries-1)], s.idx)
				atomic.StoreUint64(&slot.tail, tail+1)
				delivered = true
			}
		}
		unlockPush(slot)
		if delivered {
			atomic.AddUint32(&slot.doorbell, 1)
			futexWake(&slot.doorbell, math.MaxInt32)
		}
	}

	derefSlot(st)
	return nil
}

// Discard implements transport.Transport.
func (t *Transport) Discard(ph transport.PublisherHandle, smp transport.Sample) {
	p, err := t.publisherOf(ph)
	if err != nil {
		return
	}
	s, err := sampleOf(p.ref.seg, smp)
	if err != nil {
		return
	}
	st := p.ref.seg.slotState(s.idx)
	atomic.CompareAndSwapUint32(&st.state, slotLoaned, slotFree)
}

// PollReceive implements transport.Transport.
func (t *Transport) PollReceive(sh transport.SubscriberHandle) (transport.Sample, error) {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return nil, err
	}
	seg := sub.ref.seg
	slot := seg.subSlot(sub.slot)
	head := atomic.LoadUint64(&slot.head)
	if head == atomic.LoadUint64(&slot.tail) {
		return nil, nil
	}
	idx := atomic.LoadUint32(&slot.ring[head&(ringEntries-1)])
	atomic.StoreUint64(&slot.head, head+1)
	return &sample{
		seg:     seg,
		idx:     idx,
		payload: seg.payloadAt(idx),
		header:  seg.headerAt(idx),
	}, nil
}

// Release implements transport.Transport.
func (t *Transport) Release(sh transport.SubscriberHandle, smp transport.Sample) {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return
	}
	s, err := sampleOf(sub.ref.seg, smp)
	if err != nil {
		return
	}
	derefSlot(sub.ref.seg.slotState(s.idx))
}

// SampleTrack reports the tracking id stamped on a received sample's slot at
// commit time. Ids are time-sortable, so two received samples order their
// commits. Diagnostic, the shared-memory counterpart of the in-process
// transport's LastCommit.
func (t *Transport) SampleTrack(smp transport.Sample) (id.ID, bool) {
	s, ok := smp.(*sample)
	if !ok {
		return id.ID{}, false
	}
	var tid id.ID
	copy(tid[:], s.seg.slotState(s.idx).track[:])
	return tid, tid != id.ID{}
}

// Wait implements transport.Transport. With a single subscriber on the node
// it blocks on that subscriber's futex doorbell; with several it polls at a
// bounded interval. The pending check runs after the doorbell snapshot so a
// commit landing in between forces an immediate futex return.
func (t *Transport) Wait(nh transport.NodeHandle, timeout time.Duration) (transport.WaitResult, error) {
	n, ok := nh.(*node)
	if !ok {
		return transport.WaitTimeout, fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	n.mu.Lock()
	subs := make([]*subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if n.dropped.Load() {
			return transport.WaitTimeout, transport.ErrClosed
		}
		if len(subs) == 1 && futexSupported {
			slot := subs[0].ref.seg.subSlot(subs[0].slot)
			val := atomic.LoadUint32(&slot.doorbell)
			if anyPending(subs) {
				return transport.WaitEvent, nil
			}
			futexWaitTimeout(&slot.doorbell, val, chunk(deadline, waitChunk))
		} else {
			if anyPending(subs) {
				return transport.WaitEvent, nil
			}
			time.Sleep(chunk(deadline, pollInterval))
		}
		if anyPending(subs) {
			return transport.WaitEvent, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return transport.WaitTimeout, nil
		}
	}
}

// DropPublisher implements transport.Transport.
func (t *Transport) DropPublisher(ph transport.PublisherHandle) error {
	p, err := t.publisherOf(ph)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.dropped = true
	p.mu.Unlock()
	t.unref(p.name, p.ref)
	return nil
}

// DropSubscriber implements transport.Transport. The subscriber's slot is
// deactivated under the push lock and any samples still queued are released.
func (t *Transport) DropSubscriber(sh transport.SubscriberHandle) error {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return err
	}
	sub.mu.Lock()
	sub.dropped = true
	sub.mu.Unlock()

	seg := sub.ref.seg
	slot := seg.subSlot(sub.slot)
	lockPush(slot)
	atomic.StoreUint32(&slot.active, 0)
	head := atomic.LoadUint64(&slot.head)
	tail := atomic.LoadUint64(&slot.tail)
	for ; head < tail; head++ {
		idx := atomic.LoadUint32(&slot.ring[head&(ringEntries-1)])
		derefSlot(seg.slotState(idx))
	}
	atomic.StoreUint64(&slot.head, tail)
	unlockPush(slot)

	t.unref(sub.name, sub.ref)
	return nil
}

// DropChannel implements transport.Transport.
func (t *Transport) DropChannel(chh transport.ChannelHandle) error {
	h, err := t.channelOf(chh)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.dropped = true
	h.mu.Unlock()
	t.unref(h.name, h.ref)
	return nil
}

// DropNode implements transport.Transport. Waiters notice within one wait
// chunk.
func (t *Transport) DropNode(nh transport.NodeHandle) error {
	n, ok := nh.(*node)
	if !ok {
		return fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	if n.dropped.Swap(true) {
		return transport.ErrClosed
	}
	return nil
}

// refSegment maps (or reuses this process's mapping of) the named channel's
// segment and takes one reference.
func (t *Transport) refSegment(name string, desc transport.Descriptor) (*segRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ref, ok := t.segs[name]
	if !ok {
		seg, err := createOrOpenSegment(t.segmentPath(name), desc, t.poolCap)
		if err != nil {
			return nil, err
		}
		ref = &segRef{seg: seg}
		t.segs[name] = ref
	} else if !ref.seg.descriptor().Equal(desc) {
		return nil, fmt.Errorf("%w: channel %q", transport.ErrDescriptorMismatch, name)
	}
	ref.refs++
	return ref, nil
}

// unref drops one reference; the last reference unmaps the segment. The file
// stays behind for other processes and explicit cleanup.
func (t *Transport) unref(name string, ref *segRef) {
	t.mu.Lock()
	ref.refs--
	last := ref.refs <= 0
	if last {
		if cur, ok := t.segs[name]; ok && cur == ref {
			delete(t.segs, name)
		}
	}
	t.mu.Unlock()
	if last {
		ref.seg.close()
	}
}

func (t *Transport) segmentPath(name string) string {
	return filepath.Join(t.dir, segPrefix+sanitizeName(name)+segSuffix)
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, name)
}

func (t *Transport) channelOf(chh transport.ChannelHandle) (*channelHandle, error) {
	h, ok := chh.(*channelHandle)
	if !ok {
		return nil, fmt.Errorf("%w: foreign channel handle", transport.ErrClosed)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped {
		return nil, transport.ErrClosed
	}
	return h, nil
}

func (t *Transport) publisherOf(ph transport.PublisherHandle) (*publisher, error) {
	p, ok := ph.(*publisher)
	if !ok {
		return nil, fmt.Errorf("%w: foreign publisher handle", transport.ErrClosed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dropped {
		return nil, transport.ErrClosed
	}
	return p, nil
}

func (t *Transport) subscriberOf(sh transport.SubscriberHandle) (*subscriber, error) {
	s, ok := sh.(*subscriber)
	if !ok {
		return nil, fmt.Errorf("%w: foreign subscriber handle", transport.ErrClosed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return nil, transport.ErrClosed
	}
	return s, nil
}

func sampleOf(seg *segment, smp transport.Sample) (*sample, error) {
	s, ok := smp.(*sample)
	if !ok || s.seg != seg {
		return nil, transport.ErrForeignSample
	}
	return s, nil
}

// derefSlot drops one reference from a live slot, freeing it when the last
// holder lets go.
func derefSlot(st *slotState) {
	if atomic.AddUint32(&st.refs, ^uint32(0)) == 0 {
		atomic.StoreUint32(&st.state, slotFree)
	}
}

func anyPending(subs []*subscriber) bool {
	for _, sub := range subs {
		slot := sub.ref.seg.subSlot(sub.slot)
		if atomic.LoadUint64(&slot.head) != atomic.LoadUint64(&slot.tail) {
			return true
		}
	}
	return false
}

// chunk bounds a single sleep: never past the deadline, never longer than
// limit. A zero deadline means block indefinitely (in limit-sized chunks).
func chunk(deadline time.Time, limit time.Duration) time.Duration {
	if deadline.IsZero() {
		return limit
	}
	left := time.Until(deadline)
	if left < limit {
		if left < time.Millisecond {
			return time.Millisecond
		}
		return left
	}
	return limit
}

// lockPush acquires a subscriber slot's cross-process push lock by spinning.
// Critical sections are a few memory operations, so contention is short.
func lockPush(slot *subSlot) {
	for !atomic.CompareAndSwapUint32(&slot.pushLock, 0, 1) {
		time.Sleep(time.Microsecond)
	}
}

func unlockPush(slot *subSlot) {
	atomic.StoreUint32(&slot.pushLock, 0)
}

// Info describes one channel segment found on disk.
type Info struct {
	Name         string
	Path         string
	PoolCapacity int
	PayloadType  string
	PayloadSize  uint64
}

// List scans dir for channel segments and reports their stored contracts.
// Used by tooling; the library itself never scans.
func List(dir string) ([]Info, error) {
	if !mmapSupported {
		return nil, ErrUnsupported
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var infos []Info
	for _, e := range entries {
		fname := e.Name()
		if e.IsDir() || !strings.HasPrefix(fname, segPrefix) || !strings.HasSuffix(fname, segSuffix) {
			continue
		}
		path := filepath.Join(dir, fname)
		info, err := statSegment(path)
		if err != nil {
			continue
		}
		info.Name = strings.TrimSuffix(strings.TrimPrefix(fname, segPrefix), segSuffix)
		infos = append(infos, info)
	}
	return infos, nil
}

// Remove deletes the named channel's segment file. Endpoints still attached
// in other processes keep their mappings; new opens recreate the channel.
func Remove(dir, name string) error {
	return os.Remove(filepath.Join(dir, segPrefix+sanitizeName(name)+segSuffix))
}

func statSegment(path string) (Info, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return Info{}, err
	}
	fi, err := f.Stat()
	if err != nil || fi.Size() < segHeaderSize {
		f.Close()
		return Info{}, fmt.Errorf("segment %s too small", path)
	}
	mem, err := mapFile(f, segHeaderSize)
	if err != nil {
		f.Close()
		return Info{}, err
	}
	seg := &segment{path: path, f: f, mem: mem}
	defer seg.close()

	h := seg.header()
	if err := h.validate(); err != nil {
		return Info{}, err
	}
	desc := h.readDescriptor()
	return Info{
		Path:         path,
		PoolCapacity: int(h.poolCap),
		PayloadType:  desc.Payload.Name,
		PayloadSize:  desc.Payload.Size,
	}, nil
}
