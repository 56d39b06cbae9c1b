package mem

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youndong/iceoryx2/internal/transport"
	"github.com/youndong/iceoryx2/pkg/id"
)

// Options configures a Transport.
type Options struct {
	// PoolCapacity bounds the number of samples in flight per channel.
	PoolCapacity int
}

// DefaultPoolCapacity is used when Options.PoolCapacity is zero.
const DefaultPoolCapacity = 16

// Transport is an in-process implementation of transport.Transport. One
// instance is one channel namespace; nodes created from the same instance can
// reach each other.
type Transport struct {
	poolCap int

	mu       sync.Mutex
	channels map[string]*channel
}

// New returns an empty in-process transport.
func New(opts Options) *Transport {
	poolCap := opts.PoolCapacity
	if poolCap <= 0 {
		poolCap = DefaultPoolCapacity
	}
	return &Transport{poolCap: poolCap, channels: make(map[string]*channel)}
}

var (
	defaultOnce sync.Once
	defaultTr   *Transport
)

// Default returns the process-wide shared instance backing the Local service
// type. Endpoints in the same process reach each other through it.
func Default() *Transport {
	defaultOnce.Do(func() { defaultTr = New(Options{}) })
	return defaultTr
}

// Sample states. A sample is owned by exactly one side at a time; the state
// encodes who.
const (
	stateFree int32 = iota
	stateLoaned
	stateLive // committed; refs counts undelivered subscriber queues
)

type sample struct {
	ch      *channel
	payload []byte
	header  []byte

	// guarded by ch.mu
	state   int32
	refs    int
	trackID id.ID
}

func (s *sample) Payload() []byte { return s.payload }
func (s *sample) Header() []byte  { return s.header }

type node struct {
	uid  uuid.UUID
	name string

	mu      sync.Mutex
	notify  chan struct{}
	subs    map[uuid.UUID]*subscriber
	dropped bool
}

func (n *node) UniqueID() uuid.UUID { return n.uid }

// signal wakes every waiter currently blocked on the node.
func (n *node) signal() {
	n.mu.Lock()
	if !n.dropped {
		close(n.notify)
		n.notify = make(chan struct{})
	}
	n.mu.Unlock()
}

type channel struct {
	name string
	desc transport.Descriptor
	gen  *id.Generator

	mu         sync.Mutex
	free       []*sample
	all        []*sample
	subs       map[uuid.UUID]*subscriber
	open       int // endpoint + channel-handle references
	lastCommit id.ID
}

type channelHandle struct {
	ch *channel

	mu      sync.Mutex
	dropped bool
}

func (h *channelHandle) Name() string                     { return h.ch.name }
func (h *channelHandle) Descriptor() transport.Descriptor { return h.ch.desc }

type publisher struct {
	uid uuid.UUID
	ch  *channel

	mu      sync.Mutex
	dropped bool
}

func (p *publisher) UniqueID() uuid.UUID { return p.uid }

type subscriber struct {
	uid  uuid.UUID
	ch   *channel
	node *node

	mu      sync.Mutex
	queue   []*sample
	dropped bool
}

func (s *subscriber) UniqueID() uuid.UUID { return s.uid }

// CreateNode implements transport.Transport.
func (t *Transport) CreateNode(name string) (transport.NodeHandle, error) {
	return &node{
		uid:    uuid.New(),
		name:   name,
		notify: make(chan struct{}),
		subs:   make(map[uuid.UUID]*subscriber),
	}, nil
}

// OpenOrCreateChannel implements transport.Transport.
func (t *Transport) OpenOrCreateChannel(_ transport.NodeHandle, name string, desc transport.Descriptor) (transport.ChannelHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.channels[name]
	if !ok {
		ch = &channel{
			name: name,
			desc: desc,
			gen:  id.NewGenerator(),
			subs: make(map[uuid.UUID]*subscriber),
		}
		for i := 0; i < t.poolCap; i++ {
			s := &sample{
				ch:      ch,
				payload: make([]byte, desc.Payload.Size),
				header:  make([]byte, desc.Header.Size),
			}
			ch.all = append(ch.all, s)
			ch.free = append(ch.free, s)
		}
		t.channels[name] = ch
	} else if !ch.desc.Equal(desc) {
		return nil, fmt.Errorf("%w: channel %q", transport.ErrDescriptorMismatch, name)
	}

	ch.mu.Lock()
	ch.open++
	ch.mu.Unlock()
	return &channelHandle{ch: ch}, nil
}

// MakePublisher implements transport.Transport.
func (t *Transport) MakePublisher(chh transport.ChannelHandle) (transport.PublisherHandle, error) {
	h, err := t.channelOf(chh)
	if err != nil {
		return nil, err
	}
	h.ch.mu.Lock()
	h.ch.open++
	h.ch.mu.Unlock()
	return &publisher{uid: uuid.New(), ch: h.ch}, nil
}

// MakeSubscriber implements transport.Transport.
func (t *Transport) MakeSubscriber(nh transport.NodeHandle, chh transport.ChannelHandle) (transport.SubscriberHandle, error) {
	n, ok := nh.(*node)
	if !ok {
		return nil, fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	h, err := t.channelOf(chh)
	if err != nil {
		return nil, err
	}
	sub := &subscriber{uid: uuid.New(), ch: h.ch, node: n}
	h.ch.mu.Lock()
	h.ch.subs[sub.uid] = sub
	h.ch.open++
	h.ch.mu.Unlock()
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
	ch := p.ch
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.free) == 0 {
		return nil, fmt.Errorf("%w: channel %q (capacity %d)", transport.ErrPoolExhausted, ch.name, len(ch.all))
	}
	s := ch.free[len(ch.free)-1]
	ch.free = ch.free[:len(ch.free)-1]
	s.state = stateLoaned
	return s, nil
}

// Commit implements transport.Transport. The sample is queued to every
// attached subscriber; with none attached it returns to the pool unseen.
func (t *Transport) Commit(ph transport.PublisherHandle, smp transport.Sample) error {
	p, err := t.publisherOf(ph)
	if err != nil {
		return err
	}
	s, err := sampleOf(p.ch, smp, stateLoaned)
	if err != nil {
		return err
	}
	ch := p.ch

	ch.mu.Lock()
	s.trackID = ch.gen.Next()
	ch.lastCommit = s.trackID
	targets := make([]*subscriber, 0, len(ch.subs))
	for _, sub := range ch.subs {
		targets = append(targets, sub)
	}
	if len(targets) == 0 {
		s.state = stateFree
		ch.free = append(ch.free, s)
		ch.mu.Unlock()
		return nil
	}
	s.state = stateLive
	s.refs = len(targets)
	ch.mu.Unlock()

	for _, sub := range targets {
		sub.mu.Lock()
		sub.queue = append(sub.queue, s)
		sub.mu.Unlock()
		sub.node.signal()
	}
	return nil
}

// Discard implements transport.Transport.
func (t *Transport) Discard(ph transport.PublisherHandle, smp transport.Sample) {
	p, err := t.publisherOf(ph)
	if err != nil {
		return
	}
	s, err := sampleOf(p.ch, smp, stateLoaned)
	if err != nil {
		return
	}
	ch := p.ch
	ch.mu.Lock()
	s.state = stateFree
	ch.free = append(ch.free, s)
	ch.mu.Unlock()
}

// PollReceive implements transport.Transport.
func (t *Transport) PollReceive(sh transport.SubscriberHandle) (transport.Sample, error) {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return nil, err
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) == 0 {
		return nil, nil
	}
	s := sub.queue[0]
	sub.queue = sub.queue[1:]
	return s, nil
}

// Release implements transport.Transport.
func (t *Transport) Release(sh transport.SubscriberHandle, smp transport.Sample) {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return
	}
	s, err := sampleOf(sub.ch, smp, stateLive)
	if err != nil {
		return
	}
	ch := sub.ch
	ch.mu.Lock()
	s.refs--
	if s.refs <= 0 {
		s.state = stateFree
		s.refs = 0
		ch.free = append(ch.free, s)
	}
	ch.mu.Unlock()
}

// Wait implements transport.Transport, following the close-and-recreate
// notification pattern: an event between two waits is never lost because the
// snapshot channel is already closed. Samples already queued before the
// snapshot are reported without blocking.
func (t *Transport) Wait(nh transport.NodeHandle, timeout time.Duration) (transport.WaitResult, error) {
	n, ok := nh.(*node)
	if !ok {
		return transport.WaitTimeout, fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	n.mu.Lock()
	if n.dropped {
		n.mu.Unlock()
		return transport.WaitTimeout, transport.ErrClosed
	}
	ch := n.notify
	subs := make([]*subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	// The snapshot precedes the pending check: a commit in between either
	// shows up as a pending sample or has already closed ch.
	if anyPending(subs) {
		return transport.WaitEvent, nil
	}

	if timeout <= 0 {
		<-ch
		return transport.WaitEvent, nil
	}
	select {
	case <-ch:
		return transport.WaitEvent, nil
	case <-time.After(timeout):
		return transport.WaitTimeout, nil
	}
}

func anyPending(subs []*subscriber) bool {
	for _, sub := range subs {
		sub.mu.Lock()
		pending := len(sub.queue) > 0
		sub.mu.Unlock()
		if pending {
			return true
		}
	}
	return false
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
	t.unref(p.ch)
	return nil
}

// DropSubscriber implements transport.Transport. Samples still queued are
// released back to the pool.
func (t *Transport) DropSubscriber(sh transport.SubscriberHandle) error {
	sub, err := t.subscriberOf(sh)
	if err != nil {
		return err
	}
	sub.mu.Lock()
	sub.dropped = true
	pending := sub.queue
	sub.queue = nil
	sub.mu.Unlock()

	ch := sub.ch
	ch.mu.Lock()
	delete(ch.subs, sub.uid)
	for _, s := range pending {
		s.refs--
		if s.refs <= 0 {
			s.state = stateFree
			s.refs = 0
			ch.free = append(ch.free, s)
		}
	}
	ch.mu.Unlock()

	sub.node.mu.Lock()
	delete(sub.node.subs, sub.uid)
	sub.node.mu.Unlock()

	t.unref(ch)
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
	t.unref(h.ch)
	return nil
}

// DropNode implements transport.Transport.
func (t *Transport) DropNode(nh transport.NodeHandle) error {
	n, ok := nh.(*node)
	if !ok {
		return fmt.Errorf("%w: foreign node handle", transport.ErrClosed)
	}
	n.mu.Lock()
	if n.dropped {
		n.mu.Unlock()
		return transport.ErrClosed
	}
	n.dropped = true
	close(n.notify)
	n.mu.Unlock()
	return nil
}

// LastCommit reports the tracking id stamped on the named channel's most
// recent commit. Ids are time-sortable, so two snapshots order the commits
// they observed. Diagnostic, like Outstanding.
func (t *Transport) LastCommit(channelName string) (id.ID, bool) {
	t.mu.Lock()
	ch, ok := t.channels[channelName]
	t.mu.Unlock()
	if !ok {
		return id.ID{}, false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.lastCommit == (id.ID{}) {
		return id.ID{}, false
	}
	return ch.lastCommit, true
}

// Outstanding reports how many of the named channel's samples are currently
// loaned or in flight. Diagnostic; tests use it to assert the pool drains.
func (t *Transport) Outstanding(channelName string) int {
	t.mu.Lock()
	ch, ok := t.channels[channelName]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.all) - len(ch.free)
}

// unref drops one channel reference; an unreferenced channel's pool is
// removed from the namespace.
func (t *Transport) unref(ch *channel) {
	ch.mu.Lock()
	ch.open--
	last := ch.open <= 0
	ch.mu.Unlock()
	if last {
		t.mu.Lock()
		if cur, ok := t.channels[ch.name]; ok && cur == ch {
			delete(t.channels, ch.name)
		}
		t.mu.Unlock()
	}
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

// sampleOf checks that smp belongs to ch and is in the expected state.
func sampleOf(ch *channel, smp transport.Sample, want int32) (*sample, error) {
	s, ok := smp.(*sample)
	if !ok || s.ch != ch {
		return nil, transport.ErrForeignSample
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if s.state != want {
		return nil, fmt.Errorf("%w: state %d, want %d", transport.ErrSampleState, s.state, want)
	}
	return s, nil
}
