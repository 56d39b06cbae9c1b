package mem

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/youndong/iceoryx2/internal/transport"
)

func testDescriptor() transport.Descriptor {
	return transport.Descriptor{
		Payload: transport.TypeDetail{Name: "frame", Size: 264, Align: 8},
		Header:  transport.TypeDetail{Name: "header", Size: 80, Align: 8},
	}
}

func openChannel(t *testing.T, tr *Transport, name string) (transport.NodeHandle, transport.ChannelHandle) {
	t.Helper()
	n, err := tr.CreateNode("test-node")
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	ch, err := tr.OpenOrCreateChannel(n, name, testDescriptor())
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	return n, ch
}

func TestDescriptorMismatchRejected(t *testing.T) {
	tr := New(Options{})
	n, _ := openChannel(t, tr, "svc")

	bad := testDescriptor()
	bad.Payload.Size = 128
	if _, err := tr.OpenOrCreateChannel(n, "svc", bad); !errors.Is(err, transport.ErrDescriptorMismatch) {
		t.Fatalf("expected descriptor mismatch, got %v", err)
	}
}

func TestLoanCommitReceiveRelease(t *testing.T) {
	tr := New(Options{PoolCapacity: 4})
	n, ch := openChannel(t, tr, "svc")
	pub, err := tr.MakePublisher(ch)
	if err != nil {
		t.Fatalf("make publisher: %v", err)
	}
	sub, err := tr.MakeSubscriber(n, ch)
	if err != nil {
		t.Fatalf("make subscriber: %v", err)
	}

	s, err := tr.Loan(pub)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	binary.LittleEndian.PutUint64(s.Payload()[0:8], 5)
	copy(s.Payload()[8:], "hello")
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := tr.PollReceive(sub)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a sample")
	}
	if string(got.Payload()[8:13]) != "hello" {
		t.Fatalf("payload mismatch: %q", got.Payload()[8:13])
	}
	tr.Release(sub, got)

	if out := tr.Outstanding("svc"); out != 0 {
		t.Fatalf("expected 0 outstanding samples, got %d", out)
	}
}

func TestPollEmptyReturnsNil(t *testing.T) {
	tr := New(Options{})
	n, ch := openChannel(t, tr, "svc")
	sub, err := tr.MakeSubscriber(n, ch)
	if err != nil {
		t.Fatalf("make subscriber: %v", err)
	}
	got, err := tr.PollReceive(sub)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no sample")
	}
}

func TestPoolExhaustion(t *testing.T) {
	tr := New(Options{PoolCapacity: 2})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	sub, _ := tr.MakeSubscriber(n, ch)

	// Fill the pool without releasing on the subscriber side.
	for i := 0; i < 2; i++ {
		s, err := tr.Loan(pub)
		if err != nil {
			t.Fatalf("loan %d: %v", i, err)
		}
		if err := tr.Commit(pub, s); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if _, err := tr.Loan(pub); !errors.Is(err, transport.ErrPoolExhausted) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}

	// Releasing one sample frees one loan.
	got, err := tr.PollReceive(sub)
	if err != nil || got == nil {
		t.Fatalf("poll: %v %v", got, err)
	}
	tr.Release(sub, got)
	if _, err := tr.Loan(pub); err != nil {
		t.Fatalf("loan after release: %v", err)
	}
}

func TestDiscardReturnsSampleToPool(t *testing.T) {
	tr := New(Options{PoolCapacity: 1})
	_, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)

	s, err := tr.Loan(pub)
	if err != nil {
		t.Fatalf("loan: %v", err)
	}
	tr.Discard(pub, s)
	if _, err := tr.Loan(pub); err != nil {
		t.Fatalf("loan after discard: %v", err)
	}
}

func TestCommitWithoutSubscribersFreesSample(t *testing.T) {
	tr := New(Options{PoolCapacity: 1})
	_, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)

	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if out := tr.Outstanding("svc"); out != 0 {
		t.Fatalf("expected 0 outstanding, got %d", out)
	}
}

func TestFanOutRefcounting(t *testing.T) {
	tr := New(Options{PoolCapacity: 1})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	subA, _ := tr.MakeSubscriber(n, ch)
	subB, _ := tr.MakeSubscriber(n, ch)

	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gotA, _ := tr.PollReceive(subA)
	gotB, _ := tr.PollReceive(subB)
	if gotA == nil || gotB == nil {
		t.Fatalf("both subscribers should see the sample")
	}

	tr.Release(subA, gotA)
	if _, err := tr.Loan(pub); !errors.Is(err, transport.ErrPoolExhausted) {
		t.Fatalf("sample should still be held by subscriber B")
	}
	tr.Release(subB, gotB)
	if _, err := tr.Loan(pub); err != nil {
		t.Fatalf("loan after both releases: %v", err)
	}
}

func TestDoubleCommitRejected(t *testing.T) {
	tr := New(Options{})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	if _, err := tr.MakeSubscriber(n, ch); err != nil {
		t.Fatalf("make subscriber: %v", err)
	}

	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := tr.Commit(pub, s); !errors.Is(err, transport.ErrSampleState) {
		t.Fatalf("expected sample state error, got %v", err)
	}
}

func TestReceiveOrderPreserved(t *testing.T) {
	tr := New(Options{PoolCapacity: 8})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	sub, _ := tr.MakeSubscriber(n, ch)

	for i := byte(1); i <= 3; i++ {
		s, err := tr.Loan(pub)
		if err != nil {
			t.Fatalf("loan %d: %v", i, err)
		}
		s.Payload()[8] = i
		if err := tr.Commit(pub, s); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	for i := byte(1); i <= 3; i++ {
		got, err := tr.PollReceive(sub)
		if err != nil || got == nil {
			t.Fatalf("poll %d: %v %v", i, got, err)
		}
		if got.Payload()[8] != i {
			t.Fatalf("order violated: got %d, want %d", got.Payload()[8], i)
		}
		tr.Release(sub, got)
	}
}

func TestWaitWakesOnCommit(t *testing.T) {
	tr := New(Options{})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	if _, err := tr.MakeSubscriber(n, ch); err != nil {
		t.Fatalf("make subscriber: %v", err)
	}

	done := make(chan transport.WaitResult, 1)
	go func() {
		res, err := tr.Wait(n, 500*time.Millisecond)
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- res
	}()

	time.Sleep(50 * time.Millisecond)
	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}

	select {
	case res := <-done:
		if res != transport.WaitEvent {
			t.Fatalf("expected wake by event, got %v", res)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for waiter to wake")
	}
}

func TestWaitReturnsImmediatelyWhenPending(t *testing.T) {
	tr := New(Options{})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	if _, err := tr.MakeSubscriber(n, ch); err != nil {
		t.Fatalf("make subscriber: %v", err)
	}

	// Commit before anyone waits: the queued sample must short-circuit the
	// wait instead of costing a full timeout.
	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}

	start := time.Now()
	res, err := tr.Wait(n, 5*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res != transport.WaitEvent {
		t.Fatalf("expected event for pending sample")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("wait blocked despite a pending sample")
	}
}

func TestCommitStampsTrackingID(t *testing.T) {
	tr := New(Options{PoolCapacity: 4})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	if _, err := tr.MakeSubscriber(n, ch); err != nil {
		t.Fatalf("make subscriber: %v", err)
	}

	if _, ok := tr.LastCommit("svc"); ok {
		t.Fatalf("tracking id before any commit")
	}

	s1, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s1); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	first, ok := tr.LastCommit("svc")
	if !ok {
		t.Fatalf("no tracking id after commit")
	}

	s2, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s2); err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	second, ok := tr.LastCommit("svc")
	if !ok {
		t.Fatalf("tracking id lost")
	}
	if first.Compare(second) >= 0 {
		t.Fatalf("commit ids not increasing: %s then %s", first, second)
	}
}

func TestWaitTimeout(t *testing.T) {
	tr := New(Options{})
	n, _ := openChannel(t, tr, "svc")

	start := time.Now()
	res, err := tr.Wait(n, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res != transport.WaitTimeout {
		t.Fatalf("expected timeout")
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Fatalf("timeout overshot")
	}
}

func TestDropSubscriberReleasesQueued(t *testing.T) {
	tr := New(Options{PoolCapacity: 1})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	sub, _ := tr.MakeSubscriber(n, ch)

	s, _ := tr.Loan(pub)
	if err := tr.Commit(pub, s); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tr.DropSubscriber(sub); err != nil {
		t.Fatalf("drop subscriber: %v", err)
	}
	if out := tr.Outstanding("svc"); out != 0 {
		t.Fatalf("queued sample leaked: %d outstanding", out)
	}
}

func TestUseAfterDropRejected(t *testing.T) {
	tr := New(Options{})
	n, ch := openChannel(t, tr, "svc")
	pub, _ := tr.MakePublisher(ch)
	sub, _ := tr.MakeSubscriber(n, ch)

	if err := tr.DropPublisher(pub); err != nil {
		t.Fatalf("drop publisher: %v", err)
	}
	if _, err := tr.Loan(pub); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if err := tr.DropSubscriber(sub); err != nil {
		t.Fatalf("drop subscriber: %v", err)
	}
	if _, err := tr.PollReceive(sub); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}
